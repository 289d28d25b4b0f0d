package storage

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/wassup-/textpod/internal/application/port/output"
	infrafs "github.com/wassup-/textpod/internal/infra/fs"
	"github.com/wassup-/textpod/internal/domain/model/note"
)

// Subdirectories of the attachments root, one per capture kind.
// Uploaded files live directly under the root.
const (
	webpagesDir = "webpages"
	mediaDir    = "media"
)

// LocalArtifactStore implements ArtifactStore on a local directory tree:
//
//	<attachments>/webpages/<safe-url>.html   page snapshots
//	<attachments>/media/<safe-url>           media files
//	<attachments>/<filename>                 uploads
type LocalArtifactStore struct {
	fsys afero.Fs
	root string

	// Serializes SaveUpload so two concurrent uploads of the same
	// filename cannot claim the same unique name.
	uploadMu sync.Mutex
}

// NewLocalArtifactStore creates a store rooted at the attachments directory.
func NewLocalArtifactStore(fsys afero.Fs, root string) *LocalArtifactStore {
	return &LocalArtifactStore{fsys: fsys, root: root}
}

var _ output.ArtifactStore = (*LocalArtifactStore)(nil)

// DestPath maps a reference URL to the artifact destination for its kind.
func (s *LocalArtifactStore) DestPath(kind note.CaptureKind, url string) (string, string, error) {
	safe := URLToSafeFilename(url)
	if safe == "" {
		return "", "", fmt.Errorf("url %q reduces to an empty filename", url)
	}

	var rel string
	switch kind {
	case note.KindPageSnapshot:
		rel = path.Join(webpagesDir, safe+".html")
	case note.KindMediaFile:
		rel = path.Join(mediaDir, safe)
	default:
		return "", "", fmt.Errorf("unknown capture kind %q", kind)
	}

	return filepath.Join(s.root, filepath.FromSlash(rel)), rel, nil
}

// SaveUpload stores data under name, appending "-1", "-2", ... before the
// extension until the name is free. Path components in name are stripped.
func (s *LocalArtifactStore) SaveUpload(name string, data []byte) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid upload name %q", name)
	}

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	if err := s.fsys.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create attachments directory: %w", err)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	final := base
	for counter := 1; ; counter++ {
		exists, err := afero.Exists(s.fsys, filepath.Join(s.root, final))
		if err != nil {
			return "", fmt.Errorf("check upload name: %w", err)
		}
		if !exists {
			break
		}
		// e.g. file-1.txt
		final = fmt.Sprintf("%s-%d%s", stem, counter, ext)
	}

	if err := infrafs.WriteFileAtomic(s.fsys, filepath.Join(s.root, final), data); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return final, nil
}

// Open opens a stored artifact. relPath is validated against escapes from
// the attachments root.
func (s *LocalArtifactStore) Open(relPath string) (io.ReadCloser, error) {
	clean := path.Clean("/" + relPath)[1:] // collapse any ../ back inside the root
	if clean == "" {
		return nil, fmt.Errorf("invalid artifact path %q", relPath)
	}
	return s.fsys.Open(filepath.Join(s.root, filepath.FromSlash(clean)))
}

// URLToSafeFilename reduces a URL to a name safe for any filesystem. The
// scheme is dropped, path separators and shell-hostile characters become
// underscores, and trailing dots or spaces are trimmed.
func URLToSafeFilename(url string) string {
	stripped := strings.TrimSpace(url)
	stripped = strings.TrimPrefix(stripped, "http://")
	stripped = strings.TrimPrefix(stripped, "https://")

	var b strings.Builder
	b.Grow(len(stripped))
	for _, c := range stripped {
		switch {
		case c == '-' || c == '.' || c == '_':
			b.WriteRune(c)
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}

	return strings.Trim(b.String(), ". ")
}
