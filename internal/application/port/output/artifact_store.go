package output

import (
	"context"
	"io"

	"github.com/wassup-/textpod/internal/domain/model/note"
)

// ArtifactStore owns the local attachments directory: where capture tools
// write their artifacts and where uploaded files land. Paths handed out to
// callers are relative to the attachments root so they stay meaningful if
// the root moves.
type ArtifactStore interface {
	// DestPath maps a reference URL to the artifact destination for its
	// capture kind. Returns the absolute path (for the tool invocation) and
	// the root-relative path (for the attachment record).
	DestPath(kind note.CaptureKind, url string) (absPath string, relPath string, err error)

	// SaveUpload stores an uploaded file under a collision-free name derived
	// from the original, returning the root-relative path.
	SaveUpload(name string, data []byte) (relPath string, err error)

	// Open opens a stored artifact for reading.
	Open(relPath string) (io.ReadCloser, error)
}

// MirrorRequest is one artifact copy pushed to a remote mirror.
type MirrorRequest struct {
	Key         string            // root-relative artifact path
	Content     []byte            // artifact content
	ContentType string            // MIME type (optional)
	Metadata    map[string]string // additional metadata
}

// ArtifactMirror pushes copies of completed artifacts to remote storage.
// Mirroring is best-effort: failures are logged by callers, never allowed to
// fail the capture that produced the artifact.
type ArtifactMirror interface {
	// Mirror uploads one artifact copy and returns its storage location.
	Mirror(ctx context.Context, req MirrorRequest) (string, error)
}
