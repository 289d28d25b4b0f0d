package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FsyncFile syncs file contents to disk.
// This ensures that all buffered data is written to persistent storage.
func FsyncFile(f afero.File) error {
	if f == nil {
		return fmt.Errorf("FsyncFile: file is nil")
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("FsyncFile: failed to sync file %s: %w", f.Name(), err)
	}
	return nil
}

// FsyncDir syncs directory metadata to disk. This matters after creating or
// renaming files so the directory entry itself is persisted. In-memory
// filesystems have no directory durability, so anything that is not the real
// OS filesystem is a no-op.
func FsyncDir(fsys afero.Fs, dirPath string) error {
	if dirPath == "" {
		return fmt.Errorf("FsyncDir: directory path is empty")
	}
	if _, ok := fsys.(*afero.OsFs); !ok {
		return nil
	}

	dir, err := os.Open(dirPath)
	if err != nil {
		return fmt.Errorf("FsyncDir: failed to open directory %s: %w", dirPath, err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("FsyncDir: failed to sync directory %s: %w", dirPath, err)
	}
	return nil
}

// WriteFileAtomic writes data to a file atomically using temp file + rename.
// This ensures that the file is either fully written or not written at all.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Temp file in the same directory so the rename stays on one filesystem
	tmpFile, err := afero.TempFile(fsys, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		// Always try to remove temp file if it still exists (error case)
		fsys.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := fsys.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	return FsyncDir(fsys, dir)
}
