package ardrive

import (
	"io"
	"io/fs"
)

// FilesystemManager abstracts the sync folder so the engine can be tested
// without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	Stat(path *Path) (fs.FileInfo, error)

	// Walk returns every file and directory below root, parents before
	// children, skipping ignored entries. root itself is not included.
	Walk(root *Path) ([]*Path, error)

	// Checksum returns the content hash of a regular file as lowercase hex.
	Checksum(path *Path) (string, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(absPath string) error

	// WriteFile atomically replaces absPath with the contents of r and sets
	// its modification time.
	WriteFile(absPath string, r io.Reader, modTimeMillis int64) error

	// Rename moves a file to newPath, creating missing parent directories.
	Rename(oldPath, newPath string) error
}
