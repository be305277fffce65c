package fs

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"ardrive-go/internal/ardrive"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a filesystem manager that skips entries
// matching the default patterns plus the given ones. The ignore file at the
// root of each walk is read on every Walk.
func NewOSFilesystemManager(patterns []string) *OSFilesystemManager {
	return &OSFilesystemManager{
		ignore: NewIgnoreMatcher(defaultIgnorePatterns).With(patterns),
	}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*ardrive.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if err := checkMode(absPath, info.Mode()); err != nil {
		return nil, err
	}

	return ardrive.NewPath(absPath, info.IsDir(), info), nil
}

func checkMode(absPath string, mode fs.FileMode) error {
	switch {
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("symlinks not supported: %s", absPath)
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("device files not supported: %s", absPath)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("named pipes not supported: %s", absPath)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("sockets not supported: %s", absPath)
	}
	return nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *ardrive.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path *ardrive.Path) (fs.FileInfo, error) {
	return os.Stat(path.String())
}

// Walk returns the files and folders below root in lexical order, which puts
// every folder before its contents. Special files are skipped.
func (m *OSFilesystemManager) Walk(root *ardrive.Path) ([]*ardrive.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	extra, err := ParseIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := m.ignore.With(extra)

	var paths []*ardrive.Path
	err = filepath.WalkDir(root.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root.String() {
			return nil
		}
		rel, err := filepath.Rel(root.String(), p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, ardrive.NewPath(p, d.IsDir(), info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}

// Checksum returns the BLAKE3-256 digest of the file as lowercase hex.
func (m *OSFilesystemManager) Checksum(path *ardrive.Path) (string, error) {
	f, err := m.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader returns the BLAKE3-256 digest of everything read from r as lowercase hex.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MkdirAll creates a directory and any missing parents.
func (m *OSFilesystemManager) MkdirAll(absPath string) error {
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

// WriteFile writes r to a temporary sibling of absPath and renames it into
// place, so readers never observe a partially written file.
func (m *OSFilesystemManager) WriteFile(absPath string, r io.Reader, modTimeMillis int64) error {
	dir := filepath.Dir(absPath)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", absPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", absPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if modTimeMillis > 0 {
		mtime := time.UnixMilli(modTimeMillis)
		if err := os.Chtimes(tmpName, mtime, mtime); err != nil {
			return fmt.Errorf("setting modification time: %w", err)
		}
	}
	if err := os.Rename(tmpName, absPath); err != nil {
		return fmt.Errorf("replacing %s: %w", absPath, err)
	}
	return nil
}

var _ ardrive.FilesystemManager = (*OSFilesystemManager)(nil)

// Rename moves a file to newPath, creating its parent directory first.
func (m *OSFilesystemManager) Rename(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("renaming %s: %w", oldPath, err)
	}
	return nil
}
