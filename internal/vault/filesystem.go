package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ardrive-go/internal/ardrive"
)

// FileSystemVault stores bodies and metadata as files:
//
//	<root>/
//	  content/<first two chars of txID>/<txID>
//	  metadata/<login>/<name>
//	  metadata/<login>/<name>.version
type FileSystemVault struct {
	name        string
	root        string
	contentDir  string
	metadataDir string
}

// NewFileSystemVault creates a vault rooted at root, creating its directories.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	v := &FileSystemVault{
		name:        name,
		root:        root,
		contentDir:  filepath.Join(root, "content"),
		metadataDir: filepath.Join(root, "metadata"),
	}
	for _, dir := range []string{v.contentDir, v.metadataDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating vault directory: %w", err)
		}
	}
	return v, nil
}

// contentPath shards bodies by ID prefix to keep directories small.
func (v *FileSystemVault) contentPath(txID string) (string, error) {
	if len(txID) < 2 || strings.ContainsAny(txID, `/\.`) {
		return "", fmt.Errorf("invalid transaction id %q", txID)
	}
	return filepath.Join(v.contentDir, txID[:2], txID), nil
}

func (v *FileSystemVault) metadataPath(login, name string) (string, error) {
	for _, part := range []string{login, name} {
		if part == "" || strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return "", fmt.Errorf("invalid metadata key %q/%q", login, name)
		}
	}
	return filepath.Join(v.metadataDir, login, name), nil
}

// PutContent stores the body of txID. Bodies are immutable: an existing
// body is kept and the reader is drained.
func (v *FileSystemVault) PutContent(txID string, r io.Reader, size int64) error {
	dest, err := v.contentPath(txID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		n, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("reading content: %w", err)
		}
		if n != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
		}
		return nil
	}
	return writeAtomic(dest, r, size)
}

func (v *FileSystemVault) GetContent(txID string, w io.Writer) error {
	src, err := v.contentPath(txID)
	if err != nil {
		return err
	}
	return readInto(src, w, "content "+txID)
}

func (v *FileSystemVault) HasContent(txID string) (bool, error) {
	src, err := v.contentPath(txID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(src)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking content %s: %w", txID, err)
	}
}

func (v *FileSystemVault) DeleteContent(txID string) error {
	src, err := v.contentPath(txID)
	if err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting content %s: %w", txID, err)
	}
	return nil
}

func (v *FileSystemVault) PutMetadata(login, name string, r io.Reader, size int64, version int64) error {
	dest, err := v.metadataPath(login, name)
	if err != nil {
		return err
	}
	if err := writeAtomic(dest, r, size); err != nil {
		return err
	}
	ver := strconv.FormatInt(version, 10)
	if err := writeAtomic(dest+".version", strings.NewReader(ver), int64(len(ver))); err != nil {
		return fmt.Errorf("writing metadata version: %w", err)
	}
	return nil
}

func (v *FileSystemVault) GetMetadata(login, name string, w io.Writer) error {
	src, err := v.metadataPath(login, name)
	if err != nil {
		return err
	}
	return readInto(src, w, fmt.Sprintf("metadata %q for %s", name, login))
}

// GetMetadataVersion returns 0 when no version has been stored.
func (v *FileSystemVault) GetMetadataVersion(login, name string) (int64, error) {
	src, err := v.metadataPath(login, name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(src + ".version")
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the vault directories exist.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.contentDir, v.metadataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeAtomic writes exactly size bytes from r to dest via a temp file and rename.
func writeAtomic(dest string, r io.Reader, size int64) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	ok = true
	return nil
}

func readInto(src string, w io.Writer, what string) error {
	f, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", what, ardrive.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", what, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %s: %w", what, err)
	}
	return nil
}

var _ ardrive.Vault = (*FileSystemVault)(nil)
