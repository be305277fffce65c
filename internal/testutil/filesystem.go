package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ardrive-go/internal/ardrive"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are absolute and cleaned. Safe for concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file with a fixed modification time, creating missing parents.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.AddFileAt(path, content, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

// AddFileAt adds a file with the given modification time, creating missing parents.
func (m *MockFilesystemManager) AddFileAt(path string, content []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.mkdirAllLocked(filepath.Dir(path))
	m.files[path] = &MockFile{
		Content:     append([]byte(nil), content...),
		Permissions: 0644,
		ModTime:     modTime,
	}
}

// AddDirectory adds a directory and its missing parents.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(filepath.Clean(path))
}

// Remove deletes path and everything below it.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	for p := range m.files {
		if p == path || strings.HasPrefix(p, path+string(filepath.Separator)) {
			delete(m.files, p)
		}
	}
}

// Content returns the content of the file at path.
func (m *MockFilesystemManager) Content(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok || f.IsDirectory {
		return nil, false
	}
	return append([]byte(nil), f.Content...), true
}

// Get returns the entry at path.
func (m *MockFilesystemManager) Get(path string) (*MockFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	return f, ok
}

func (m *MockFilesystemManager) mkdirAllLocked(path string) {
	for p := path; ; p = filepath.Dir(p) {
		if f, ok := m.files[p]; ok && f.IsDirectory {
			break
		}
		m.files[p] = &MockFile{
			Permissions: 0755,
			ModTime:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			IsDirectory: true,
		}
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*ardrive.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}
	return ardrive.NewPath(absPath, file.IsDirectory, newMockFileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path *ardrive.Path) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *ardrive.Path) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	return newMockFileInfo(path.String(), file), nil
}

func (m *MockFilesystemManager) Walk(root *ardrive.Path) ([]*ardrive.Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[root.String()]; !ok || !f.IsDirectory {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	prefix := root.String() + string(filepath.Separator)
	var names []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			names = append(names, p)
		}
	}
	sort.Strings(names)

	paths := make([]*ardrive.Path, 0, len(names))
	for _, p := range names {
		f := m.files[p]
		paths = append(paths, ardrive.NewPath(p, f.IsDirectory, newMockFileInfo(p, f)))
	}
	return paths, nil
}

func (m *MockFilesystemManager) Checksum(path *ardrive.Path) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok || file.IsDirectory {
		return "", fmt.Errorf("not a file: %s", path.String())
	}
	return Blake3Hex(file.Content), nil
}

func (m *MockFilesystemManager) MkdirAll(absPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(filepath.Clean(absPath))
	return nil
}

func (m *MockFilesystemManager) WriteFile(absPath string, r io.Reader, modTimeMillis int64) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.AddFileAt(absPath, content, time.UnixMilli(modTimeMillis).UTC())
	return nil
}

func (m *MockFilesystemManager) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldPath, newPath = filepath.Clean(oldPath), filepath.Clean(newPath)
	f, ok := m.files[oldPath]
	if !ok {
		return fmt.Errorf("renaming %s: %w", oldPath, fs.ErrNotExist)
	}
	if _, exists := m.files[newPath]; exists && f.IsDirectory {
		return fmt.Errorf("renaming %s: %w", oldPath, fs.ErrExist)
	}
	var children []string
	if f.IsDirectory {
		prefix := oldPath + string(filepath.Separator)
		for p := range m.files {
			if strings.HasPrefix(p, prefix) {
				children = append(children, p)
			}
		}
	}
	m.mkdirAllLocked(filepath.Dir(newPath))
	delete(m.files, oldPath)
	m.files[newPath] = f
	for _, p := range children {
		child := m.files[p]
		delete(m.files, p)
		m.files[filepath.Join(newPath, strings.TrimPrefix(p, oldPath))] = child
	}
	return nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func newMockFileInfo(path string, f *MockFile) *mockFileInfo {
	mode := f.Permissions
	if f.IsDirectory {
		mode |= fs.ModeDir
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    mode,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
	}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ ardrive.FilesystemManager = (*MockFilesystemManager)(nil)
