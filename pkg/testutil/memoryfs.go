package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryFS implements types.FS with in-memory storage. It supports the
// operations the backup engine needs: stat, read/write, directory
// creation and listing, rename (including whole subtrees) and removal.
type MemoryFS struct {
	mu    sync.RWMutex
	nodes map[string]*memNode

	// errorPaths injects errors for specific paths
	errorPaths map[string]error
	// readErrors injects errors for ReadFile only, leaving Stat intact
	readErrors map[string]error
}

type memNode struct {
	mode    fs.FileMode
	modTime time.Time
	content []byte
	isDir   bool
}

// NewMemoryFS creates a new in-memory filesystem with a root directory.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		nodes: map[string]*memNode{
			"/": {mode: 0755 | fs.ModeDir, modTime: time.Now(), isDir: true},
		},
		errorPaths: make(map[string]error),
		readErrors: make(map[string]error),
	}
}

// InjectError makes every operation on path fail with err.
func (m *MemoryFS) InjectError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorPaths[filepath.Clean(path)] = err
}

// InjectReadError makes ReadFile on path fail with err while Stat and
// the other operations keep working.
func (m *MemoryFS) InjectReadError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrors[filepath.Clean(path)] = err
}

func (m *MemoryFS) get(path string) (*memNode, error) {
	path = filepath.Clean(path)
	if err, ok := m.errorPaths[path]; ok {
		return nil, err
	}
	node, ok := m.nodes[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return node, nil
}

func (m *MemoryFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return &memFileInfo{name: filepath.Base(filepath.Clean(name)), node: node}, nil
}

func (m *MemoryFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.readErrors[filepath.Clean(name)]; ok {
		return nil, err
	}
	node, err := m.get(name)
	if err != nil {
		return nil, err
	}
	if node.isDir {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	out := make([]byte, len(node.content))
	copy(out, node.content)
	return out, nil
}

func (m *MemoryFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if err, ok := m.errorPaths[name]; ok {
		return err
	}
	parent, ok := m.nodes[filepath.Dir(name)]
	if !ok || !parent.isDir {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrNotExist}
	}
	if node, ok := m.nodes[name]; ok && node.isDir {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrInvalid}
	}
	content := make([]byte, len(data))
	copy(content, data)
	m.nodes[name] = &memNode{mode: perm, modTime: time.Now(), content: content}
	return nil
}

func (m *MemoryFS) MkdirAll(path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err, ok := m.errorPaths[path]; ok {
		return err
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := "/"
	for _, part := range parts {
		if part == "" {
			continue
		}
		current = filepath.Join(current, part)
		if node, ok := m.nodes[current]; ok {
			if !node.isDir {
				return &fs.PathError{Op: "mkdir", Path: current, Err: fs.ErrExist}
			}
			continue
		}
		m.nodes[current] = &memNode{mode: perm | fs.ModeDir, modTime: time.Now(), isDir: true}
	}
	return nil
}

func (m *MemoryFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	node, err := m.get(name)
	if err != nil {
		return nil, err
	}
	if !node.isDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}

	var entries []fs.DirEntry
	for path, child := range m.nodes {
		if path == name {
			continue
		}
		if filepath.Dir(path) == name {
			entries = append(entries, &memDirEntry{name: filepath.Base(path), node: child})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *MemoryFS) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldpath = filepath.Clean(oldpath)
	newpath = filepath.Clean(newpath)
	if err, ok := m.errorPaths[oldpath]; ok {
		return err
	}
	node, ok := m.nodes[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	if _, ok := m.nodes[newpath]; ok {
		return &fs.PathError{Op: "rename", Path: newpath, Err: fs.ErrExist}
	}
	if parent, ok := m.nodes[filepath.Dir(newpath)]; !ok || !parent.isDir {
		return &fs.PathError{Op: "rename", Path: newpath, Err: fs.ErrNotExist}
	}

	// Move the node and, for directories, the whole subtree.
	m.nodes[newpath] = node
	delete(m.nodes, oldpath)
	if node.isDir {
		prefix := oldpath + "/"
		for path, child := range m.nodes {
			if strings.HasPrefix(path, prefix) {
				m.nodes[filepath.Join(newpath, strings.TrimPrefix(path, prefix))] = child
				delete(m.nodes, path)
			}
		}
	}
	return nil
}

func (m *MemoryFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if err, ok := m.errorPaths[name]; ok {
		return err
	}
	node, ok := m.nodes[name]
	if !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	if node.isDir {
		prefix := name + "/"
		for path := range m.nodes {
			if strings.HasPrefix(path, prefix) {
				return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrInvalid}
			}
		}
	}
	delete(m.nodes, name)
	return nil
}

func (m *MemoryFS) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err, ok := m.errorPaths[path]; ok {
		return err
	}
	delete(m.nodes, path)
	prefix := path + "/"
	for p := range m.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(m.nodes, p)
		}
	}
	return nil
}

// Exists reports whether a path exists, for test assertions.
func (m *MemoryFS) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[filepath.Clean(path)]
	return ok
}

type memFileInfo struct {
	name string
	node *memNode
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return int64(len(fi.node.content)) }
func (fi *memFileInfo) Mode() fs.FileMode  { return fi.node.mode }
func (fi *memFileInfo) ModTime() time.Time { return fi.node.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.node.isDir }
func (fi *memFileInfo) Sys() interface{}   { return nil }

type memDirEntry struct {
	name string
	node *memNode
}

func (de *memDirEntry) Name() string      { return de.name }
func (de *memDirEntry) IsDir() bool       { return de.node.isDir }
func (de *memDirEntry) Type() fs.FileMode { return de.node.mode.Type() }
func (de *memDirEntry) Info() (fs.FileInfo, error) {
	return &memFileInfo{name: de.name, node: de.node}, nil
}

var _ os.FileInfo = (*memFileInfo)(nil)
