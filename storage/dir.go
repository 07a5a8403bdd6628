package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/phroun/mindmap"
)

// FileSystem abstracts the file operations the directory store needs.
// The package provides a default implementation for local files.
type FileSystem interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	Rename(from, to string) error
	ReadDir(path string) ([]string, error)

	MkdirAll(path string) error
	Remove(name string) error
}

// localFileSystem implements FileSystem for local files.
type localFileSystem struct{}

// LocalFileSystem returns the FileSystem backed by the os package.
func LocalFileSystem() FileSystem { return localFileSystem{} }

func (localFileSystem) WriteFile(name string, data []byte) error {
	return os.WriteFile(name, data, 0644)
}

func (localFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (localFileSystem) Rename(from, to string) error {
	return os.Rename(from, to)
}

func (localFileSystem) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (localFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (localFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// DirStore keeps one snapshot file per document in a directory.
type DirStore struct {
	fs       FileSystem
	basePath string
	codec    Codec
}

// NewDirStore creates a store under basePath, creating the directory if
// needed. A nil codec means JSON; a nil fs means the local file system.
func NewDirStore(fsys FileSystem, basePath string, codec Codec) (*DirStore, error) {
	if fsys == nil {
		fsys = localFileSystem{}
	}
	if codec == nil {
		codec = JSON
	}
	if err := fsys.MkdirAll(basePath); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &DirStore{fs: fsys, basePath: basePath, codec: codec}, nil
}

// Path returns the file a document's snapshot is stored in.
func (s *DirStore) Path(id string) string {
	return filepath.Join(s.basePath, id+s.codec.Ext())
}

// Dir returns the store directory.
func (s *DirStore) Dir() string { return s.basePath }

// IDFromPath maps a snapshot file path back to its document ID.
func (s *DirStore) IDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if filepath.Dir(path) != filepath.Clean(s.basePath) || !strings.HasSuffix(name, s.codec.Ext()) {
		return "", false
	}
	id := strings.TrimSuffix(name, s.codec.Ext())
	return id, id != "" && !strings.HasPrefix(id, ".")
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}

// Save writes the snapshot, replacing any earlier version.
func (s *DirStore) Save(ctx context.Context, snap *mindmap.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(snap.ID); err != nil {
		return err
	}
	data, err := s.codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", snap.ID, err)
	}
	// Write then rename, so a watcher never sees a half-written file.
	tmp := filepath.Join(s.basePath, "."+snap.ID+".tmp")
	if err := s.fs.WriteFile(tmp, data); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.Path(snap.ID))
}

// Load reads a document's snapshot.
func (s *DirStore) Load(ctx context.Context, id string) (*mindmap.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := s.fs.ReadFile(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", mindmap.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.codec.Unmarshal(data)
}

// Delete removes a document's snapshot.
func (s *DirStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(id); err != nil {
		return err
	}
	err := s.fs.Remove(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", mindmap.ErrDocumentNotFound, id)
	}
	return err
}

// List returns the stored document IDs, sorted.
func (s *DirStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := s.fs.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, name := range names {
		if id, ok := s.IDFromPath(filepath.Join(s.basePath, name)); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
