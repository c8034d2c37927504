package metacache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSSourceStore stats paths against a local directory tree, typically a
// mounted network filesystem. The filesystem cannot provide a native
// content hash, so a (size, mtime) fingerprint stands in for one; folders
// carry no hash at all.
type FSSourceStore struct {
	rootPath string
}

func NewFSSourceStore(rootPath string) (*FSSourceStore, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source root <%s>: %w", rootPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root is not a directory: %s", rootPath)
	}

	return &FSSourceStore{rootPath: rootPath}, nil
}

func (s *FSSourceStore) StoreType() string {
	return SourceModeFS
}

func (s *FSSourceStore) Stat(ctx context.Context, path string) (*SourceStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(filepath.Join(s.rootPath, path))
	if os.IsNotExist(err) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}

	status := &SourceStatus{
		Path:         path,
		IsFolder:     info.IsDir(),
		StoreType:    SourceModeFS,
		LastModified: info.ModTime(),
	}
	if !info.IsDir() {
		status.Length = info.Size()
		status.ContentHash = StatFingerprint(info.Size(), info.ModTime())
	}

	return status, nil
}
