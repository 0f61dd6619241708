// Package storage resolves stored-file references to local paths.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal indicates a file id attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
)

// StoredFile describes a locally stored upload.
type StoredFile struct {
	AbsolutePath string
	Filename     string
	ContentType  string
	Size         int64
}

// Resolver maps a stored-file id to its on-disk representation.
type Resolver interface {
	// ResolveStoredFile returns nil (with nil error) when the file id has
	// no local representation; callers fall back to reference-by-URL.
	ResolveStoredFile(ctx context.Context, fileID string) (*StoredFile, error)
}

// FSResolver resolves file ids against a flat directory layout:
// <root>/<file id>/<original filename>.
type FSResolver struct {
	root string
}

// NewFSResolver creates a filesystem resolver rooted at dir.
func NewFSResolver(dir string) *FSResolver {
	return &FSResolver{root: dir}
}

func (r *FSResolver) ResolveStoredFile(_ context.Context, fileID string) (*StoredFile, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, nil
	}
	if strings.Contains(fileID, "..") || strings.ContainsAny(fileID, `/\`) {
		return nil, ErrPathTraversal
	}
	dir := filepath.Join(r.root, fileID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stored file dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat stored file: %w", err)
		}
		name := entry.Name()
		contentType := mime.TypeByExtension(filepath.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &StoredFile{
			AbsolutePath: filepath.Join(dir, name),
			Filename:     name,
			ContentType:  contentType,
			Size:         info.Size(),
		}, nil
	}
	return nil, nil
}
