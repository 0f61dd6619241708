// Package media turns logical attachment references into sendable
// payloads: local files where possible, recompressed to fit the platform
// photo limit, with per-pass memoization.
package media

import (
	"context"
	"log/slog"

	"github.com/fleetline/taskbridge/internal/attachments"
	"github.com/fleetline/taskbridge/internal/storage"
	"github.com/fleetline/taskbridge/internal/telegram"
)

// Cache memoizes url → resolved payload for one reconciliation pass, so
// the same image is not re-read or recompressed twice within a pass. It is
// pass-scoped by construction: create one per pass, never share.
type Cache struct {
	entries map[string]telegram.Payload
}

// NewCache creates an empty pass-scoped cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]telegram.Payload)}
}

// Resolver resolves attachment references against local storage.
type Resolver struct {
	storage    storage.Resolver
	scratchDir string
	photoLimit int64
	logger     *slog.Logger
}

// NewResolver creates a Resolver. photoLimit is the platform single-photo
// byte cap; compression engages only above it.
func NewResolver(store storage.Resolver, scratchDir string, photoLimit int64, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		storage:    store,
		scratchDir: scratchDir,
		photoLimit: photoLimit,
		logger:     log.With(slog.String("service", "media")),
	}
}

// Resolve turns one normalized attachment into a sendable payload.
// Resolution failure degrades to the original URL so the caller can fall
// back to reference-by-URL; Resolve never fails a pass.
func (r *Resolver) Resolve(ctx context.Context, cache *Cache, att attachments.Normalized) telegram.Payload {
	if cache != nil {
		if payload, ok := cache.entries[att.URL]; ok {
			return payload
		}
	}
	payload := r.resolve(ctx, att)
	if cache != nil {
		cache.entries[att.URL] = payload
	}
	return payload
}

func (r *Resolver) resolve(ctx context.Context, att attachments.Normalized) telegram.Payload {
	fallback := telegram.Payload{URL: att.URL, Filename: att.Name, ContentType: att.Mime, Size: att.Size}
	if att.FileID == "" || r.storage == nil {
		return fallback
	}
	stored, err := r.storage.ResolveStoredFile(ctx, att.FileID)
	if err != nil {
		r.logger.Warn("resolve stored file failed",
			slog.String("file_id", att.FileID), slog.Any("error", err))
		return fallback
	}
	if stored == nil {
		return fallback
	}
	payload := telegram.Payload{
		Path:        stored.AbsolutePath,
		Filename:    stored.Filename,
		ContentType: stored.ContentType,
		Size:        stored.Size,
	}
	if att.Kind == attachments.KindImage && r.photoLimit > 0 && stored.Size > r.photoLimit {
		compressedPath, compressedSize, err := r.compressImage(stored.AbsolutePath)
		if err != nil {
			r.logger.Warn("image compression failed",
				slog.String("file_id", att.FileID), slog.Any("error", err))
			return payload
		}
		payload.Path = compressedPath
		payload.Size = compressedSize
		payload.ContentType = "image/jpeg"
	}
	return payload
}
