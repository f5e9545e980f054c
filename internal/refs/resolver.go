package refs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/providers/genai"
)

const (
	// DefaultHandleTTL stays under the provider's ~48h file expiry.
	DefaultHandleTTL = 46 * time.Hour
	// expirySafetyMargin keeps a handle from expiring between resolution and
	// the generation call that uses it.
	expirySafetyMargin = 5 * time.Minute

	maxFetchBytes = 32 << 20
)

// Uploader pushes raw bytes to the provider's file store.
type Uploader interface {
	UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (genai.FileHandle, error)
}

// ByteReader loads stored bytes by storage path.
type ByteReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// Options configures a Resolver.
type Options struct {
	Library    domain.LibraryRepository
	Cache      domain.FileCacheRepository
	Store      ByteReader
	Uploader   Uploader
	HTTPClient *http.Client
	HandleTTL  time.Duration
	Now        func() time.Time
	Logger     infra.Logger
}

// Resolver turns stored-image ids and ad-hoc URLs into provider file handles,
// uploading each stored image at most once per TTL window.
type Resolver struct {
	library    domain.LibraryRepository
	cache      domain.FileCacheRepository
	store      ByteReader
	uploader   Uploader
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time
	logger     infra.Logger
}

// NewResolver constructs a Resolver with sane defaults for optional fields.
func NewResolver(opts Options) *Resolver {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ttl := opts.HandleTTL
	if ttl <= 0 {
		ttl = DefaultHandleTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		library:    opts.Library,
		cache:      opts.Cache,
		store:      opts.Store,
		uploader:   opts.Uploader,
		httpClient: httpClient,
		ttl:        ttl,
		now:        now,
		logger:     opts.Logger,
	}
}

// ResolveStoredImage returns a provider file handle for a library image,
// reusing a cached handle while it is comfortably inside its TTL. Concurrent
// refreshes of the same expired entry may each upload; last writer wins and
// either handle is usable.
func (r *Resolver) ResolveStoredImage(ctx context.Context, imageID string) (genai.FileHandle, error) {
	now := r.now()

	entry, err := r.cache.Get(ctx, imageID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn().Err(err).Str("image_id", imageID).Msg("refs: cache read failed")
	}
	if entry != nil && entry.FileURI != "" && now.Before(entry.ExpiresAt.Add(-expirySafetyMargin)) {
		return genai.FileHandle{URI: entry.FileURI, MimeType: entry.MimeType}, nil
	}

	record, err := r.library.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return genai.FileHandle{}, fmt.Errorf("library image %s: %w", imageID, domain.ErrNotFound)
		}
		return genai.FileHandle{}, fmt.Errorf("load library image %s: %w", imageID, err)
	}

	data, err := r.store.Read(ctx, record.StoragePath)
	if err != nil {
		return genai.FileHandle{}, fmt.Errorf("read stored bytes for %s: %w", imageID, err)
	}

	displayName := record.Filename
	if displayName == "" {
		displayName = imageID + ".png"
	}
	handle, err := r.uploader.UploadFile(ctx, data, record.MimeType, displayName)
	if err != nil {
		return genai.FileHandle{}, fmt.Errorf("upload reference %s: %w", imageID, err)
	}

	if err := r.cache.Put(ctx, &domain.FileCacheEntry{
		ImageID:   imageID,
		FileURI:   handle.URI,
		MimeType:  handle.MimeType,
		ExpiresAt: now.Add(r.ttl),
		UpdatedAt: now,
	}); err != nil {
		// A failed cache write only costs a redundant upload next time.
		r.logger.Warn().Err(err).Str("image_id", imageID).Msg("refs: cache write failed")
	}

	return handle, nil
}

// ResolveURL fetches arbitrary bytes and uploads them to the provider file
// store. URLs are treated as one-shot; there is no caching.
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (genai.FileHandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return genai.FileHandle{}, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return genai.FileHandle{}, fmt.Errorf("fetch %s: %w: %v", rawURL, domain.ErrResourceFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return genai.FileHandle{}, fmt.Errorf("fetch %s: status %d: %w", rawURL, resp.StatusCode, domain.ErrResourceFetch)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return genai.FileHandle{}, fmt.Errorf("read %s: %w: %v", rawURL, domain.ErrResourceFetch, err)
	}

	mimeType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	handle, err := r.uploader.UploadFile(ctx, data, mimeType, "reference.png")
	if err != nil {
		return genai.FileHandle{}, fmt.Errorf("upload fetched reference: %w", err)
	}
	return handle, nil
}
