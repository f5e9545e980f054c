package refs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/providers/genai"
)

type fakeLibrary struct {
	images map[string]*domain.LibraryImage
}

func (f *fakeLibrary) Create(_ context.Context, _ *domain.LibraryImage) error { return nil }

func (f *fakeLibrary) GetByID(_ context.Context, imageID string) (*domain.LibraryImage, error) {
	img, ok := f.images[imageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (f *fakeLibrary) List(_ context.Context, _ int) ([]domain.LibraryImage, error) {
	return nil, nil
}

type fakeCache struct {
	entries map[string]*domain.FileCacheEntry
	putErr  error
}

func (f *fakeCache) Get(_ context.Context, imageID string) (*domain.FileCacheEntry, error) {
	entry, ok := f.entries[imageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return entry, nil
}

func (f *fakeCache) Put(_ context.Context, entry *domain.FileCacheEntry) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.entries == nil {
		f.entries = make(map[string]*domain.FileCacheEntry)
	}
	f.entries[entry.ImageID] = entry
	return nil
}

type fakeByteReader struct {
	data map[string][]byte
}

func (f *fakeByteReader) Read(_ context.Context, path string) ([]byte, error) {
	data, ok := f.data[path]
	if !ok {
		return nil, fmt.Errorf("no bytes at %s", path)
	}
	return data, nil
}

type countingUploader struct {
	calls int
	err   error
}

func (u *countingUploader) UploadFile(_ context.Context, _ []byte, mimeType, _ string) (genai.FileHandle, error) {
	u.calls++
	if u.err != nil {
		return genai.FileHandle{}, u.err
	}
	return genai.FileHandle{URI: fmt.Sprintf("files/upload-%d", u.calls), MimeType: mimeType}, nil
}

func TestResolveStoredImageUploadsOncePerTTL(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	library := &fakeLibrary{images: map[string]*domain.LibraryImage{
		"img-1": {ID: "img-1", StoragePath: "library/img-1.png", MimeType: "image/png", Filename: "ref.png"},
	}}
	cache := &fakeCache{}
	uploader := &countingUploader{}

	r := NewResolver(Options{
		Library:  library,
		Cache:    cache,
		Store:    &fakeByteReader{data: map[string][]byte{"library/img-1.png": []byte("png")}},
		Uploader: uploader,
		Now:      func() time.Time { return now },
		Logger:   zerolog.New(io.Discard),
	})

	first, err := r.ResolveStoredImage(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.ResolveStoredImage(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if uploader.calls != 1 {
		t.Fatalf("uploads = %d, want 1 (cache must serve the second call)", uploader.calls)
	}
	if first.URI != second.URI {
		t.Fatalf("handles differ: %q vs %q", first.URI, second.URI)
	}

	entry := cache.entries["img-1"]
	if entry == nil {
		t.Fatal("cache entry not written")
	}
	if want := now.Add(DefaultHandleTTL); !entry.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", entry.ExpiresAt, want)
	}
}

func TestResolveStoredImageRefreshesExpiredHandle(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	library := &fakeLibrary{images: map[string]*domain.LibraryImage{
		"img-1": {ID: "img-1", StoragePath: "library/img-1.png", MimeType: "image/png"},
	}}
	cache := &fakeCache{}
	uploader := &countingUploader{}

	r := NewResolver(Options{
		Library:  library,
		Cache:    cache,
		Store:    &fakeByteReader{data: map[string][]byte{"library/img-1.png": []byte("png")}},
		Uploader: uploader,
		Now:      func() time.Time { return clock },
		Logger:   zerolog.New(io.Discard),
	})

	if _, err := r.ResolveStoredImage(context.Background(), "img-1"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	// Inside the safety margin of the TTL the handle counts as expired.
	clock = now.Add(DefaultHandleTTL - time.Minute)
	if _, err := r.ResolveStoredImage(context.Background(), "img-1"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if uploader.calls != 2 {
		t.Fatalf("uploads = %d, want 2 (expired handle must be refreshed)", uploader.calls)
	}
}

func TestResolveStoredImageUnknownID(t *testing.T) {
	r := NewResolver(Options{
		Library:  &fakeLibrary{},
		Cache:    &fakeCache{},
		Store:    &fakeByteReader{},
		Uploader: &countingUploader{},
		Logger:   zerolog.New(io.Discard),
	})

	_, err := r.ResolveStoredImage(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveStoredImageCacheWriteFailureIsNonFatal(t *testing.T) {
	library := &fakeLibrary{images: map[string]*domain.LibraryImage{
		"img-1": {ID: "img-1", StoragePath: "library/img-1.png", MimeType: "image/png"},
	}}
	r := NewResolver(Options{
		Library:  library,
		Cache:    &fakeCache{putErr: errors.New("db down")},
		Store:    &fakeByteReader{data: map[string][]byte{"library/img-1.png": []byte("png")}},
		Uploader: &countingUploader{},
		Logger:   zerolog.New(io.Discard),
	})

	handle, err := r.ResolveStoredImage(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if handle.URI == "" {
		t.Fatal("handle missing despite successful upload")
	}
}

func TestResolveURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	uploader := &countingUploader{}
	r := NewResolver(Options{
		Uploader:   uploader,
		HTTPClient: srv.Client(),
		Logger:     zerolog.New(io.Discard),
	})

	handle, err := r.ResolveURL(context.Background(), srv.URL+"/ref.jpg")
	if err != nil {
		t.Fatalf("ResolveURL: %v", err)
	}
	if handle.MimeType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", handle.MimeType)
	}
	if uploader.calls != 1 {
		t.Fatalf("uploads = %d, want 1", uploader.calls)
	}
}

func TestResolveURLNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewResolver(Options{
		Uploader:   &countingUploader{},
		HTTPClient: srv.Client(),
		Logger:     zerolog.New(io.Discard),
	})

	_, err := r.ResolveURL(context.Background(), srv.URL+"/missing.png")
	if !errors.Is(err, domain.ErrResourceFetch) {
		t.Fatalf("err = %v, want ErrResourceFetch", err)
	}
}
