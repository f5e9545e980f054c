package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
)

const maxUploadBytes = 16 << 20

type libraryImageResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimeType"`
	URL       string    `json:"url"`
	GirlID    string    `json:"girlId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListLibrary returns stored-image metadata, newest first.
func (a *App) ListLibrary(w http.ResponseWriter, r *http.Request) {
	images, err := a.Library.List(r.Context(), 100)
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]libraryImageResponse, len(images))
	for i, img := range images {
		out[i] = libraryImageResponse{
			ID:        img.ID,
			Filename:  img.Filename,
			MimeType:  img.MimeType,
			URL:       a.Store.PublicURL(img.StoragePath),
			GirlID:    img.GirlID,
			CreatedAt: img.CreatedAt,
		}
	}
	a.json(w, http.StatusOK, map[string]any{"images": out})
}

// UploadLibraryImage accepts a multipart upload and produces a stable
// stored-image id usable as a job reference.
func (a *App) UploadLibraryImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		a.fail(w, err)
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusUnprocessableEntity, "empty upload")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		a.error(w, http.StatusUnprocessableEntity, "only image uploads are supported")
		return
	}

	imageID := uuid.NewString()
	storagePath := fmt.Sprintf("library/%s%s", imageID, extensionForMIME(mimeType))
	publicURL, err := a.Store.Write(r.Context(), storagePath, data)
	if err != nil {
		a.fail(w, err)
		return
	}

	record := &domain.LibraryImage{
		ID:          imageID,
		Filename:    header.Filename,
		StoragePath: storagePath,
		MimeType:    mimeType,
		GirlID:      strings.TrimSpace(r.FormValue("girlId")),
		CreatedAt:   a.now(),
	}
	if err := a.Library.Create(r.Context(), record); err != nil {
		a.fail(w, err)
		return
	}

	a.json(w, http.StatusCreated, libraryImageResponse{
		ID:        record.ID,
		Filename:  record.Filename,
		MimeType:  record.MimeType,
		URL:       publicURL,
		GirlID:    record.GirlID,
		CreatedAt: record.CreatedAt,
	})
}

func extensionForMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
