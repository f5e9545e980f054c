package domain

import "time"

// LibraryImage is the metadata record of a stored reference image. The bytes
// themselves live in durable storage under StoragePath.
type LibraryImage struct {
	ID          string
	Filename    string
	StoragePath string
	MimeType    string
	GirlID      string
	CreatedAt   time.Time
}

// FileCacheEntry maps a stored-image id to a previously uploaded provider file
// handle. Valid only while now is comfortably before ExpiresAt; expired
// entries are re-derived from the stored bytes.
type FileCacheEntry struct {
	ImageID   string
	FileURI   string
	MimeType  string
	ExpiresAt time.Time
	UpdatedAt time.Time
}
