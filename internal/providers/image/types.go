package image

import (
	"context"

	"studio/internal/providers/genai"
)

// GenerateRequest describes a normalized request passed to an image provider.
// Files carry previously uploaded reference handles in the ordinal order the
// prompt refers to them.
type GenerateRequest struct {
	Files       []genai.FileHandle
	Prompt      string
	AspectRatio string
	ImageSize   string
	ImageOnly   bool
	RequestID   string
}

// Asset is one generated image plus any accompanying model commentary.
type Asset struct {
	Data     []byte
	MimeType string
}

// Result is the provider response for one generation call.
type Result struct {
	Assets []Asset
	Text   string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Result, error)
}
