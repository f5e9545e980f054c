package image

import (
	"context"

	"studio/internal/providers/genai"
)

// GeminiGenerator adapts the genai client to the Generator contract.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	out, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Files:       req.Files,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		ImageSize:   req.ImageSize,
		ImageOnly:   req.ImageOnly,
		RequestID:   req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	result := &Result{Text: out.Text, Assets: make([]Asset, len(out.Images))}
	for i, img := range out.Images {
		result.Assets[i] = Asset{Data: img.Data, MimeType: img.MimeType}
	}
	return result, nil
}

var _ Generator = (*GeminiGenerator)(nil)
