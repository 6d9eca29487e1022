package image

import (
	"context"

	"mediabatch/internal/providers/genai"
)

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (Asset, error) {
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Quality:        req.Quality,
		AspectRatio:    req.AspectRatio,
		Model:          req.Model,
		RequestID:      req.RequestID,
	})
	if err != nil {
		return Asset{}, err
	}
	return Asset{Data: asset.Data, Format: asset.Format}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
