package video

import (
	"context"

	"mediabatch/internal/providers/genai"
)

// GenerateRequest describes a normalized request passed to any video provider.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	Seed           *uint64
	Model          string
	RequestID      string
}

// Asset represents one generated video.
type Asset struct {
	Data   []byte
	Format string
}

// Generator is the contract implemented by all video providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Asset, error)
}

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (Asset, error) {
	asset, err := g.client.GenerateVideo(ctx, genai.VideoRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Model:          req.Model,
		RequestID:      req.RequestID,
	})
	if err != nil {
		return Asset{}, err
	}
	return Asset{Data: asset.Data, Format: asset.Format}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
