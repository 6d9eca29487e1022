package image

import "context"

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	Seed           *uint64
	Quality        string
	AspectRatio    string
	Model          string
	RequestID      string
}

// Asset represents one generated image.
type Asset struct {
	Data   []byte
	Format string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Asset, error)
}
