package embedding

import (
	"context"
	"fmt"

	"github.com/DreamCats/docrag/internal/config"
)

// HuggingFaceProvider calls a Hugging Face feature-extraction endpoint
type HuggingFaceProvider struct {
	*remote
}

type huggingFaceRequest struct {
	Inputs []string `json:"inputs"`
}

// NewHuggingFaceProvider creates a Hugging Face provider. An api key is required.
func NewHuggingFaceProvider(cfg config.RemoteConfig, opts ...RemoteOption) (*HuggingFaceProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface api_key is required")
	}
	r, err := newRemote(config.ProviderHuggingFace, cfg.URL, cfg.APIKey, opts)
	if err != nil {
		return nil, err
	}
	return &HuggingFaceProvider{remote: r}, nil
}

// Name returns the provider name
func (p *HuggingFaceProvider) Name() string { return p.name }

// EmbedBatch sends the whole batch in one request
func (p *HuggingFaceProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return p.call(ctx, huggingFaceRequest{Inputs: texts}, len(texts))
}
