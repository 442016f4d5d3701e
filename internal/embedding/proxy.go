package embedding

import (
	"context"

	"github.com/DreamCats/docrag/internal/config"
)

// ProxyProvider calls an embedding proxy (for example a Gemini gateway)
// that accepts {"texts": [...]}.
type ProxyProvider struct {
	*remote
}

type proxyRequest struct {
	Texts []string `json:"texts"`
}

// NewProxyProvider creates a proxy provider. The api key is optional.
func NewProxyProvider(cfg config.RemoteConfig, opts ...RemoteOption) (*ProxyProvider, error) {
	r, err := newRemote(config.ProviderProxy, cfg.URL, cfg.APIKey, opts)
	if err != nil {
		return nil, err
	}
	return &ProxyProvider{remote: r}, nil
}

// Name returns the provider name
func (p *ProxyProvider) Name() string { return p.name }

// EmbedBatch sends the whole batch in one request
func (p *ProxyProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return p.call(ctx, proxyRequest{Texts: texts}, len(texts))
}
