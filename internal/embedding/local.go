package embedding

import (
	"context"
	"crypto/sha256"
)

// LocalName is the provider name recorded for fallback vectors
const LocalName = "local"

// LocalProvider derives deterministic vectors from a SHA-256 of the text.
// It needs no network and is only meant for development and degraded operation.
type LocalProvider struct {
	Dim int
}

// NewLocalProvider creates a local provider producing dim-sized vectors
func NewLocalProvider(dim int) *LocalProvider {
	return &LocalProvider{Dim: dim}
}

// Name returns the provider name
func (p *LocalProvider) Name() string { return LocalName }

// EmbedBatch never fails for a positive dimension
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = LocalVector(text, p.Dim)
	}
	return out, nil
}

// LocalVector maps SHA-256(text) to [-1, 1] with b/255*2-1. Dimensions past
// 32 wrap around and reuse the digest from its first byte.
func LocalVector(text string, dim int) []float32 {
	if dim <= 0 {
		return nil
	}

	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)])/255*2 - 1
	}
	return vec
}
