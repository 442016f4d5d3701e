package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Provider turns a batch of texts into vectors, one per text, in input order
type Provider interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrNoProviders is returned when no remote provider is configured and the
// local fallback is disabled.
var ErrNoProviders = errors.New("no embedding provider configured: set a provider url or a positive fallback_dim")

// ProviderError reports a failed provider call: transport, HTTP status or request setup
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CountMismatchError is returned when a provider answers with a different
// number of vectors than texts sent.
type CountMismatchError struct {
	Provider string
	Want     int
	Got      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("%s: embedding count mismatch: texts=%d embeddings=%d", e.Provider, e.Want, e.Got)
}

// IsTemporary reports whether err is worth retrying against the same provider.
// Every transport, status and payload failure is; a count mismatch is not.
// Cancellation of the caller's context is checked by the retry loop itself.
func IsTemporary(err error) bool {
	var mismatch *CountMismatchError
	if errors.As(err, &mismatch) {
		return false
	}
	var pe *ProviderError
	var ne *NormalizationError
	return errors.As(err, &pe) || errors.As(err, &ne)
}
