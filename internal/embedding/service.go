package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DreamCats/docrag/internal/config"
)

// Service embeds texts in batches, falling through remote providers in
// priority order and finally to the local provider.
type Service struct {
	remotes      []Provider
	fallback     *LocalProvider // nil when fallback is disabled
	batchSize    int
	retries      int
	backoff      time.Duration
	batchTimeout time.Duration

	sleep func(ctx context.Context, d time.Duration) error

	batches   atomic.Int64
	fallbacks atomic.Int64
	retried   atomic.Int64
	mismatch  atomic.Int64

	mu        sync.Mutex
	successes map[string]int64
}

// Stats is a snapshot of the service counters
type Stats struct {
	Batches    int64            `json:"batches"`
	Fallbacks  int64            `json:"fallbacks"`
	Retries    int64            `json:"retries"`
	Mismatches int64            `json:"count_mismatches"`
	Successes  map[string]int64 `json:"successes"`
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithProviders replaces the remote providers built from configuration.
func WithProviders(providers ...Provider) ServiceOption {
	return func(s *Service) {
		s.remotes = providers
	}
}

// NewService creates an embedding service from configuration. Remote providers
// without a url are skipped; with none left and fallback_dim <= 0 it returns
// ErrNoProviders.
func NewService(cfg *config.EmbeddingConfig, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		batchSize:    cfg.BatchSize,
		retries:      cfg.Retries,
		backoff:      cfg.Backoff,
		batchTimeout: cfg.BatchTimeout,
		sleep:        sleepContext,
		successes:    make(map[string]int64),
	}
	if svc.batchSize <= 0 {
		svc.batchSize = 16
	}
	if svc.retries < 0 {
		svc.retries = 0
	}

	remotes, err := buildRemotes(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	svc.remotes = remotes

	for _, opt := range opts {
		opt(svc)
	}

	if cfg.FallbackDim > 0 {
		svc.fallback = NewLocalProvider(cfg.FallbackDim)
	}
	if len(svc.remotes) == 0 && svc.fallback == nil {
		return nil, ErrNoProviders
	}

	return svc, nil
}

func buildRemotes(cfg *config.EmbeddingConfig) ([]Provider, error) {
	limiter := NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	// Providers share one client and so one connection pool
	client := &http.Client{Timeout: timeout}
	opts := []RemoteOption{WithHTTPClient(client), WithLimiter(limiter)}

	var remotes []Provider
	for _, name := range cfg.RemoteProviders() {
		rc, _ := cfg.Remote(name)

		var (
			p   Provider
			err error
		)
		switch name {
		case config.ProviderProxy:
			p, err = NewProxyProvider(rc, opts...)
		case config.ProviderHuggingFace:
			p, err = NewHuggingFaceProvider(rc, opts...)
		default:
			return nil, fmt.Errorf("unsupported embedding provider: %s", name)
		}
		if err != nil {
			return nil, err
		}
		log.Printf("Embedding provider %s: %s", name, redactedEndpoint(rc.URL))
		remotes = append(remotes, p)
	}
	return remotes, nil
}

// Providers returns the remote provider names in priority order
func (s *Service) Providers() []string {
	names := make([]string, len(s.remotes))
	for i, p := range s.remotes {
		names[i] = p.Name()
	}
	return names
}

// FallbackDim returns the local fallback dimension, 0 when disabled
func (s *Service) FallbackDim() int {
	if s.fallback == nil {
		return 0
	}
	return s.fallback.Dim
}

// EmbedOne embeds a single text
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embed returns one vector per text, in input order. Batches run sequentially.
// Provider failures are absorbed by falling through to the next provider and
// then to the local fallback; only cancellation of ctx, or failure of every
// provider with the fallback disabled, returns an error.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _, err := s.EmbedDetailed(ctx, texts)
	return vecs, err
}

// EmbedDetailed is Embed that also names the provider behind each vector
func (s *Service) EmbedDetailed(ctx context.Context, texts []string) ([][]float32, []string, error) {
	out := make([][]float32, 0, len(texts))
	providers := make([]string, 0, len(texts))

	for start := 0; start < len(texts); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, name, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
		for range vecs {
			providers = append(providers, name)
		}
	}

	return out, providers, nil
}

// Degraded reports whether a vector from provider is a fallback standing in
// for a remote provider that failed.
func (s *Service) Degraded(provider string) bool {
	return provider == LocalName && len(s.remotes) > 0
}

func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, string, error) {
	s.batches.Add(1)

	var remoteErr error
	if len(s.remotes) > 0 {
		bctx, cancel := ctx, context.CancelFunc(func() {})
		if s.batchTimeout > 0 {
			bctx, cancel = context.WithTimeout(ctx, s.batchTimeout)
		}
		vecs, name, err := s.tryRemotes(bctx, batch)
		cancel()
		if err == nil {
			return vecs, name, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		remoteErr = err
	}

	if s.fallback == nil {
		return nil, "", fmt.Errorf("all embedding providers failed: %w", remoteErr)
	}

	if remoteErr != nil {
		log.Printf("Warning: no embeddings returned for batch of %d; using local fallback embeddings", len(batch))
	}
	s.fallbacks.Add(1)
	vecs, err := s.fallback.EmbedBatch(ctx, batch)
	return vecs, s.fallback.Name(), err
}

func (s *Service) tryRemotes(ctx context.Context, batch []string) ([][]float32, string, error) {
	var errs []error
	for _, p := range s.remotes {
		vecs, err := s.tryProvider(ctx, p, batch)
		if err == nil {
			s.recordSuccess(p.Name())
			return vecs, p.Name(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			return nil, "", errors.Join(errs...)
		}
		log.Printf("Warning: embedding provider %s failed: %v", p.Name(), err)
		errs = append(errs, err)
	}
	return nil, "", errors.Join(errs...)
}

// tryProvider calls p up to retries+1 times, sleeping backoff*2^attempt after
// each temporary failure.
func (s *Service) tryProvider(ctx context.Context, p Provider, batch []string) ([][]float32, error) {
	for attempt := 0; ; attempt++ {
		vecs, err := p.EmbedBatch(ctx, batch)
		if err == nil && len(vecs) != len(batch) {
			err = &CountMismatchError{Provider: p.Name(), Want: len(batch), Got: len(vecs)}
		}
		if err == nil {
			return vecs, nil
		}

		var mismatch *CountMismatchError
		if errors.As(err, &mismatch) {
			s.mismatch.Add(1)
			log.Printf("Warning: embedding batch size mismatch from %s: texts=%d embeddings=%d", p.Name(), mismatch.Want, mismatch.Got)
			return nil, err
		}

		if !IsTemporary(err) || attempt >= s.retries || ctx.Err() != nil {
			return nil, err
		}

		log.Printf("Warning: %s attempt %d failed: %v", p.Name(), attempt+1, err)
		s.retried.Add(1)
		if err := s.sleep(ctx, s.backoff<<attempt); err != nil {
			return nil, err
		}
	}
}

func (s *Service) recordSuccess(name string) {
	s.mu.Lock()
	s.successes[name]++
	s.mu.Unlock()
}

// Stats returns a snapshot of the counters
func (s *Service) Stats() Stats {
	s.mu.Lock()
	successes := make(map[string]int64, len(s.successes))
	for k, v := range s.successes {
		successes[k] = v
	}
	s.mu.Unlock()

	return Stats{
		Batches:    s.batches.Load(),
		Fallbacks:  s.fallbacks.Load(),
		Retries:    s.retried.Load(),
		Mismatches: s.mismatch.Load(),
		Successes:  successes,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
