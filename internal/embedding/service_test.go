package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/docrag/internal/config"
)

// fakeProvider fails the first failures calls with err, then returns vectors of dim
type fakeProvider struct {
	name     string
	dim      int
	failures int
	err      error
	short    bool // return one vector less than requested

	mu      sync.Mutex
	calls   int
	batches [][]string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.calls <= f.failures {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errFlaky = &ProviderError{Provider: "fake", StatusCode: 503, Err: errors.New("unavailable")}

func testConfig() *config.EmbeddingConfig {
	return &config.EmbeddingConfig{
		BatchSize:   2,
		Retries:     2,
		Backoff:     10 * time.Millisecond,
		FallbackDim: 4,
	}
}

func newTestService(t *testing.T, cfg *config.EmbeddingConfig, providers ...Provider) (*Service, *[]time.Duration) {
	t.Helper()
	opts := []ServiceOption{}
	if len(providers) > 0 {
		opts = append(opts, WithProviders(providers...))
	}
	svc, err := NewService(cfg, opts...)
	require.NoError(t, err)

	var sleeps []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return svc, &sleeps
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%d-%s", i, string(make([]byte, i)))
	}
	return out
}

func TestEmbedLocalOnly(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	in := texts(5)
	vecs, err := svc.Embed(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, LocalVector(in[i], 4), v)
	}

	stats := svc.Stats()
	assert.Equal(t, int64(3), stats.Batches)
	assert.Equal(t, int64(3), stats.Fallbacks)
}

func TestEmbedEmpty(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	vecs, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestNoProviders(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackDim = 0
	_, err := NewService(cfg)
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestEmbedPreservesOrderAcrossBatches(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4}
	svc, _ := newTestService(t, testConfig(), primary)

	in := texts(5)
	vecs, err := svc.Embed(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(len(in[i])), v[0])
	}
	assert.Equal(t, [][]string{in[0:2], in[2:4], in[4:5]}, primary.batches)
	assert.Equal(t, int64(3), svc.Stats().Successes["primary"])
}

func TestRetryThenSucceed(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4, failures: 2, err: errFlaky}
	secondary := &fakeProvider{name: "secondary", dim: 4}
	svc, sleeps := newTestService(t, testConfig(), primary, secondary)

	vecs, err := svc.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)
	assert.Equal(t, int64(2), svc.Stats().Retries)
}

func TestRetriesExhaustedFallsThrough(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4, failures: 3, err: errFlaky}
	secondary := &fakeProvider{name: "secondary", dim: 4}
	svc, _ := newTestService(t, testConfig(), primary, secondary)

	vecs, err := svc.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, float32(3), vecs[0][0])
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestClientErrorIsRetried(t *testing.T) {
	primary := &fakeProvider{
		name: "primary", dim: 4, failures: 1,
		err: &ProviderError{Provider: "primary", StatusCode: 401, Err: errors.New("unauthorized")},
	}
	secondary := &fakeProvider{name: "secondary", dim: 4}
	svc, sleeps := newTestService(t, testConfig(), primary, secondary)

	_, err := svc.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, *sleeps)
}

func TestNormalizationErrorIsRetried(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4, failures: 2, err: &NormalizationError{Err: ErrUnknownShape}}
	secondary := &fakeProvider{name: "secondary", dim: 4}
	svc, _ := newTestService(t, testConfig(), primary, secondary)

	_, providers, err := svc.EmbedDetailed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
	assert.Equal(t, []string{"primary"}, providers)
}

func TestAllRemotesFailUsesFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4, failures: 100, err: errFlaky}
	secondary := &fakeProvider{name: "secondary", dim: 4, failures: 100, err: &NormalizationError{Err: ErrUnknownShape}}
	svc, _ := newTestService(t, testConfig(), primary, secondary)

	in := []string{"x", "y", "z"}
	vecs, err := svc.Embed(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i := range in {
		assert.Equal(t, LocalVector(in[i], 4), vecs[i])
	}
	assert.Equal(t, int64(2), svc.Stats().Fallbacks)
	// retries+1 attempts per provider for each of the two batches
	assert.Equal(t, 6, primary.Calls())
	assert.Equal(t, 6, secondary.Calls())
}

func TestAllRemotesFailWithoutFallback(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackDim = 0
	primary := &fakeProvider{name: "primary", dim: 4, failures: 100, err: errFlaky}
	svc, _ := newTestService(t, cfg, primary)

	_, err := svc.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, IsTemporary(err))
}

func TestCountMismatchRejectsBatch(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4, short: true}
	secondary := &fakeProvider{name: "secondary", dim: 4}
	svc, _ := newTestService(t, testConfig(), primary, secondary)

	in := []string{"aa", "bbbb"}
	vecs, err := svc.Embed(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(4), vecs[1][0])
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, int64(1), svc.Stats().Mismatches)
}

func TestOutputLengthAlwaysMatches(t *testing.T) {
	cases := map[string][]Provider{
		"none":        nil,
		"one":         {&fakeProvider{name: "a", dim: 4}},
		"first fails": {&fakeProvider{name: "a", dim: 4, failures: 100, err: errFlaky}, &fakeProvider{name: "b", dim: 4}},
		"all fail":    {&fakeProvider{name: "a", dim: 4, failures: 100, err: errFlaky}, &fakeProvider{name: "b", dim: 4, short: true}},
	}
	for name, providers := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(t, testConfig(), providers...)
			for _, n := range []int{1, 2, 3, 7} {
				vecs, err := svc.Embed(context.Background(), texts(n))
				require.NoError(t, err)
				assert.Len(t, vecs, n)
			}
		})
	}
}

func TestCancelledContext(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4}
	svc, _ := newTestService(t, testConfig(), primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, primary.Calls())
}

func TestBatchTimeoutFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.BatchTimeout = 20 * time.Millisecond
	primary := &fakeProvider{name: "primary", dim: 4, failures: 100, err: errFlaky}
	svc, err := NewService(cfg, WithProviders(primary))
	require.NoError(t, err)
	svc.backoff = time.Second

	start := time.Now()
	vecs, err := svc.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, LocalVector("a", 4), vecs[0])
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, 1, primary.Calls())
}

func TestEmbedOne(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	v, err := svc.EmbedOne(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, LocalVector("query", 4), v)
}

func TestEmbedDetailedNamesProviders(t *testing.T) {
	primary := &fakeProvider{name: "primary", dim: 4, failures: 3, err: errFlaky}
	svc, _ := newTestService(t, testConfig(), primary)

	// First batch exhausts the retries and falls back, second succeeds remotely
	vecs, providers, err := svc.EmbedDetailed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []string{LocalName, LocalName, "primary"}, providers)

	assert.True(t, svc.Degraded(LocalName))
	assert.False(t, svc.Degraded("primary"))

	localOnly, _ := newTestService(t, testConfig())
	assert.False(t, localOnly.Degraded(LocalName))
}
