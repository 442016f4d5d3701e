package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of a provider response is read
const maxResponseBytes = 64 << 20

const defaultRequestTimeout = 60 * time.Second

// RemoteOption configures a remote provider.
type RemoteOption func(*remote)

// WithHTTPClient replaces the provider's HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *remote) {
		if c != nil {
			r.client = c
		}
	}
}

// WithLimiter paces requests through a shared limiter. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) RemoteOption {
	return func(r *remote) {
		r.limiter = l
	}
}

// NewLimiter returns a token bucket limiter, or nil when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// remote holds the transport shared by the HTTP providers
type remote struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

func newRemote(name, endpoint, apiKey string, opts []RemoteOption) (*remote, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%s url is required", name)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid %s url: %w", name, err)
	}

	r := &remote{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// call posts payload as JSON and normalizes the response into one vector per text
func (r *remote) call(ctx context.Context, payload any, n int) ([][]float32, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &ProviderError{Provider: r.name, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: r.name, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ProviderError{Provider: r.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			Provider:   r.name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	vectors, _, err := Normalize(body)
	if err != nil {
		if ne, ok := err.(*NormalizationError); ok {
			ne.Provider = r.name
		}
		return nil, err
	}

	if len(vectors) != n {
		return nil, &CountMismatchError{Provider: r.name, Want: n, Got: len(vectors)}
	}

	return vectors, nil
}

// redactedEndpoint drops credentials and query strings before an endpoint is logged
func redactedEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
