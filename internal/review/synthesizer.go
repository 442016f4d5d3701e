package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DreamCats/docrag/internal/retrieval"
)

// Synthesizer turns a CV and its best matching chunks into recommendations
type Synthesizer interface {
	Recommend(ctx context.Context, cvText string, top []retrieval.Result) ([]string, error)
}

const noMatches = "No strong matches found; consider adding explicit skills and certifications."

// Heuristic recommends the first sentence of each of the top 3 chunks
type Heuristic struct{}

func (Heuristic) Recommend(ctx context.Context, cvText string, top []retrieval.Result) ([]string, error) {
	var recs []string
	for _, r := range top[:min(3, len(top))] {
		if frag := firstSentence(r.Content); frag != "" {
			recs = append(recs, fmt.Sprintf("Consider emphasizing: %s.", frag))
		}
	}
	if len(recs) == 0 {
		recs = []string{noMatches}
	}
	return recs, nil
}

// firstSentence returns text up to the first period, trimmed
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ".\n"); i >= 0 {
		text = text[:i]
	}
	if i := strings.Index(text, "."); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// LLMSynthesizer asks an HTTP completion endpoint for recommendations.
// On any failure it answers with its fallback.
type LLMSynthesizer struct {
	url      string
	apiKey   string
	client   *http.Client
	maxLines int
	fallback Synthesizer
}

// NewLLMSynthesizer creates a synthesizer posting {"prompt": ...} to url
func NewLLMSynthesizer(url, apiKey string, timeout time.Duration, maxLines int) *LLMSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxLines <= 0 {
		maxLines = 5
	}
	return &LLMSynthesizer{
		url:      url,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		maxLines: maxLines,
		fallback: Heuristic{},
	}
}

func (s *LLMSynthesizer) Recommend(ctx context.Context, cvText string, top []retrieval.Result) ([]string, error) {
	lines, err := s.complete(ctx, buildPrompt(cvText, top))
	if err != nil || len(lines) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("empty completion")
		}
		logFallback(err)
		return s.fallback.Recommend(ctx, cvText, top)
	}
	return lines, nil
}

func (s *LLMSynthesizer) complete(ctx context.Context, prompt string) ([]string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm returned status %d", resp.StatusCode)
	}

	text, err := completionText(respBody)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == s.maxLines {
			break
		}
	}
	return lines, nil
}

type completionResponse struct {
	Text    *string `json:"text"`
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// completionText accepts {"text"} and {"choices":[{"text"}|{"message":{"content"}}]}
func completionText(body []byte) (string, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse completion: %w", err)
	}
	if resp.Text != nil {
		return *resp.Text, nil
	}
	if len(resp.Choices) > 0 {
		if resp.Choices[0].Text != "" {
			return resp.Choices[0].Text, nil
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("unsupported completion response")
}

func buildPrompt(cvText string, top []retrieval.Result) string {
	var b strings.Builder
	b.WriteString("You are an assistant that reviews a candidate CV and suggests improvements, skill gaps, ")
	b.WriteString("and mapping to relevant training modules.\n\n")
	b.WriteString("CV:\n")
	b.WriteString(truncateRunes(cvText, 2000))
	b.WriteString("\n\nTop relevant knowledge snippets:\n")
	for i, r := range top {
		if i == 6 {
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(truncateRunes(r.Content, 400)))
	}
	b.WriteString("\n\nProduce 3 concise recommendations (one-per-line), each focusing on a skill, ")
	b.WriteString("suggested improvement, or mapped micro-credential.")
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
