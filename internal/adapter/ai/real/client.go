// Package real implements the enrichment client against an OpenAI-compatible chat
// completions endpoint (OpenRouter, OpenAI, or any gateway speaking the same API).
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/ai"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/observability"
	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	obsctx "github.com/fairyhunter13/organic-advisor/internal/observability"
)

// ErrRefused is returned when the model declines to answer.
var ErrRefused = errors.New("model refused the request")

const maxErrorSnippet = 512

// Client implements domain.EnrichmentClient. It makes exactly one HTTP call per
// Generate; retries would blow the caller's latency budget.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	hc        *http.Client
	breaker   *ai.CircuitBreaker
	counter   *tokencount.Counter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *ai.CircuitBreaker) Option { return func(c *Client) { c.breaker = cb } }

// New constructs a client from configuration.
func New(cfg config.Config, opts ...Option) *Client {
	// the caller bounds each call with its own deadline; this is only a backstop
	timeout := 2 * cfg.EnrichmentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.EnrichmentBaseURL, "/"),
		apiKey:    cfg.EnrichmentAPIKey,
		model:     cfg.EnrichmentModel,
		maxTokens: cfg.EnrichmentMaxTokens,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: ai.NewCircuitBreaker("enrichment", 3, 30*time.Second),
		counter: tokencount.Default,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Breaker exposes the client's circuit breaker for diagnostics.
func (c *Client) Breaker() *ai.CircuitBreaker { return c.breaker }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for one action matching contextSummary and returns the raw
// message content. ErrCircuitOpen is returned without calling out while the breaker is open.
func (c *Client) Generate(ctx context.Context, contextSummary string) (string, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if c.apiKey == "" {
		return "", fmt.Errorf("op=real.Generate: %w: ENRICHMENT_API_KEY missing", domain.ErrInvalidArgument)
	}
	if !c.breaker.Allow() {
		return "", fmt.Errorf("op=real.Generate: %w", domain.ErrCircuitOpen)
	}

	user := userPrompt(contextSummary)
	observability.ObserveEnrichmentPromptTokens(c.counter.EstimateChatTokens(systemPrompt, user, c.model))

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Temperature:    0.2,
		MaxTokens:      c.maxTokens,
		Messages:       []chatMessage{{Role: "system", Content: systemPrompt}, {Role: "user", Content: user}},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		c.breaker.Release()
		return "", fmt.Errorf("op=real.Generate: %w", err)
	}

	content, err := c.call(ctx, body)
	if err != nil {
		if errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.breaker.Release()
		} else {
			c.breaker.RecordFailure()
		}
		lg.Warn("enrichment call failed", slog.String("model", c.model), slog.Any("error", err))
		return "", err
	}
	c.breaker.RecordSuccess()

	if looksLikeRefusal(content) {
		return "", fmt.Errorf("op=real.Generate: %w", ErrRefused)
	}
	return content, nil
}

func (c *Client) call(ctx context.Context, body []byte) (string, error) {
	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=real.call: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return "", fmt.Errorf("op=real.call: %w: %w", domain.ErrUpstreamTimeout, ctxErr)
			}
			return "", fmt.Errorf("op=real.call: %w", ctxErr)
		}
		return "", fmt.Errorf("op=real.call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("op=real.call: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet]
		}
		return "", fmt.Errorf("op=real.call: chat status %d: %s", resp.StatusCode, snippet)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("op=real.call: decode: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("op=real.call: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}
