// Package tokencount estimates prompt sizes for chat completion calls with tiktoken-go.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Encodings ship with the binary so counting never reaches the network.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// fallbackEncoding covers the GPT-4 family and is a fair approximation for the other
// chat models served behind OpenAI-compatible gateways.
const fallbackEncoding = "cl100k_base"

// Counter caches one encoder per normalized model name.
type Counter struct {
	mu       sync.RWMutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// Default is shared by the enrichment client.
var Default = NewCounter()

func (c *Counter) encoderFor(model string) (*tiktoken.Tiktoken, error) {
	name := NormalizeModel(model)

	c.mu.RLock()
	enc, ok := c.encoders[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encoders[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to default encoding", slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	c.encoders[name] = enc
	return enc, nil
}

// NormalizeModel maps gateway model IDs such as "openai/gpt-4o-mini" or
// "meta-llama/llama-3.1-8b-instruct:free" onto a name tiktoken knows.
func NormalizeModel(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")
	if strings.Contains(model, "gpt-3.5") {
		return "gpt-3.5-turbo"
	}
	return "gpt-4"
}

// CountTokens counts tokens in text.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts a system plus user message request, including the per-message
// framing used by OpenAI-compatible chat APIs.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.encoderFor(model)
	if err != nil {
		return 0, err
	}
	const perMessage, perRole, replyPrimer = 3, 1, 3
	n := replyPrimer
	for _, m := range [][2]string{{"system", systemPrompt}, {"user", userPrompt}} {
		n += perMessage + perRole
		n += len(enc.Encode(m[0], nil, nil))
		n += len(enc.Encode(m[1], nil, nil))
	}
	return n, nil
}

// EstimateChatTokens never fails: when encoding is unavailable it falls back to roughly
// four characters per token.
func (c *Counter) EstimateChatTokens(systemPrompt, userPrompt, model string) int {
	n, err := c.CountChatTokens(systemPrompt, userPrompt, model)
	if err != nil {
		slog.Warn("failed to count prompt tokens, using estimate", slog.String("model", model), slog.Any("error", err))
		return (len(systemPrompt) + len(userPrompt)) / 4
	}
	return n
}
