// Package oracle implements the Decision Oracle boundary: one chat
// completion call per dispatch against the configured model provider,
// and a tagged parse result the assessment procedures must handle
// exhaustively.
//
// The client speaks the OpenAI, Azure OpenAI, Anthropic, and Ollama wire
// formats directly. There are no retries at this layer; a failed or
// timed-out call is reported to the caller, who substitutes the fixed
// degraded-mode decision.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/riskplane/riskplane/internal/config"
	"github.com/rs/zerolog/log"
)

// Client is the minimal surface the assessment procedures depend on.
// Implementations return the raw model output text, or an error when
// the call itself failed (network, auth, timeout).
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// HTTPClient calls a configured model provider over HTTP.
type HTTPClient struct {
	cfg    config.OracleConfig
	client *http.Client

	// Rolling average latency in ms, for logging.
	latencyMu sync.Mutex
	latencyMs int64
}

// NewHTTPClient creates an oracle client for the configured provider.
func NewHTTPClient(cfg config.OracleConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// ChatMessage is one turn in a provider chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends one system+user exchange to the provider and returns
// the text of the first completion choice.
func (c *HTTPClient) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()

	var content string
	var err error

	switch c.cfg.Kind {
	case "anthropic":
		content, err = c.callAnthropic(ctx, system, user)
	case "ollama":
		content, err = c.callOllama(ctx, system, user)
	case "openai", "azure-openai":
		content, err = c.callOpenAI(ctx, system, user)
	default:
		// Generic OpenAI-compatible endpoint
		content, err = c.callOpenAI(ctx, system, user)
	}

	latency := time.Since(start).Milliseconds()
	c.latencyMu.Lock()
	if c.latencyMs == 0 {
		c.latencyMs = latency
	} else {
		// Exponential moving average
		c.latencyMs = (c.latencyMs*7 + latency*3) / 10
	}
	c.latencyMu.Unlock()

	if err != nil {
		log.Warn().
			Str("provider", c.cfg.Kind).
			Str("model", c.cfg.Model).
			Int64("latency_ms", latency).
			Err(err).
			Msg("Oracle call failed")
		return "", err
	}

	log.Debug().
		Str("provider", c.cfg.Kind).
		Str("model", c.cfg.Model).
		Int64("latency_ms", latency).
		Msg("Oracle call completed")

	return content, nil
}

// AvgLatencyMs returns the rolling average oracle latency.
func (c *HTTPClient) AvgLatencyMs() int64 {
	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()
	return c.latencyMs
}

// ── OpenAI / Azure OpenAI ───────────────────────────────────

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *HTTPClient) callOpenAI(ctx context.Context, system, user string) (string, error) {
	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}

	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("openai: api key not configured")
	}

	body, _ := json.Marshal(openAIRequest{
		Model: c.cfg.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
	})

	url := endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Azure OpenAI uses a different auth header
	if c.cfg.Kind == "azure-openai" {
		httpReq.Header.Set("api-key", c.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("openai: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}

	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return oaiResp.Choices[0].Message.Content, nil
}

// ── Anthropic ───────────────────────────────────────────────

type anthropicRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *HTTPClient) callAnthropic(ctx context.Context, system, user string) (string, error) {
	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}

	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("anthropic: api key not configured")
	}

	body, _ := json.Marshal(anthropicRequest{
		Model:     c.cfg.Model,
		System:    system,
		Messages:  []ChatMessage{{Role: "user", Content: user}},
		MaxTokens: 4096,
	})

	url := endpoint + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("anthropic: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}

	content := ""
	for _, part := range anthResp.Content {
		if part.Type == "text" {
			content += part.Text
		}
	}
	return content, nil
}

// ── Ollama ──────────────────────────────────────────────────

func (c *HTTPClient) callOllama(ctx context.Context, system, user string) (string, error) {
	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}

	body, _ := json.Marshal(openAIRequest{
		Model: c.cfg.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
	})

	url := endpoint + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}

	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("ollama: empty choices")
	}
	return oaiResp.Choices[0].Message.Content, nil
}
