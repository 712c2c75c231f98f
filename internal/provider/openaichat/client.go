package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/carebrief/carebrief-backend/internal/config"
	"github.com/carebrief/carebrief-backend/internal/platform/logger"
	"github.com/carebrief/carebrief-backend/internal/prompts"
	"github.com/carebrief/carebrief-backend/internal/provider"
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	name            string
	baseURL         string
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int

	httpClient *http.Client
	log        *logger.Logger
}

func New(cfg config.ProviderConfig, log *logger.Logger) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		name:            cfg.Name,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          strings.TrimSpace(os.Getenv(cfg.APIKeyEnv)),
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		httpClient:      &http.Client{Transport: tr},
		log:             log.With("provider", cfg.Name, "type", "openai_chat"),
	}
}

// NewWithHTTPClient is intended for tests; it avoids network access by
// using a custom RoundTripper.
func NewWithHTTPClient(cfg config.ProviderConfig, log *logger.Logger, httpClient *http.Client) *Client {
	c := New(cfg, log)
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

func (c *Client) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
	} `json:"choices"`
}

func (c *Client) Generate(ctx context.Context, p prompts.Prompt) (string, error) {
	if c.apiKey == "" {
		return "", provider.NewError(c.name, provider.KindAuth, errors.New("api key not configured"))
	}

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxOutputTokens,
		ResponseFormat: map[string]any{"type": "json_object"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", provider.NewError(c.name, provider.KindTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", provider.NewError(c.name, provider.KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", provider.Classify(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", provider.NewError(c.name, provider.KindFromStatus(resp.StatusCode),
			fmt.Errorf("upstream http error: status=%d body=%s", resp.StatusCode, string(raw)))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", provider.NewError(c.name, provider.KindTransport, err)
	}

	var text string
	for _, choice := range out.Choices {
		if strings.TrimSpace(choice.Message.Content) != "" {
			text = choice.Message.Content
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", provider.NewError(c.name, provider.KindRefused, errors.New("empty completion"))
	}

	c.log.Debug("generation succeeded", "model", c.model, "prompt", p.Name, "chars", len(text))
	return text, nil
}
