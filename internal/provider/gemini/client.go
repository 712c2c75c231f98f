package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

// Client calls the Gemini generateContent REST API. The attempt timeout is
// the orchestrator's responsibility and arrives through ctx.
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
		log:             log.With("provider", cfg.Name, "type", "gemini"),
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

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateContentRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) Generate(ctx context.Context, p prompts.Prompt) (string, error) {
	if c.apiKey == "" {
		return "", provider.NewError(c.name, provider.KindAuth, errors.New("api key not configured"))
	}

	reqBody := generateContentRequest{
		SystemInstruction: &content{Parts: []part{{Text: p.System}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: p.User}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.temperature,
			MaxOutputTokens:  c.maxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", provider.NewError(c.name, provider.KindTransport, err)
	}

	url := c.baseURL + "/v1beta/models/" + c.model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", provider.NewError(c.name, provider.KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", provider.Classify(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", provider.NewError(c.name, provider.KindFromStatus(resp.StatusCode),
			&upstreamError{status: resp.StatusCode, body: string(raw)})
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", provider.NewError(c.name, provider.KindTransport, err)
	}

	if out.PromptFeedback.BlockReason != "" {
		return "", provider.NewError(c.name, provider.KindRefused,
			errors.New("prompt blocked: "+out.PromptFeedback.BlockReason))
	}

	var text strings.Builder
	for _, cand := range out.Candidates {
		if cand.FinishReason == "SAFETY" {
			return "", provider.NewError(c.name, provider.KindRefused, errors.New("candidate blocked for safety"))
		}
		for _, pt := range cand.Content.Parts {
			text.WriteString(pt.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", provider.NewError(c.name, provider.KindRefused, errors.New("empty completion"))
	}

	c.log.Debug("generation succeeded", "model", c.model, "prompt", p.Name, "chars", text.Len())
	return text.String(), nil
}

type upstreamError struct {
	status int
	body   string
}

func (e *upstreamError) Error() string {
	if e.body == "" {
		return "upstream http error: status=" + http.StatusText(e.status)
	}
	return "upstream http error: status=" + http.StatusText(e.status) + " body=" + e.body
}
