package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/carebrief/carebrief-backend/internal/config"
	"github.com/carebrief/carebrief-backend/internal/platform/logger"
	"github.com/carebrief/carebrief-backend/internal/prompts"
	"github.com/carebrief/carebrief-backend/internal/provider"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func testConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Name:            "primary",
		Type:            config.ProviderTypeGemini,
		Model:           "gemini-1.5-flash",
		Temperature:     0.3,
		MaxOutputTokens: 1024,
		Timeout:         config.Duration{Duration: 2 * time.Second},
		BaseURL:         "http://upstream",
		APIKeyEnv:       "TEST_GEMINI_KEY",
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func samplePrompt() prompts.Prompt {
	return prompts.Prompt{
		Name:    "clinical_summary",
		Version: 1,
		System:  "You are a clinician.",
		User:    "Summarize patient P001.",
	}
}

func TestGenerate(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "test-key")

	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			if req.Header.Get("x-goog-api-key") != "test-key" {
				t.Fatalf("api key header = %q", req.Header.Get("x-goog-api-key"))
			}

			var in generateContentRequest
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				t.Fatalf("decode req: %v", err)
			}
			if in.SystemInstruction == nil || in.SystemInstruction.Parts[0].Text != "You are a clinician." {
				t.Fatalf("system instruction = %+v", in.SystemInstruction)
			}
			if in.GenerationConfig.ResponseMimeType != "application/json" {
				t.Fatalf("mime type = %q", in.GenerationConfig.ResponseMimeType)
			}

			out := map[string]any{
				"candidates": []map[string]any{
					{"content": map[string]any{"parts": []map[string]any{{"text": `{"sections":{}}`}}}},
				},
			}
			b, _ := json.Marshal(out)
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body:       io.NopCloser(bytes.NewReader(b)),
			}, nil
		}),
	}

	c := NewWithHTTPClient(testConfig(), testLogger(t), client)
	got, err := c.Generate(context.Background(), samplePrompt())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"sections":{}}` {
		t.Fatalf("text = %q", got)
	}
}

func TestGenerateMissingKeyIsAuthError(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "")

	c := New(testConfig(), testLogger(t))
	_, err := c.Generate(context.Background(), samplePrompt())
	if provider.KindOf(err) != provider.KindAuth {
		t.Fatalf("kind = %s, err = %v", provider.KindOf(err), err)
	}
}

func TestGenerateStatusMapping(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "test-key")

	cases := []struct {
		status int
		want   provider.Kind
	}{
		{http.StatusUnauthorized, provider.KindAuth},
		{http.StatusTooManyRequests, provider.KindRateLimited},
		{http.StatusBadRequest, provider.KindRefused},
		{http.StatusInternalServerError, provider.KindTransport},
	}
	for _, tc := range cases {
		client := &http.Client{
			Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: tc.status,
					Body:       io.NopCloser(strings.NewReader(`{"error":{}}`)),
				}, nil
			}),
		}
		c := NewWithHTTPClient(testConfig(), testLogger(t), client)
		_, err := c.Generate(context.Background(), samplePrompt())
		if provider.KindOf(err) != tc.want {
			t.Errorf("status %d: kind = %s, want %s", tc.status, provider.KindOf(err), tc.want)
		}
	}
}

func TestGenerateBlockedPromptIsRefused(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "test-key")

	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			out := map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}}
			b, _ := json.Marshal(out)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader(b)),
			}, nil
		}),
	}

	c := NewWithHTTPClient(testConfig(), testLogger(t), client)
	_, err := c.Generate(context.Background(), samplePrompt())
	if provider.KindOf(err) != provider.KindRefused {
		t.Fatalf("kind = %s, err = %v", provider.KindOf(err), err)
	}
}

func TestGenerateEmptyCompletionIsRefused(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "test-key")

	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"candidates":[]}`)),
			}, nil
		}),
	}

	c := NewWithHTTPClient(testConfig(), testLogger(t), client)
	_, err := c.Generate(context.Background(), samplePrompt())
	if provider.KindOf(err) != provider.KindRefused {
		t.Fatalf("kind = %s, err = %v", provider.KindOf(err), err)
	}
}

func TestGenerateTransportErrorClassified(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "test-key")

	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}),
	}

	c := NewWithHTTPClient(testConfig(), testLogger(t), client)
	_, err := c.Generate(context.Background(), samplePrompt())
	if provider.KindOf(err) != provider.KindTransport {
		t.Fatalf("kind = %s, err = %v", provider.KindOf(err), err)
	}
}
