package provider

import (
	"context"
	"time"

	"github.com/carebrief/carebrief-backend/internal/prompts"
)

// Provider is one interchangeable text-generation backend. A variant
// encapsulates its own transport and authentication, returns the raw
// generated text or fails with a classified *Error, and never retries
// internally: retry and fallback policy belong to the orchestrator alone.
type Provider interface {
	Name() string
	Generate(ctx context.Context, p prompts.Prompt) (string, error)
}

// Slot pairs a provider with its per-attempt timeout. The orchestrator
// tries slots in chain order.
type Slot struct {
	Provider Provider
	Timeout  time.Duration
}
