package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carebrief/carebrief-backend/internal/patientctx"
	"github.com/carebrief/carebrief-backend/internal/platform/logger"
	"github.com/carebrief/carebrief-backend/internal/prompts"
	"github.com/carebrief/carebrief-backend/internal/provider"
	"github.com/carebrief/carebrief-backend/internal/summary"
)

var (
	// ErrPatientNotFound means the id has zero records across all six
	// tables. Surfaced to the caller, never retried.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrUnknownProvider means a provider_override named a provider that
	// is not configured.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Request is the caller-supplied generation request. Immutable.
type Request struct {
	PatientID        string
	IncludeCitations bool
	// ProviderOverride collapses the chain to the named provider; no
	// fallback is attempted.
	ProviderOverride string
}

// Attempt records one failed provider attempt for diagnostics.
type Attempt struct {
	Provider string
	Reason   string
	Err      error
}

// AllProvidersFailedError is the terminal failure once every configured
// provider has been tried, carrying the per-provider failure kinds in
// attempted order.
type AllProvidersFailedError struct {
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Provider, a.Reason))
	}
	return "all providers failed: " + strings.Join(parts, ", ")
}

// state is the orchestrator's per-request state machine:
// Idle -> Trying(i) -> {Succeeded | Trying(i+1) | Failed}.
type state int

const (
	stateIdle state = iota
	stateTrying
	stateSucceeded
	stateFailed
)

type Orchestrator struct {
	assembler *patientctx.Assembler
	chain     []provider.Slot
	budget    int
	log       *logger.Logger
	now       func() time.Time
}

func New(a *patientctx.Assembler, chain []provider.Slot, truncationBudget int, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		assembler: a,
		chain:     chain,
		budget:    truncationBudget,
		log:       log.With("service", "Orchestrator"),
		now:       time.Now,
	}
}

// Run processes one generation request end to end: assemble, flatten,
// build the prompt, then try providers in order until one returns output
// the validator accepts. Provider attempts are strictly sequential; a
// speculative parallel call would double-bill.
func (o *Orchestrator) Run(ctx context.Context, req Request) (summary.Result, error) {
	pctx := o.assembler.Assemble(req.PatientID)
	if pctx.Empty() {
		return summary.Result{}, fmt.Errorf("%w: %s", ErrPatientNotFound, req.PatientID)
	}

	fl := patientctx.Flatten(pctx, o.budget)

	prompt, err := prompts.Build(prompts.ClinicalSummary, prompts.Input{
		PatientID:        req.PatientID,
		FlattenedText:    fl.Text,
		IncludeCitations: req.IncludeCitations,
		TruncationNote:   fl.TruncationNote(),
	})
	if err != nil {
		return summary.Result{}, err
	}

	chain, err := o.selectChain(req.ProviderOverride)
	if err != nil {
		return summary.Result{}, err
	}

	st := stateTrying
	attempts := make([]Attempt, 0, len(chain))
	var result summary.Result

	for _, slot := range chain {
		if st != stateTrying {
			break
		}

		raw, err := o.attempt(ctx, slot, prompt)
		if err != nil {
			kind := provider.KindOf(err)
			attempts = append(attempts, Attempt{Provider: slot.Provider.Name(), Reason: string(kind), Err: err})
			o.log.Warn("provider attempt failed",
				"provider", slot.Provider.Name(), "kind", string(kind), "error", err.Error())
			continue
		}

		res, err := summary.Validate(req.PatientID, raw, fl, req.IncludeCitations)
		if err != nil {
			// A validator rejection counts as that provider's failure; the
			// raw output is never re-submitted to the same provider.
			attempts = append(attempts, Attempt{Provider: slot.Provider.Name(), Reason: rejectionReason(err), Err: err})
			o.log.Warn("provider output rejected",
				"provider", slot.Provider.Name(), "reason", rejectionReason(err))
			continue
		}

		res.ProviderUsed = slot.Provider.Name()
		res.GeneratedAt = o.now().UTC()
		result = res
		st = stateSucceeded
	}

	if st != stateSucceeded {
		return summary.Result{}, &AllProvidersFailedError{Attempts: attempts}
	}

	o.log.Info("summary generated",
		"patient_id", req.PatientID,
		"provider_used", result.ProviderUsed,
		"failed_attempts", len(attempts))
	return result, nil
}

// attempt runs one provider call under its own timeout. On timeout the
// in-flight call is abandoned, not awaited; a late response is discarded
// into the buffered channel.
func (o *Orchestrator) attempt(ctx context.Context, slot provider.Slot, p prompts.Prompt) (string, error) {
	actx := ctx
	var cancel context.CancelFunc
	if slot.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, slot.Timeout)
		defer cancel()
	}

	type outcome struct {
		raw string
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		raw, err := slot.Provider.Generate(actx, p)
		ch <- outcome{raw: raw, err: err}
	}()

	select {
	case <-actx.Done():
		return "", provider.NewError(slot.Provider.Name(), provider.KindTimeout, actx.Err())
	case out := <-ch:
		if out.err != nil {
			return "", provider.Classify(slot.Provider.Name(), out.err)
		}
		return out.raw, nil
	}
}

func (o *Orchestrator) selectChain(override string) ([]provider.Slot, error) {
	if strings.TrimSpace(override) == "" {
		return o.chain, nil
	}
	for _, slot := range o.chain {
		if slot.Provider.Name() == override {
			return []provider.Slot{slot}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, override)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, summary.ErrUngroundedCitation):
		return "ungrounded_citation"
	case errors.Is(err, summary.ErrMalformedOutput):
		return "malformed_output"
	default:
		return "invalid_output"
	}
}
