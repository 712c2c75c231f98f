package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carebrief/carebrief-backend/internal/patientctx"
	"github.com/carebrief/carebrief-backend/internal/platform/logger"
	"github.com/carebrief/carebrief-backend/internal/prompts"
	"github.com/carebrief/carebrief-backend/internal/provider"
	"github.com/carebrief/carebrief-backend/internal/provider/mock"
	"github.com/carebrief/carebrief-backend/internal/store"
	"github.com/carebrief/carebrief-backend/internal/summary"
)

func fixtureAssembler(t *testing.T) *patientctx.Assembler {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"diagnoses.csv":   "patient_id,diagnosis_description,diagnosis_date\nP001,Hypertension,2025-11-20\n",
		"medications.csv": "patient_id,medication_name,start_date\nP001,Lisinopril,2025-11-21\n",
		"vitals.csv":      "patient_id,vital_type,reading,visit_date\nP001,BP,142/88,2026-01-08\n",
		"notes.csv":       "patient_id,note_type,note_text,note_date\n",
		"wounds.csv":      "patient_id,location,description,visit_date\n",
		"oasis.csv":       "patient_id,assessment_type,assessment_date\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	s, err := store.Load(dir, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return patientctx.NewAssembler(s, testLogger(t))
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// fakeProvider fails with a fixed error, returns fixed raw text, or hangs
// until the attempt context expires.
type fakeProvider struct {
	name  string
	raw   string
	err   error
	hang  bool
	calls int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, p prompts.Prompt) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.raw, nil
}

func newOrchestrator(t *testing.T, slots ...provider.Slot) *Orchestrator {
	t.Helper()
	prompts.RegisterAll()
	return New(fixtureAssembler(t), slots, 0, testLogger(t))
}

func TestRunPrimarySucceeds(t *testing.T) {
	o := newOrchestrator(t, provider.Slot{Provider: mock.New("primary"), Timeout: time.Second})
	o.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }

	res, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ProviderUsed != "primary" {
		t.Fatalf("provider used = %s", res.ProviderUsed)
	}
	if res.PatientID != "P001" {
		t.Fatalf("patient id = %s", res.PatientID)
	}
	if !res.GeneratedAt.Equal(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("generated at = %v", res.GeneratedAt)
	}
	if len(res.Sections) != len(summary.SectionOrder) {
		t.Fatalf("sections = %d", len(res.Sections))
	}
}

func TestRunFallsBackOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: provider.NewError("primary", provider.KindRateLimited, errors.New("429"))}
	o := newOrchestrator(t,
		provider.Slot{Provider: primary, Timeout: time.Second},
		provider.Slot{Provider: mock.New("secondary"), Timeout: time.Second},
	)

	res, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ProviderUsed != "secondary" {
		t.Fatalf("provider used = %s", res.ProviderUsed)
	}
	if got := atomic.LoadInt32(&primary.calls); got != 1 {
		t.Fatalf("primary called %d times", got)
	}
}

func TestRunTimeoutAbandonsAndFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "primary", hang: true}
	o := newOrchestrator(t,
		provider.Slot{Provider: primary, Timeout: 30 * time.Millisecond},
		provider.Slot{Provider: mock.New("secondary"), Timeout: time.Second},
	)

	start := time.Now()
	res, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ProviderUsed != "secondary" {
		t.Fatalf("provider used = %s", res.ProviderUsed)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run blocked for %v", elapsed)
	}
}

func TestRunAllProvidersFailed(t *testing.T) {
	o := newOrchestrator(t,
		provider.Slot{Provider: &fakeProvider{name: "primary", err: provider.NewError("primary", provider.KindAuth, errors.New("401"))}, Timeout: time.Second},
		provider.Slot{Provider: &fakeProvider{name: "secondary", err: provider.NewError("secondary", provider.KindTransport, errors.New("boom"))}, Timeout: time.Second},
	)

	_, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true})
	var apf *AllProvidersFailedError
	if !errors.As(err, &apf) {
		t.Fatalf("err = %v", err)
	}
	if len(apf.Attempts) != 2 {
		t.Fatalf("attempts = %d", len(apf.Attempts))
	}
	if apf.Attempts[0].Provider != "primary" || apf.Attempts[0].Reason != "auth" {
		t.Fatalf("attempt 0 = %+v", apf.Attempts[0])
	}
	if apf.Attempts[1].Provider != "secondary" || apf.Attempts[1].Reason != "transport" {
		t.Fatalf("attempt 1 = %+v", apf.Attempts[1])
	}
}

func TestRunValidatorRejectionAdvancesChain(t *testing.T) {
	primary := &fakeProvider{name: "primary", raw: "this is not json"}
	o := newOrchestrator(t,
		provider.Slot{Provider: primary, Timeout: time.Second},
		provider.Slot{Provider: mock.New("secondary"), Timeout: time.Second},
	)

	res, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ProviderUsed != "secondary" {
		t.Fatalf("provider used = %s", res.ProviderUsed)
	}
	if got := atomic.LoadInt32(&primary.calls); got != 1 {
		t.Fatalf("primary called %d times", got)
	}
}

func TestRunUngroundedOutputAdvancesChain(t *testing.T) {
	ungrounding := `{"sections":{
		"overview":{"content":"Patient improving.","citations":["Source: labs.csv, Date: 2026-01-01"]},
		"diagnoses":{"content":"","citations":[]},
		"medications":{"content":"","citations":[]},
		"vitals":{"content":"","citations":[]},
		"wounds":{"content":"","citations":[]},
		"functional_status":{"content":"","citations":[]}}}`
	primary := &fakeProvider{name: "primary", raw: ungrounding}
	secondary := &fakeProvider{name: "secondary", err: provider.NewError("secondary", provider.KindTimeout, context.DeadlineExceeded)}
	o := newOrchestrator(t,
		provider.Slot{Provider: primary, Timeout: time.Second},
		provider.Slot{Provider: secondary, Timeout: time.Second},
	)

	_, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true})
	var apf *AllProvidersFailedError
	if !errors.As(err, &apf) {
		t.Fatalf("err = %v", err)
	}
	if apf.Attempts[0].Reason != "ungrounded_citation" {
		t.Fatalf("attempt 0 = %+v", apf.Attempts[0])
	}
	if apf.Attempts[1].Reason != "timeout" {
		t.Fatalf("attempt 1 = %+v", apf.Attempts[1])
	}
}

func TestRunProviderOverrideCollapsesChain(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: provider.NewError("primary", provider.KindTransport, errors.New("boom"))}
	o := newOrchestrator(t,
		provider.Slot{Provider: primary, Timeout: time.Second},
		provider.Slot{Provider: mock.New("secondary"), Timeout: time.Second},
	)

	res, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true, ProviderOverride: "secondary"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ProviderUsed != "secondary" {
		t.Fatalf("provider used = %s", res.ProviderUsed)
	}
	if got := atomic.LoadInt32(&primary.calls); got != 0 {
		t.Fatalf("primary called %d times despite override", got)
	}
}

func TestRunOverrideFailureDoesNotFallBack(t *testing.T) {
	failing := &fakeProvider{name: "primary", err: provider.NewError("primary", provider.KindRefused, errors.New("blocked"))}
	o := newOrchestrator(t,
		provider.Slot{Provider: failing, Timeout: time.Second},
		provider.Slot{Provider: mock.New("secondary"), Timeout: time.Second},
	)

	_, err := o.Run(context.Background(), Request{PatientID: "P001", IncludeCitations: true, ProviderOverride: "primary"})
	var apf *AllProvidersFailedError
	if !errors.As(err, &apf) {
		t.Fatalf("err = %v", err)
	}
	if len(apf.Attempts) != 1 || apf.Attempts[0].Reason != "refused" {
		t.Fatalf("attempts = %+v", apf.Attempts)
	}
}

func TestRunUnknownOverride(t *testing.T) {
	o := newOrchestrator(t, provider.Slot{Provider: mock.New("primary"), Timeout: time.Second})

	_, err := o.Run(context.Background(), Request{PatientID: "P001", ProviderOverride: "tertiary"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunPatientNotFound(t *testing.T) {
	called := &fakeProvider{name: "primary"}
	o := newOrchestrator(t, provider.Slot{Provider: called, Timeout: time.Second})

	_, err := o.Run(context.Background(), Request{PatientID: "P999"})
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("err = %v", err)
	}
	if got := atomic.LoadInt32(&called.calls); got != 0 {
		t.Fatalf("provider called %d times for unknown patient", got)
	}
}
