package summary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carebrief/carebrief-backend/internal/store"
)

// SectionName is the closed set of summary sections.
type SectionName string

const (
	SectionOverview         SectionName = "overview"
	SectionDiagnoses        SectionName = "diagnoses"
	SectionMedications      SectionName = "medications"
	SectionVitals           SectionName = "vitals"
	SectionWounds           SectionName = "wounds"
	SectionFunctionalStatus SectionName = "functional_status"
)

// SectionOrder fixes the output ordering of Result.Sections.
var SectionOrder = []SectionName{
	SectionOverview,
	SectionDiagnoses,
	SectionMedications,
	SectionVitals,
	SectionWounds,
	SectionFunctionalStatus,
}

// Citation is one evidentiary pointer from a generated claim back to a
// source table row.
type Citation struct {
	SourceLabel   string `json:"source_label"`
	ReferenceDate string `json:"reference_date"`
}

func (c Citation) String() string {
	return fmt.Sprintf("Source: %s, Date: %s", c.SourceLabel, c.ReferenceDate)
}

// ParseCitation accepts the wire forms "Source: <origin>, Date: <date>",
// "[Source: <origin>, Date: <date>]" and "Source: <origin>" (date unknown).
func ParseCitation(s string) (Citation, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "Source:") {
		return Citation{}, errors.New("citation must start with \"Source:\"")
	}
	rest := strings.TrimSpace(strings.TrimPrefix(s, "Source:"))

	label := rest
	date := store.DateUnknown
	if i := strings.Index(rest, ", Date:"); i >= 0 {
		label = strings.TrimSpace(rest[:i])
		date = strings.TrimSpace(rest[i+len(", Date:"):])
	}
	if label == "" {
		return Citation{}, errors.New("citation missing source label")
	}
	if date == "" {
		date = store.DateUnknown
	}
	return Citation{SourceLabel: label, ReferenceDate: date}, nil
}

type Section struct {
	Name      SectionName `json:"name"`
	Narrative string      `json:"narrative"`
	Citations []Citation  `json:"citations"`
}

// Result is the terminal output of one generation request. Immutable; its
// lifecycle ends when returned to the caller.
type Result struct {
	PatientID    string    `json:"patient_id"`
	Sections     []Section `json:"sections"`
	ProviderUsed string    `json:"provider_used"`
	GeneratedAt  time.Time `json:"generated_at"`
}
