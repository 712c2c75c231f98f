package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/carebrief/carebrief-backend/internal/patientctx"
)

var (
	// ErrMalformedOutput means the provider's raw text did not decode into
	// the required section shape.
	ErrMalformedOutput = errors.New("malformed provider output")
	// ErrUngroundedCitation means a citation does not match any evidence
	// marker in the flattened patient context.
	ErrUngroundedCitation = errors.New("ungrounded citation")
)

type rawSection struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

type rawEnvelope struct {
	Sections map[string]rawSection `json:"sections"`
}

// Validate parses rawText into the target schema and checks grounding: with
// includeCitations every non-empty narrative needs at least one citation
// whose (source, date) pair appears in the flattened context. Rejection is
// strict; there is no best-effort coercion.
func Validate(patientID, rawText string, fl patientctx.Flattened, includeCitations bool) (Result, error) {
	clean := stripCodeFence(rawText)

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.DisallowUnknownFields()
	var env rawEnvelope
	if err := dec.Decode(&env); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if env.Sections == nil {
		return Result{}, fmt.Errorf("%w: missing sections object", ErrMalformedOutput)
	}
	if len(env.Sections) > len(SectionOrder) {
		return Result{}, fmt.Errorf("%w: unexpected extra sections", ErrMalformedOutput)
	}

	sections := make([]Section, 0, len(SectionOrder))
	for _, name := range SectionOrder {
		rs, ok := env.Sections[string(name)]
		if !ok {
			return Result{}, fmt.Errorf("%w: missing section %q", ErrMalformedOutput, name)
		}

		narrative := strings.TrimSpace(rs.Content)
		s := Section{Name: name, Narrative: narrative, Citations: []Citation{}}

		// An empty narrative needs no evidence; stray citations for it are
		// dropped rather than rejected.
		if narrative == "" {
			sections = append(sections, s)
			continue
		}

		for _, rawCit := range rs.Citations {
			c, err := ParseCitation(rawCit)
			if err != nil {
				return Result{}, fmt.Errorf("%w: section %q: %v", ErrMalformedOutput, name, err)
			}
			if includeCitations {
				m := patientctx.Marker{Source: c.SourceLabel, Date: c.ReferenceDate}
				if _, ok := fl.Markers[m]; !ok {
					return Result{}, fmt.Errorf("%w: section %q cites %q which is not in the patient context", ErrUngroundedCitation, name, c.String())
				}
			}
			s.Citations = append(s.Citations, c)
		}

		if includeCitations && len(s.Citations) == 0 {
			return Result{}, fmt.Errorf("%w: section %q has narrative but no citations", ErrUngroundedCitation, name)
		}

		sections = append(sections, s)
	}

	return Result{PatientID: patientID, Sections: sections}, nil
}

// stripCodeFence removes a surrounding markdown code block, a common
// provider quirk even when asked for raw JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
