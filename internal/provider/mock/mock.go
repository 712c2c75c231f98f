package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/carebrief/carebrief-backend/internal/prompts"
)

// Provider fabricates a schema-valid, fully grounded summary from the
// evidence markers already present in the prompt. Useful for development
// without upstream credentials and as the success path in tests.
type Provider struct {
	name string
}

func New(name string) *Provider {
	return &Provider{name: name}
}

func (p *Provider) Name() string { return p.name }

var markerRe = regexp.MustCompile(`\[Source: ([^,\]]+), Date: ([^\]]+)\]`)

// originSections maps a source table base name to the output section its
// evidence supports. Notes feed the overview.
var originSections = map[string]string{
	"diagnoses":   "diagnoses",
	"medications": "medications",
	"vitals":      "vitals",
	"wounds":      "wounds",
	"oasis":       "functional_status",
}

var sectionKeys = []string{"overview", "diagnoses", "medications", "vitals", "wounds", "functional_status"}

func (p *Provider) Generate(ctx context.Context, pr prompts.Prompt) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	type section struct {
		Content   string   `json:"content"`
		Citations []string `json:"citations"`
	}

	sections := map[string]*section{}
	for _, k := range sectionKeys {
		sections[k] = &section{Citations: []string{}}
	}

	matches := markerRe.FindAllStringSubmatch(pr.User, -1)
	seen := map[string]bool{}
	for _, m := range matches {
		origin, date := m[1], m[2]
		citation := fmt.Sprintf("Source: %s, Date: %s", origin, date)
		if seen[citation] {
			continue
		}
		seen[citation] = true

		base := origin
		if i := strings.LastIndex(base, "."); i > 0 {
			base = base[:i]
		}

		if ov := sections["overview"]; len(ov.Citations) == 0 {
			ov.Content = "Summary generated from the available patient record."
			ov.Citations = []string{citation}
		}

		key, ok := originSections[base]
		if !ok {
			continue
		}
		s := sections[key]
		if len(s.Citations) < 3 {
			if s.Content == "" {
				s.Content = fmt.Sprintf("Recorded %s data is available for this patient.", strings.ReplaceAll(key, "_", " "))
			}
			s.Citations = append(s.Citations, citation)
		}
	}

	out := map[string]any{"sections": sections}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
