package prompts

import (
	"errors"
	"strings"
)

// sectionKeys is the closed set of output sections, in contract order. It
// must match what the response validator expects.
var sectionKeys = []string{
	"overview",
	"diagnoses",
	"medications",
	"vitals",
	"wounds",
	"functional_status",
}

const clinicalSummarySystem = `You are an experienced home health clinician synthesizing a patient's chart into a concise, evidence-based summary.

RULES:
1. Use only facts present in the PATIENT DATA. Never assert anything that is not in the record.
2. {{if .IncludeCitations}}Every sentence of every section must be supported by at least one citation of the form "Source: <origin>, Date: <date>", copied exactly from a [Source: <origin>, Date: <date>] marker in the PATIENT DATA. Do not invent sources or dates; "unknown" is a valid date when the marker says so.{{else}}Citations are optional for this request; when given, copy them exactly from the [Source: ..., Date: ...] markers in the PATIENT DATA.{{end}}
3. Highlight trends (improving, stable, declining) and concerning findings.
4. If a category has no records, return an empty string for that section's content and an empty citations list.

OUTPUT FORMAT:
Return ONLY a JSON object with exactly this shape and exactly these six section keys:
{
  "sections": {
    "overview": {"content": "...", "citations": ["Source: vitals.csv, Date: 2026-01-08"]},
    "diagnoses": {"content": "...", "citations": ["..."]},
    "medications": {"content": "...", "citations": ["..."]},
    "vitals": {"content": "...", "citations": ["..."]},
    "wounds": {"content": "...", "citations": ["..."]},
    "functional_status": {"content": "...", "citations": ["..."]}
  }
}
No markdown, no commentary, no additional keys.`

const clinicalSummaryUser = `Generate the clinical summary for patient {{.PatientID}}.
{{if .TruncationNote}}
{{.TruncationNote}}
{{end}}
PATIENT DATA:
{{.FlattenedText}}

Return ONLY the JSON object.`

func clinicalSummarySchema() map[string]any {
	section := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"content": map[string]any{"type": "string"},
			"citations": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"content", "citations"},
	}

	props := map[string]any{}
	for _, k := range sectionKeys {
		props[k] = section
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"sections": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           props,
				"required":             append([]string{}, sectionKeys...),
			},
		},
		"required": []string{"sections"},
	}
}

// RegisterAll registers every prompt template. Called once from app wiring.
func RegisterAll() {
	RegisterSpec(Spec{
		Name:       ClinicalSummary,
		Version:    1,
		SchemaName: "clinical_summary",
		Schema:     clinicalSummarySchema,
		System:     clinicalSummarySystem,
		User:       clinicalSummaryUser,
		Validators: []Validator{
			func(in Input) error {
				if strings.TrimSpace(in.PatientID) == "" {
					return errors.New("patient id required")
				}
				if strings.TrimSpace(in.FlattenedText) == "" {
					return errors.New("flattened patient data required")
				}
				return nil
			},
		},
	})
}
