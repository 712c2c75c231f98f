package patientctx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/carebrief/carebrief-backend/internal/store"
)

// Marker is one evidentiary pointer present in the flattened text. The
// validator only accepts citations whose (source, date) pair appears here.
type Marker struct {
	Source string
	Date   string
}

// Flattened is the only clinical evidence the generation step may see.
type Flattened struct {
	Text    string
	Markers map[Marker]struct{}
	// Truncated counts records dropped per type to fit the character budget.
	Truncated map[store.RecordType]int
}

// TruncationNote renders a deterministic disclosure line, empty when nothing
// was dropped.
func (f Flattened) TruncationNote() string {
	if len(f.Truncated) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f.Truncated))
	for _, t := range store.AllTypes {
		if n := f.Truncated[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, t))
		}
	}
	return "Note: older records were omitted to fit the context budget (" + strings.Join(parts, ", ") + "). The summary covers the remaining records only."
}

var typeHeadings = map[store.RecordType]string{
	store.TypeDiagnosis:        "DIAGNOSES",
	store.TypeMedication:       "MEDICATIONS",
	store.TypeVital:            "VITAL SIGNS",
	store.TypeWound:            "WOUNDS",
	store.TypeFunctionalStatus: "FUNCTIONAL STATUS",
	store.TypeNote:             "CLINICAL NOTES",
}

// Flatten renders the context as one line per record, each tagged with its
// type fields and a [Source: origin, Date: date] marker. No record of any
// type is silently dropped; when budget > 0 and the text would exceed it,
// records are truncated per-type, oldest first, never mid-record, and the
// truncation is recorded.
func Flatten(c Context, budget int) Flattened {
	type renderedLine struct {
		text   string
		marker Marker
	}

	lines := make(map[store.RecordType][]renderedLine, len(store.AllTypes))
	for _, t := range store.AllTypes {
		for _, r := range c.RecordsByType[t] {
			lines[t] = append(lines[t], renderedLine{
				text:   renderRecord(r),
				marker: Marker{Source: r.Source.Origin, Date: r.Source.Date},
			})
		}
	}

	truncated := map[store.RecordType]int{}
	if budget > 0 {
		total := 0
		active := 0
		for _, t := range store.AllTypes {
			if len(lines[t]) == 0 {
				continue
			}
			active++
			for _, l := range lines[t] {
				total += len(l.text) + 1
			}
		}
		if total > budget && active > 0 {
			// Each populated type gets an equal character share; within a
			// type the oldest records go first. Ordering puts unknown-date
			// records last, so they survive longest.
			share := budget / active
			for _, t := range store.AllTypes {
				ls := lines[t]
				if len(ls) == 0 {
					continue
				}
				size := 0
				for _, l := range ls {
					size += len(l.text) + 1
				}
				for len(ls) > 1 && size > share {
					size -= len(ls[0].text) + 1
					ls = ls[1:]
					truncated[t]++
				}
				lines[t] = ls
			}
		}
	}

	var b strings.Builder
	markers := make(map[Marker]struct{})
	fmt.Fprintf(&b, "# Patient Clinical Data - ID: %s\n", c.PatientID)
	for _, t := range store.AllTypes {
		b.WriteString("\n## ")
		b.WriteString(typeHeadings[t])
		b.WriteString("\n")
		ls := lines[t]
		if len(ls) == 0 {
			b.WriteString("(no records)\n")
			continue
		}
		if n := truncated[t]; n > 0 {
			fmt.Fprintf(&b, "(%d older records omitted)\n", n)
		}
		for _, l := range ls {
			b.WriteString(l.text)
			b.WriteString("\n")
			markers[l.marker] = struct{}{}
		}
	}

	return Flattened{
		Text:      b.String(),
		Markers:   markers,
		Truncated: truncated,
	}
}

// renderRecord is deterministic: fields sort by name so two flattens of the
// same context are byte-identical.
func renderRecord(r store.Record) string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("- ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(r.Fields[k])
	}
	if len(keys) == 0 {
		b.WriteString("(no fields)")
	}
	fmt.Fprintf(&b, " [Source: %s, Date: %s]", r.Source.Origin, r.Source.Date)
	return b.String()
}
