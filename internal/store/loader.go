package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/carebrief/carebrief-backend/internal/platform/logger"
)

type tableSpec struct {
	Base     string
	Required []string
	DateCol  string
}

// tables maps each record type to its source table. Every table carries
// patient_id as the join key plus a date column used to build Source.
var tables = map[RecordType]tableSpec{
	TypeDiagnosis:        {Base: "diagnoses", Required: []string{"patient_id", "diagnosis_description"}, DateCol: "diagnosis_date"},
	TypeMedication:       {Base: "medications", Required: []string{"patient_id", "medication_name"}, DateCol: "start_date"},
	TypeVital:            {Base: "vitals", Required: []string{"patient_id", "vital_type", "reading"}, DateCol: "visit_date"},
	TypeNote:             {Base: "notes", Required: []string{"patient_id", "note_type", "note_text"}, DateCol: "note_date"},
	TypeWound:            {Base: "wounds", Required: []string{"patient_id", "location", "description"}, DateCol: "visit_date"},
	TypeFunctionalStatus: {Base: "oasis", Required: []string{"patient_id", "assessment_type"}, DateCol: "assessment_date"},
}

// Load reads all six tables from dir and returns a read-only Store.
// Tables load concurrently; the first LoadError or SchemaError aborts the
// whole load so a partial store never escapes.
func Load(dir string, log *logger.Logger) (*Store, error) {
	type loaded struct {
		t    RecordType
		recs []Record
	}

	results := make([]loaded, 0, len(tables))
	var g errgroup.Group
	out := make(chan loaded, len(tables))

	for t, spec := range tables {
		t, spec := t, spec
		g.Go(func() error {
			recs, err := loadTable(dir, t, spec)
			if err != nil {
				return err
			}
			out <- loaded{t: t, recs: recs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(out)
	for l := range out {
		results = append(results, l)
	}

	s := &Store{
		byType: make(map[RecordType]map[string][]Record, len(tables)),
	}
	idSet := map[string]struct{}{}
	total := 0
	for _, l := range results {
		byPatient := make(map[string][]Record)
		for _, r := range l.recs {
			byPatient[r.PatientID] = append(byPatient[r.PatientID], r)
			idSet[r.PatientID] = struct{}{}
		}
		for id := range byPatient {
			sortRecords(byPatient[id])
		}
		s.byType[l.t] = byPatient
		total += len(l.recs)
	}

	s.ids = make([]string, 0, len(idSet))
	for id := range idSet {
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)

	if log != nil {
		log.Info("patient store loaded", "tables", len(tables), "records", total, "patients", len(s.ids))
	}
	return s, nil
}

func loadTable(dir string, t RecordType, spec tableSpec) ([]Record, error) {
	origin, header, rows, err := readRows(dir, spec.Base)
	if err != nil {
		return nil, &LoadError{Table: spec.Base, Err: err}
	}

	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, req := range spec.Required {
		if _, ok := col[req]; !ok {
			return nil, &SchemaError{Table: origin, Column: req}
		}
	}
	if _, ok := col[spec.DateCol]; !ok {
		return nil, &SchemaError{Table: origin, Column: spec.DateCol}
	}

	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		cell := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		pid := cell("patient_id")
		if pid == "" {
			continue
		}

		fields := make(map[string]string, len(header))
		for name, i := range col {
			if name == "patient_id" || name == spec.DateCol {
				continue
			}
			if i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					fields[name] = v
				}
			}
		}

		recs = append(recs, Record{
			Type:      t,
			PatientID: pid,
			Fields:    fields,
			Source: Source{
				Origin: origin,
				Date:   normalizeDate(cell(spec.DateCol)),
			},
		})
	}
	return recs, nil
}

// readRows resolves <base>.csv or <base>.xlsx under dir and returns the
// origin label (file base name), header row and data rows.
func readRows(dir, base string) (origin string, header []string, rows [][]string, err error) {
	csvPath := filepath.Join(dir, base+".csv")
	if _, statErr := os.Stat(csvPath); statErr == nil {
		header, rows, err = readCSV(csvPath)
		return base + ".csv", header, rows, err
	}

	xlsxPath := filepath.Join(dir, base+".xlsx")
	if _, statErr := os.Stat(xlsxPath); statErr == nil {
		header, rows, err = readXLSX(xlsxPath)
		return base + ".xlsx", header, rows, err
	}

	return base + ".csv", nil, nil, fmt.Errorf("no %s.csv or %s.xlsx in %s", base, base, dir)
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

func readXLSX(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
}

// normalizeDate canonicalizes to YYYY-MM-DD so lexicographic comparison is
// chronological. Anything unparseable becomes the unknown sentinel.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DateUnknown
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	return DateUnknown
}

// sortRecords orders ascending by reference date with unknown-date records
// last; ties keep their source-table order.
func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		di, dj := recs[i].Source.Date, recs[j].Source.Date
		if di == DateUnknown {
			return false
		}
		if dj == DateUnknown {
			return true
		}
		return di < dj
	})
}
