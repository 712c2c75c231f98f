package patientctx

import (
	"github.com/carebrief/carebrief-backend/internal/platform/logger"
	"github.com/carebrief/carebrief-backend/internal/store"
)

// Context is the single query-able view of one patient's records. It is
// built fresh per request and never cached: the underlying tables may have
// been reloaded between requests.
type Context struct {
	PatientID     string
	RecordsByType map[store.RecordType][]store.Record
}

// Empty reports whether the patient has zero records across all six types.
func (c Context) Empty() bool {
	for _, recs := range c.RecordsByType {
		if len(recs) > 0 {
			return false
		}
	}
	return true
}

// Count returns the number of records of type t.
func (c Context) Count(t store.RecordType) int {
	return len(c.RecordsByType[t])
}

type Assembler struct {
	store *store.Store
	log   *logger.Logger
}

func NewAssembler(s *store.Store, log *logger.Logger) *Assembler {
	return &Assembler{store: s, log: log.With("service", "Assembler")}
}

// Assemble pulls all six record types for patientID in the fixed type order
// so downstream formatting is deterministic. An unknown id yields an empty
// context, not an error.
func (a *Assembler) Assemble(patientID string) Context {
	c := Context{
		PatientID:     patientID,
		RecordsByType: make(map[store.RecordType][]store.Record, len(store.AllTypes)),
	}
	total := 0
	for _, t := range store.AllTypes {
		recs := a.store.Query(t, patientID)
		c.RecordsByType[t] = recs
		total += len(recs)
	}
	a.log.Debug("assembled patient context", "patient_id", patientID, "records", total)
	return c
}
