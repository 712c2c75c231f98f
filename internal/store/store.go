package store

// Store holds the normalized tables for all six record types. It is loaded
// once at process start and read-only afterwards, so concurrent requests may
// query it without coordination.
type Store struct {
	byType map[RecordType]map[string][]Record
	ids    []string
}

// ListPatientIDs returns the union of patient ids present in any table,
// each id exactly once, sorted.
func (s *Store) ListPatientIDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Query returns all records of type t for patientID, ascending by reference
// date with unknown-date records last. An id present in zero tables yields
// empty results, not an error; the caller decides whether that is
// PatientNotFound.
func (s *Store) Query(t RecordType, patientID string) []Record {
	byPatient, ok := s.byType[t]
	if !ok {
		return nil
	}
	return byPatient[patientID]
}
