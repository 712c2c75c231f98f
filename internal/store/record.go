package store

// RecordType is one of the six fixed clinical categories.
type RecordType string

const (
	TypeDiagnosis        RecordType = "diagnosis"
	TypeMedication       RecordType = "medication"
	TypeVital            RecordType = "vital"
	TypeNote             RecordType = "note"
	TypeWound            RecordType = "wound"
	TypeFunctionalStatus RecordType = "functional-status"
)

// AllTypes lists the record types in the order downstream assembly renders
// them: diagnosis, medication, vital, wound, functional-status, note.
var AllTypes = []RecordType{
	TypeDiagnosis,
	TypeMedication,
	TypeVital,
	TypeWound,
	TypeFunctionalStatus,
	TypeNote,
}

// DateUnknown is the explicit sentinel for a record whose reference date
// could not be established. Source.Date is never a blank string.
const DateUnknown = "unknown"

// Source points a record back at the table it was loaded from.
type Source struct {
	Origin string
	Date   string
}

// Record is one row from a source table. Immutable once loaded.
type Record struct {
	Type      RecordType
	PatientID string
	Fields    map[string]string
	Source    Source
}
