package store

import "fmt"

// LoadError means a source table could not be read at all. Fatal at startup;
// the store is never left partially loaded.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load table %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SchemaError means a required column is missing from a source table.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s missing required column %q", e.Table, e.Column)
}
