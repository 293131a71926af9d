package roster

import (
	"errors"
	"fmt"
)

// Sentinel kinds wrapped by IngestionError.
var (
	ErrSourceUnreachable = errors.New("roster source unreachable")
	ErrEmptyRoster       = errors.New("roster is empty")
	ErrMissingColumns    = errors.New("roster must have headers: id,name,section")
)

// IngestionError reports why a roster could not be loaded.
type IngestionError struct {
	Source string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("load roster %s: %v", e.Source, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
