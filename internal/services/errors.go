package services

import (
	"errors"
	"fmt"

	"kakeibo/internal/core"
)

// ErrNoValidRecords means a batch produced no records; storage was not touched.
var ErrNoValidRecords = errors.New("no valid records found")

// PersistenceError is a failed replacement. The whole batch was rolled back.
type PersistenceError struct {
	Periods []core.Period
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("replace periods %v: %v", e.Periods, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
