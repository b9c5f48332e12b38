package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBoundary is returned for a region whose boundary could not be
	// resolved. No decomposition is attempted.
	ErrNoBoundary = errors.New("no boundary for region")

	// ErrAllCellsFailed is returned when no cell of a region could be
	// fetched.
	ErrAllCellsFailed = errors.New("every cell failed")
)

// RegionError is a failure scoped to one region of a batch.
type RegionError struct {
	Region string
	Err    error
}

// Error implements the error interface.
func (e *RegionError) Error() string {
	return fmt.Sprintf("region %s: %v", e.Region, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RegionError) Unwrap() error {
	return e.Err
}
