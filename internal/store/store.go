// Package store holds the sentinel errors shared by the postgres and memory
// implementations of herald's persistence interfaces.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned by a compare-and-swap update whose
	// expected version no longer matches.
	ErrVersionConflict = errors.New("version conflict")
	// ErrModeBlocked is returned by a gated update when the persisted system
	// mode does not permit it.
	ErrModeBlocked = errors.New("blocked by system mode")
)

// ModeBlockedError carries the persisted mode that refused a gated update.
// It matches ErrModeBlocked with errors.Is.
type ModeBlockedError struct {
	Mode   string
	Paused bool
}

func (e *ModeBlockedError) Error() string {
	return fmt.Sprintf("%s: mode=%s paused=%t", ErrModeBlocked, e.Mode, e.Paused)
}

func (e *ModeBlockedError) Unwrap() error { return ErrModeBlocked }
