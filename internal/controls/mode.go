package controls

import (
	"fmt"
	"strings"
	"time"

	"frameworks/herald/internal/apperr"
)

// Mode is the global automation mode.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeManual Mode = "manual"
	ModeCrisis Mode = "crisis"
)

// Modes lists every mode.
var Modes = []Mode{ModeNormal, ModeManual, ModeCrisis}

func (m Mode) Valid() bool {
	switch m {
	case ModeNormal, ModeManual, ModeCrisis:
		return true
	}
	return false
}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", apperr.Validation("mode", fmt.Sprintf("unknown system mode %q", s))
	}
	return m, nil
}

// State is the singleton system mode value.
type State struct {
	Mode      Mode      `json:"mode"`
	Paused    bool      `json:"paused"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"last_updated_at"`
}

// CanSchedule reports whether approved items may be scheduled.
func (s State) CanSchedule() bool { return s.Mode == ModeNormal && !s.Paused }

// CanPublish reports whether scheduled items may be published.
func (s State) CanPublish() bool { return s.Mode == ModeNormal && !s.Paused }

// CanCreate reports whether new content may be created.
func (s State) CanCreate() bool { return s.Mode != ModeCrisis }

// Status is State plus derived capability flags, as returned by the API.
type Status struct {
	State
	CanSchedule bool `json:"can_schedule"`
	CanPublish  bool `json:"can_publish"`
	CanCreate   bool `json:"can_create"`
}

// StatusOf derives the capability flags for s.
func StatusOf(s State) Status {
	return Status{
		State:       s,
		CanSchedule: s.CanSchedule(),
		CanPublish:  s.CanPublish(),
		CanCreate:   s.CanCreate(),
	}
}

// CancelFailure names a scheduled item the crisis sweep could not archive.
type CancelFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// CancelReport summarises a crisis mass-cancel.
type CancelReport struct {
	Cancelled []string        `json:"cancelled"`
	Failed    []CancelFailure `json:"failed"`
}

// FailedIDs returns the ids in r.Failed.
func (r CancelReport) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.ItemID)
	}
	return ids
}

// Result is returned by every control operation.
type Result struct {
	Previous     State         `json:"previous"`
	Current      Status        `json:"current"`
	Cancellation *CancelReport `json:"cancellation,omitempty"`
}
