package approval

import (
	"frameworks/herald/internal/access"
	"frameworks/herald/internal/content"
	"frameworks/herald/internal/controls"
)

// edges is the content lifecycle state machine. Every status change the
// engine commits is one of these.
var edges = map[content.Status][]content.Status{
	content.StatusDraft:            {content.StatusPendingReview, content.StatusArchived},
	content.StatusPendingReview:    {content.StatusApproved, content.StatusRejected, content.StatusChangesRequested, content.StatusArchived},
	content.StatusChangesRequested: {content.StatusPendingReview, content.StatusArchived},
	content.StatusApproved:         {content.StatusScheduled, content.StatusArchived},
	content.StatusScheduled:        {content.StatusPublished, content.StatusArchived},
	content.StatusRejected:         {content.StatusArchived},
	content.StatusPublished:        {content.StatusArchived},
	content.StatusArchived:         nil,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to content.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// gate names the system-mode capability a transition needs.
type gate int

const (
	gateNone gate = iota
	gateSchedule
	gatePublish
)

// rule binds an action to its source states and target state.
type rule struct {
	action access.Action
	from   []content.Status
	to     content.Status
	gate   gate
}

func (r rule) allows(from content.Status) bool {
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// permits reports whether the mode s allows this rule's transition.
func (r rule) permits(s controls.State) bool {
	switch r.gate {
	case gateSchedule:
		return s.CanSchedule()
	case gatePublish:
		return s.CanPublish()
	}
	return true
}

var nonTerminal = []content.Status{
	content.StatusDraft, content.StatusPendingReview, content.StatusApproved,
	content.StatusRejected, content.StatusChangesRequested, content.StatusScheduled,
	content.StatusPublished,
}

var rules = map[access.Action]rule{
	access.ActionSubmit: {
		action: access.ActionSubmit,
		from:   []content.Status{content.StatusDraft},
		to:     content.StatusPendingReview,
	},
	access.ActionResubmit: {
		action: access.ActionResubmit,
		from:   []content.Status{content.StatusChangesRequested},
		to:     content.StatusPendingReview,
	},
	access.ActionApprove: {
		action: access.ActionApprove,
		from:   []content.Status{content.StatusPendingReview},
		to:     content.StatusApproved,
	},
	access.ActionReject: {
		action: access.ActionReject,
		from:   []content.Status{content.StatusPendingReview},
		to:     content.StatusRejected,
	},
	access.ActionRequestChanges: {
		action: access.ActionRequestChanges,
		from:   []content.Status{content.StatusPendingReview},
		to:     content.StatusChangesRequested,
	},
	access.ActionSchedule: {
		action: access.ActionSchedule,
		from:   []content.Status{content.StatusApproved},
		to:     content.StatusScheduled,
		gate:   gateSchedule,
	},
	access.ActionPublish: {
		action: access.ActionPublish,
		from:   []content.Status{content.StatusScheduled},
		to:     content.StatusPublished,
		gate:   gatePublish,
	},
	access.ActionArchive: {
		action: access.ActionArchive,
		from:   nonTerminal,
		to:     content.StatusArchived,
	},
}

// editable lists the states in which text and hashtags may change.
var editable = []content.Status{content.StatusDraft, content.StatusChangesRequested}
