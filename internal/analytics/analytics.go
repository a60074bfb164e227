// Package analytics summarises the approval workflow over a recent window:
// where items sit in the lifecycle, which platforms they target, and how
// reviewers have been deciding.
package analytics

import (
	"context"
	"fmt"
	"time"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/apperr"
	"frameworks/herald/internal/content"
)

const (
	DefaultDays = 30
	MaxDays     = 365
)

// Audit actions counted by Workflow.
const (
	actionSubmit         = "content.submit"
	actionResubmit       = "content.resubmit"
	actionApprove        = "content.approve"
	actionReject         = "content.reject"
	actionRequestChanges = "content.request_changes"
)

var reviewActions = []string{actionSubmit, actionResubmit, actionApprove, actionReject, actionRequestChanges}

// Counts are the raw aggregates for one window: items created since the
// cutoff by status and platform, and audit records per action.
type Counts struct {
	Items   map[content.Status]map[content.Platform]int
	Actions map[string]int
}

// Store computes Counts. Only records whose action is in actions are counted.
type Store interface {
	WorkflowCounts(ctx context.Context, since time.Time, actions []string) (Counts, error)
}

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

type ContentMetrics struct {
	TotalItems           int                      `json:"total_items"`
	StatusDistribution   map[content.Status]int   `json:"status_distribution"`
	PlatformDistribution map[content.Platform]int `json:"platform_distribution"`
}

// ApprovalMetrics counts review requests (submissions and resubmissions) and
// reviewer decisions in the window. Pending is the number of items created
// in the window that still wait for review.
type ApprovalMetrics struct {
	TotalRequests    int `json:"total_requests"`
	Approved         int `json:"approved"`
	Rejected         int `json:"rejected"`
	ChangesRequested int `json:"changes_requested"`
	Pending          int `json:"pending"`
}

// Workflow is the report returned to reviewers and admins.
type Workflow struct {
	Period    Period          `json:"period"`
	Content   ContentMetrics  `json:"content_metrics"`
	Approvals ApprovalMetrics `json:"approval_metrics"`
}

type Service struct {
	store Store
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Workflow reports on the last days days. Zero means DefaultDays.
func (s *Service) Workflow(ctx context.Context, actor access.Actor, days int) (Workflow, error) {
	if _, err := access.Authorize(actor, access.ActionReadAnalytics); err != nil {
		return Workflow{}, err
	}
	if days == 0 {
		days = DefaultDays
	}
	if days < 0 || days > MaxDays {
		return Workflow{}, apperr.Validation("days", fmt.Sprintf("must be between 1 and %d", MaxDays))
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	counts, err := s.store.WorkflowCounts(ctx, start, reviewActions)
	if err != nil {
		return Workflow{}, fmt.Errorf("workflow counts: %w", err)
	}

	w := Workflow{
		Period: Period{Start: start, End: end, Days: days},
		Content: ContentMetrics{
			StatusDistribution:   make(map[content.Status]int, len(content.Statuses)),
			PlatformDistribution: make(map[content.Platform]int, len(content.Platforms)),
		},
	}
	for _, st := range content.Statuses {
		w.Content.StatusDistribution[st] = 0
	}
	for _, p := range content.Platforms {
		w.Content.PlatformDistribution[p] = 0
	}
	for st, byPlatform := range counts.Items {
		for p, n := range byPlatform {
			w.Content.TotalItems += n
			w.Content.StatusDistribution[st] += n
			w.Content.PlatformDistribution[p] += n
		}
	}

	w.Approvals = ApprovalMetrics{
		TotalRequests:    counts.Actions[actionSubmit] + counts.Actions[actionResubmit],
		Approved:         counts.Actions[actionApprove],
		Rejected:         counts.Actions[actionReject],
		ChangesRequested: counts.Actions[actionRequestChanges],
		Pending:          w.Content.StatusDistribution[content.StatusPendingReview],
	}
	return w, nil
}
