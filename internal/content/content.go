// Package content defines the ContentItem model and its input validation.
package content

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"frameworks/herald/internal/apperr"
)

// Status is a ContentItem lifecycle state.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusPendingReview    Status = "pending_review"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusChangesRequested Status = "changes_requested"
	StatusScheduled        Status = "scheduled"
	StatusPublished        Status = "published"
	StatusArchived         Status = "archived"
)

// Statuses lists every lifecycle state.
var Statuses = []Status{
	StatusDraft, StatusPendingReview, StatusApproved, StatusRejected,
	StatusChangesRequested, StatusScheduled, StatusPublished, StatusArchived,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusArchived
}

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", apperr.Validation("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// Platform is the social network a post targets.
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
)

// Platforms lists every platform.
var Platforms = []Platform{PlatformLinkedIn, PlatformInstagram, PlatformTwitter}

var textLimits = map[Platform]int{
	PlatformTwitter:   280,
	PlatformInstagram: 2200,
	PlatformLinkedIn:  3000,
}

func (p Platform) Valid() bool {
	_, ok := textLimits[p]
	return ok
}

// MaxTextLength is the platform's post length limit in characters.
func (p Platform) MaxTextLength() int {
	return textLimits[p]
}

// ParsePlatform validates s as a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", apperr.Validation("platform", fmt.Sprintf("unknown platform %q", s))
	}
	return p, nil
}

// MaxHashtags caps the hashtags attached to one item.
const MaxHashtags = 30

// Item is a post draft and its lifecycle state.
type Item struct {
	ID           string     `json:"id"`
	Platform     Platform   `json:"platform"`
	Text         string     `json:"content_text"`
	Hashtags     []string   `json:"hashtags"`
	Status       Status     `json:"status"`
	OwnerID      string     `json:"owner_id"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Version      int64      `json:"version"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (i Item) Clone() Item {
	out := i
	if i.Hashtags != nil {
		out.Hashtags = append([]string(nil), i.Hashtags...)
	}
	if i.ScheduledFor != nil {
		t := *i.ScheduledFor
		out.ScheduledFor = &t
	}
	if i.PublishedAt != nil {
		t := *i.PublishedAt
		out.PublishedAt = &t
	}
	return out
}

// Filter narrows item listings. Empty fields match everything.
type Filter struct {
	OwnerID  string
	Statuses []Status
	Platform Platform
	Limit    int
}

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// ExtractHashtags returns the unique #tags in text in order of appearance.
func ExtractHashtags(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := m[1]
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// NormalizeHashtags trims whitespace and a leading '#', drops empties and
// removes case-insensitive duplicates.
func NormalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Validate checks text and hashtags against the platform limits.
func Validate(p Platform, text string, hashtags []string) error {
	if !p.Valid() {
		return apperr.Validation("platform", fmt.Sprintf("unknown platform %q", p))
	}
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("content_text", "must not be empty")
	}
	if n := utf8.RuneCountInString(text); n > p.MaxTextLength() {
		return apperr.Validation("content_text",
			fmt.Sprintf("%d characters exceeds the %s limit of %d", n, p, p.MaxTextLength())).
			With("limit", p.MaxTextLength())
	}
	if len(hashtags) > MaxHashtags {
		return apperr.Validation("hashtags", fmt.Sprintf("at most %d hashtags allowed", MaxHashtags)).
			With("limit", MaxHashtags)
	}
	for _, h := range hashtags {
		if strings.ContainsAny(h, " \t\n#") {
			return apperr.Validation("hashtags", fmt.Sprintf("invalid hashtag %q", h))
		}
	}
	return nil
}
