// Package leads holds the lead triage model: the four lead categories, the
// selection cursor over New, and the Coordinator that keeps them consistent
// with the server while status changes are confirmed.
package leads

import (
	"fmt"
	"strings"
	"time"

	rderrors "github.com/redoraai/redora-cli/pkg/errors"
)

// Status is the server-side lead status.
type Status string

const (
	StatusNew         Status = "NEW"
	StatusCompleted   Status = "COMPLETED"
	StatusNotRelevant Status = "NOT_RELEVANT"
	StatusLead        Status = "LEAD"
)

// ParseStatus accepts wire names case-insensitively plus the short forms
// used on the command line.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return StatusNew, nil
	case "completed", "complete", "done":
		return StatusCompleted, nil
	case "not_relevant", "not-relevant", "discarded", "discard":
		return StatusNotRelevant, nil
	case "lead", "leads":
		return StatusLead, nil
	default:
		return "", fmt.Errorf("unknown lead status %q: %w", s, rderrors.ErrValidation)
	}
}

// IsValid reports whether s is one of the four known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusCompleted, StatusNotRelevant, StatusLead:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Category is one of the four disjoint lead lists.
type Category int

const (
	CategoryNew Category = iota
	CategoryCompleted
	CategoryDiscarded
	CategoryLeads

	numCategories = 4
)

// Categories lists every category in display order.
var Categories = [numCategories]Category{CategoryNew, CategoryCompleted, CategoryDiscarded, CategoryLeads}

// CategoryFor maps a status to the category that holds it.
func CategoryFor(s Status) (Category, bool) {
	switch s {
	case StatusNew:
		return CategoryNew, true
	case StatusCompleted:
		return CategoryCompleted, true
	case StatusNotRelevant:
		return CategoryDiscarded, true
	case StatusLead:
		return CategoryLeads, true
	}
	return 0, false
}

// Status is the inverse of CategoryFor.
func (c Category) Status() Status {
	switch c {
	case CategoryCompleted:
		return StatusCompleted
	case CategoryDiscarded:
		return StatusNotRelevant
	case CategoryLeads:
		return StatusLead
	default:
		return StatusNew
	}
}

func (c Category) String() string {
	switch c {
	case CategoryNew:
		return "new"
	case CategoryCompleted:
		return "completed"
	case CategoryDiscarded:
		return "discarded"
	case CategoryLeads:
		return "leads"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// ParseCategory accepts category names and the status aliases of ParseStatus.
func ParseCategory(s string) (Category, error) {
	st, err := ParseStatus(s)
	if err != nil {
		return 0, fmt.Errorf("unknown category %q: %w", s, rderrors.ErrValidation)
	}
	c, _ := CategoryFor(st)
	return c, nil
}

// Lead is a Reddit post matched against tracked keywords.
type Lead struct {
	ID             string         `json:"id" yaml:"id"`
	SourceID       string         `json:"source_id" yaml:"source_id"`
	Subreddit      string         `json:"subreddit,omitempty" yaml:"subreddit,omitempty"`
	RelevancyScore int            `json:"relevancy_score" yaml:"relevancy_score"`
	Title          string         `json:"title" yaml:"title"`
	Author         string         `json:"author,omitempty" yaml:"author,omitempty"`
	URL            string         `json:"url,omitempty" yaml:"url,omitempty"`
	PostCreatedAt  time.Time      `json:"post_created_at" yaml:"post_created_at"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	Status         Status         `json:"status" yaml:"status"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// clone copies l so callers can't reach the coordinator's metadata map.
func (l Lead) clone() Lead {
	if l.Metadata != nil {
		md := make(map[string]any, len(l.Metadata))
		for k, v := range l.Metadata {
			md[k] = v
		}
		l.Metadata = md
	}
	return l
}

// Filter narrows which leads populate New.
type Filter struct {
	RelevancyScore int       `json:"relevancy_score" yaml:"relevancy_score"`
	Subreddit      string    `json:"subreddit,omitempty" yaml:"subreddit,omitempty"`
	From           time.Time `json:"from,omitempty" yaml:"from,omitempty"`
	To             time.Time `json:"to,omitempty" yaml:"to,omitempty"`
}

// Validate checks score bounds and date ordering.
func (f Filter) Validate() error {
	if f.RelevancyScore < 0 || f.RelevancyScore > 100 {
		return fmt.Errorf("relevancy score %d out of range 0-100: %w", f.RelevancyScore, rderrors.ErrValidation)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("date range starts after it ends: %w", rderrors.ErrValidation)
	}
	return nil
}
