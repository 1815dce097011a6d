// Package alert defines the job-alert domain model shared by the
// handlers, the scheduler, and the repository.
package alert

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("alert not found")

// SearchCriteria is the structured output of the free-text parser.
// The core treats most fields as opaque; only Period drives scheduling.
type SearchCriteria struct {
	Query    string   `json:"query"`
	Location string   `json:"location,omitempty"`
	Remote   bool     `json:"remote,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	// Period is the human-readable recurrence: hourly, daily, weekly.
	Period string `json:"period,omitempty"`
}

// Summary renders the criteria back to the user for confirmation.
func (c SearchCriteria) Summary() string {
	var b strings.Builder
	b.WriteString(c.Query)
	if c.Location != "" {
		b.WriteString(" in ")
		b.WriteString(c.Location)
	}
	if c.Remote {
		b.WriteString(", remote")
	}
	if len(c.Keywords) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(c.Keywords, ", "))
		b.WriteString("]")
	}
	if c.Period != "" {
		b.WriteString(", ")
		b.WriteString(c.Period)
	}
	return b.String()
}

// Alert is one persisted recurring job alert.
type Alert struct {
	ID       string
	UserID   int64
	ChatID   int64
	Criteria SearchCriteria
	Schedule Schedule

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository is the persistence collaborator. Implementations must give
// read-after-write consistency for the core's own writes.
type Repository interface {
	Save(ctx context.Context, a Alert) error
	FindByID(ctx context.Context, id string) (Alert, error)
	FindByUser(ctx context.Context, userID int64) ([]Alert, error)
	DeleteByID(ctx context.Context, id string) error
	// ListAll feeds the scheduler's initial load at startup.
	ListAll(ctx context.Context) ([]Alert, error)
}
