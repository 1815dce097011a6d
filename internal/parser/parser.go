// Package parser turns free-text job descriptions into structured
// search criteria. The core awaits one Parse call per user message and
// never retries it; the user re-submitting text is a new call.
package parser

import (
	"context"

	"jobalertbot/internal/alert"
)

// Result is the outcome of one parse attempt. Failure (Success=false)
// is a normal, recoverable outcome and drives the handlers' retry flow.
type Result struct {
	Success       bool
	Criteria      *alert.SearchCriteria
	ErrorMessage  string
	MissingFields []string
}

type Parser interface {
	Parse(ctx context.Context, freeText string, userID int64) (Result, error)
}

func failure(msg string, missing ...string) Result {
	return Result{Success: false, ErrorMessage: msg, MissingFields: missing}
}
