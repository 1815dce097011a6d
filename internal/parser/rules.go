package parser

import (
	"context"
	"strings"

	"jobalertbot/internal/alert"
)

// Rules is a deterministic parser used when no model API key is
// configured. It understands the comma-separated shape
// "role in location, remote, period" well enough for a usable bot.
type Rules struct{}

func NewRules() *Rules { return &Rules{} }

func (r *Rules) Parse(_ context.Context, freeText string, _ int64) (Result, error) {
	text := strings.TrimSpace(freeText)
	if text == "" {
		return failure("Please describe the job you're looking for.", "query"), nil
	}

	var c alert.SearchCriteria
	for i, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		switch {
		case lower == "remote" || lower == "remote ok" || lower == "fully remote":
			c.Remote = true
		case lower == "onsite" || lower == "on-site":
			// explicit, Remote stays false
		case isPeriod(lower):
			c.Period = lower
		case i == 0:
			c.Query, c.Location = splitQueryLocation(part)
		default:
			c.Keywords = append(c.Keywords, part)
		}
	}
	return validate(c)
}

func isPeriod(s string) bool {
	_, err := alert.ScheduleForPeriod(s)
	return s != "" && err == nil
}

// splitQueryLocation splits "Senior Go Engineer in Berlin" on the last
// " in " so role names containing "in" survive.
func splitQueryLocation(s string) (query, location string) {
	lower := strings.ToLower(s)
	if i := strings.LastIndex(lower, " in "); i > 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+4:])
	}
	return s, ""
}
