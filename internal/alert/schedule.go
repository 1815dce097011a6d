package alert

import "fmt"

// Schedule pairs the human-readable period with its cron expression.
// Both are persisted so the stored record stays self-describing.
type Schedule struct {
	Period   string `json:"period"`
	CronSpec string `json:"cron_spec"`
}

// DefaultPeriod applies when the parser produced no recurrence.
const DefaultPeriod = "daily"

// Fixed period set. The cron specs use the scheduler's configured
// timezone; daily/weekly fire at 09:00 local.
var periodSpecs = map[string]string{
	"hourly": "0 * * * *",
	"daily":  "0 9 * * *",
	"weekly": "0 9 * * 1",
}

// ScheduleForPeriod maps a period name to its Schedule. The empty period
// falls back to DefaultPeriod; anything else is a validation error.
func ScheduleForPeriod(period string) (Schedule, error) {
	p := period
	if p == "" {
		p = DefaultPeriod
	}
	spec, ok := periodSpecs[p]
	if !ok {
		return Schedule{}, fmt.Errorf("unsupported period %q (want hourly, daily or weekly)", period)
	}
	return Schedule{Period: p, CronSpec: spec}, nil
}

// KnownPeriods lists the accepted period names (stable order).
func KnownPeriods() []string { return []string{"hourly", "daily", "weekly"} }
