package trigger

import (
	"context"

	"jobalertbot/internal/alert"
	"jobalertbot/pkg/logx"
)

// LogExecutor stands in when no executor endpoint is configured. Every
// trigger is logged instead of dispatched, which keeps local setups
// runnable end to end.
type LogExecutor struct {
	log logx.Logger
}

func NewLogExecutor(log logx.Logger) *LogExecutor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogExecutor{log: log}
}

func (e *LogExecutor) Trigger(_ context.Context, snapshot alert.Alert) error {
	e.log.Info("trigger (no endpoint configured)",
		logx.String("alert_id", snapshot.ID),
		logx.Int64("user_id", snapshot.UserID),
		logx.String("query", snapshot.Criteria.Query),
	)
	return nil
}
