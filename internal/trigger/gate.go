// Package trigger bounds fan-out to the external search executor.
//
// At most N calls run concurrently; callers beyond N block until a slot
// frees. Fire is fire-and-forget (scheduler path), Run is synchronous
// (one-off /search path) and propagates the executor error.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"jobalertbot/internal/alert"
	"jobalertbot/pkg/logx"
)

// Executor performs the actual outbound search call. Results return
// later through a separate callback path, not as a return value.
type Executor interface {
	Trigger(ctx context.Context, snapshot alert.Alert) error
}

const DefaultMaxConcurrent = 4

type Gate struct {
	exec Executor
	sem  chan struct{}
	log  logx.Logger

	wg sync.WaitGroup
}

func NewGate(exec Executor, maxConcurrent int, log logx.Logger) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{
		exec: exec,
		sem:  make(chan struct{}, maxConcurrent),
		log:  log,
	}
}

// Run executes the trigger synchronously. It blocks for a slot (or ctx)
// and returns the executor's error so the caller can surface it.
func (g *Gate) Run(ctx context.Context, snapshot alert.Alert) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sem }()

	if err := g.exec.Trigger(ctx, snapshot); err != nil {
		return fmt.Errorf("trigger alert %s: %w", snapshot.ID, err)
	}
	return nil
}

// Fire executes the trigger in the background. Failures are logged with
// the job's identifying fields and never reach the caller.
func (g *Gate) Fire(ctx context.Context, snapshot alert.Alert) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.Run(ctx, snapshot); err != nil {
			g.log.Warn("trigger failed",
				logx.String("alert_id", snapshot.ID),
				logx.Int64("user_id", snapshot.UserID),
				logx.String("period", snapshot.Schedule.Period),
				logx.Err(err),
			)
		}
	}()
}

// Wait blocks until all in-flight Fire calls finished or ctx expires.
func (g *Gate) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
