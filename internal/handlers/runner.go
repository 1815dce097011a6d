package handlers

import (
	"context"
	"runtime/debug"
	"time"

	"jobalertbot/internal/eventbus"
	"jobalertbot/internal/runtime/supervisor"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

// Runner gives each handler its own bus subscription and goroutine.
// A panicking or failing handler never stops delivery to the others.
type Runner struct {
	handlers []Handler
	sessions *session.Store
	bus      *eventbus.Bus[transport.InboundEvent]
	log      logx.Logger
}

func NewRunner(handlers []Handler, sessions *session.Store, bus *eventbus.Bus[transport.InboundEvent], log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{handlers: handlers, sessions: sessions, bus: bus, log: log}
}

// Start subscribes every handler. Subscriptions only see events
// published from this moment on (no replay).
func (r *Runner) Start(sup *supervisor.Supervisor) {
	for _, h := range r.handlers {
		h := h
		ch, unsub := r.bus.Subscribe(64)
		sup.Go0("handler."+h.Name(), func(ctx context.Context) {
			defer unsub()
			r.loop(ctx, h, ch)
		})
	}
	r.log.Info("handlers subscribed", logx.Int("count", len(r.handlers)))
}

func (r *Runner) loop(ctx context.Context, h Handler, ch <-chan transport.InboundEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(ctx, h, ev)
		}
	}
}

// dispatch processes one event to completion, including its outbound
// side effects, before the handler returns to the channel. The session
// is created lazily on the user's first event; Match always sees the
// context as of dispatch time.
func (r *Runner) dispatch(ctx context.Context, h Handler, ev transport.InboundEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in handler",
				logx.String("handler", h.Name()),
				logx.Int64("user_id", ev.UserID),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	sess := r.sessions.GetOrCreate(ev.UserID, ev.ChatID, ev.Username)
	if !h.Match(ev, sess.Context) {
		return
	}

	start := time.Now()
	h.Handle(ctx, ev)
	r.log.Debug("event handled",
		logx.String("handler", h.Name()),
		logx.Int64("user_id", ev.UserID),
		logx.String("cmd", ev.Command),
		logx.Duration("dur", time.Since(start)),
	)
}
