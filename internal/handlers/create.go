package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobalertbot/internal/alert"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
)

// createHandler drives the recurring-alert creation flow:
// collect a description, parse it, confirm, then persist and schedule.
type createHandler struct{ base }

func newCreateHandler(deps Deps) Handler {
	return &createHandler{base{deps: deps, name: "create"}}
}

func (h *createHandler) Name() string { return h.name }

func (h *createHandler) Match(ev transport.InboundEvent, cur session.Context) bool {
	return ev.Command == cmdCreate || inFlow(ev, cur, session.CmdCreate)
}

func (h *createHandler) Handle(ctx context.Context, ev transport.InboundEvent) {
	if ev.Command == cmdCreate {
		h.beginFlow(ev.UserID, session.CmdCreate, session.StepCollecting)
		if ev.Params == "" {
			h.reply(ev, msgCreateIntro)
			return
		}
		// Inline parameters skip the prompt and go straight to parsing.
		h.collect(ctx, ev, ev.Params)
		return
	}

	switch h.deps.Sessions.CurrentContext(ev.UserID).Step {
	case session.StepCollecting:
		h.collect(ctx, ev, ev.Text)
	case session.StepConfirming:
		h.confirm(ctx, ev)
	}
}

func (h *createHandler) collect(ctx context.Context, ev transport.InboundEvent, text string) {
	h.collectDescription(ctx, ev, session.CmdCreate, text,
		func(c alert.SearchCriteria, _ session.Session) string {
			return confirmCreate(c)
		})
}

func (h *createHandler) confirm(ctx context.Context, ev transport.InboundEvent) {
	h.handleConfirmation(ctx, ev,
		session.Context{Command: session.CmdCreate, Step: session.StepCollecting},
		msgConfirmRetry,
		h.commit,
		func(sess session.Session) string {
			if sess.Pending == nil {
				return msgCreateIntro
			}
			return confirmCreate(*sess.Pending)
		})
}

// commit persists the alert first and registers its trigger second, so
// a scheduling failure never leaves an unpersisted trigger behind. The
// inverse (persisted but unscheduled) self-heals on the next restart
// via the initial load.
func (h *createHandler) commit(ctx context.Context, sess session.Session) (string, error) {
	if sess.Pending == nil {
		return "", errors.New("confirming without pending criteria")
	}
	sched, err := alert.ScheduleForPeriod(sess.Pending.Period)
	if err != nil {
		return "", err
	}
	now := time.Now()
	a := alert.Alert{
		ID:        uuid.NewString(),
		UserID:    sess.UserID,
		ChatID:    sess.ChatID,
		Criteria:  *sess.Pending,
		Schedule:  sched,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.deps.Repo.Save(ctx, a); err != nil {
		return "", fmt.Errorf("save alert: %w", err)
	}
	if err := h.deps.Scheduler.Add(a); err != nil {
		return "", fmt.Errorf("schedule alert: %w", err)
	}
	return fmt.Sprintf("Alert %s created. I'll check %s.", a.ID, sched.Period), nil
}
