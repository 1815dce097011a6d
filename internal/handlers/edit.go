package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobalertbot/internal/alert"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

// editHandler replaces the criteria of one or more existing alerts:
// select ids, collect a new description, confirm, then persist and swap
// the triggers.
type editHandler struct{ base }

func newEditHandler(deps Deps) Handler {
	return &editHandler{base{deps: deps, name: "edit"}}
}

func (h *editHandler) Name() string { return h.name }

func (h *editHandler) Match(ev transport.InboundEvent, cur session.Context) bool {
	return ev.Command == cmdEdit || inFlow(ev, cur, session.CmdEdit)
}

func (h *editHandler) Handle(ctx context.Context, ev transport.InboundEvent) {
	if ev.Command == cmdEdit {
		h.begin(ctx, ev)
		return
	}

	switch h.deps.Sessions.CurrentContext(ev.UserID).Step {
	case session.StepSelecting:
		h.selectIDs(ctx, ev)
	case session.StepCollecting:
		h.collect(ctx, ev)
	case session.StepConfirming:
		h.confirm(ctx, ev)
	}
}

func (h *editHandler) begin(ctx context.Context, ev transport.InboundEvent) {
	alerts, err := h.deps.Repo.FindByUser(ctx, ev.UserID)
	if err != nil {
		h.log().Error("list alerts", logx.Int64("user_id", ev.UserID), logx.Err(err))
		h.reply(ev, msgCommitFailed)
		return
	}
	if len(alerts) == 0 {
		h.deps.Sessions.ResetToIdle(ev.UserID)
		h.reply(ev, msgNoAlerts)
		return
	}
	h.beginFlow(ev.UserID, session.CmdEdit, session.StepSelecting)
	h.reply(ev, listAlerts(alerts)+"\n\nWhich alert(s) do you want to edit?")
}

func (h *editHandler) selectIDs(ctx context.Context, ev transport.InboundEvent) {
	ids := splitIDs(ev.Text)
	if len(ids) == 0 {
		h.reply(ev, "Send one or more alert ids, or /cancel.")
		return
	}
	valid, invalid, err := h.validSelection(ctx, ev.UserID, ids)
	if err != nil {
		h.log().Error("validate selection", logx.Int64("user_id", ev.UserID), logx.Err(err))
		h.reply(ev, msgCommitFailed)
		return
	}
	if len(valid) == 0 {
		h.reply(ev, invalidIDs(invalid))
		return
	}

	h.deps.Sessions.Update(ev.UserID, func(s session.Session) session.Session {
		s.PreviousContext = s.Context
		s.Context = session.Context{Command: session.CmdEdit, Step: session.StepCollecting}
		s.SelectedIDs = valid
		return s
	})
	text := msgEditCollect
	if len(invalid) > 0 {
		text = invalidIDs(invalid) + "\n" + text
	}
	h.reply(ev, text)
}

func (h *editHandler) collect(ctx context.Context, ev transport.InboundEvent) {
	h.collectDescription(ctx, ev, session.CmdEdit, ev.Text,
		func(c alert.SearchCriteria, sess session.Session) string {
			return confirmEdit(c, sess.SelectedIDs)
		})
}

func (h *editHandler) confirm(ctx context.Context, ev transport.InboundEvent) {
	h.handleConfirmation(ctx, ev,
		session.Context{Command: session.CmdEdit, Step: session.StepCollecting},
		msgConfirmRetry,
		h.commit,
		func(sess session.Session) string {
			if sess.Pending == nil {
				return msgEditCollect
			}
			return confirmEdit(*sess.Pending, sess.SelectedIDs)
		})
}

// commit rewrites each selected alert and swaps its trigger. Alerts are
// processed one by one; the first failure stops the batch and reports,
// already-updated alerts stay updated.
func (h *editHandler) commit(ctx context.Context, sess session.Session) (string, error) {
	if sess.Pending == nil {
		return "", errors.New("confirming without pending criteria")
	}
	if len(sess.SelectedIDs) == 0 {
		return "", errors.New("confirming without a selection")
	}
	sched, err := alert.ScheduleForPeriod(sess.Pending.Period)
	if err != nil {
		return "", err
	}

	for _, id := range sess.SelectedIDs {
		a, err := h.deps.Repo.FindByID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("load alert %s: %w", id, err)
		}
		a.Criteria = *sess.Pending
		a.Schedule = sched
		a.UpdatedAt = time.Now()
		if err := h.deps.Repo.Save(ctx, a); err != nil {
			return "", fmt.Errorf("save alert %s: %w", id, err)
		}
		if err := h.deps.Scheduler.Replace(a); err != nil {
			return "", fmt.Errorf("reschedule alert %s: %w", id, err)
		}
	}
	return fmt.Sprintf("Updated %s. I'll check %s.",
		strings.Join(sess.SelectedIDs, ", "), sched.Period), nil
}
