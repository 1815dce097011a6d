package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jobalertbot/internal/alert"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

// deleteHandler removes alerts: select ids, confirm, then delete from
// storage and deregister the triggers.
type deleteHandler struct{ base }

func newDeleteHandler(deps Deps) Handler {
	return &deleteHandler{base{deps: deps, name: "delete"}}
}

func (h *deleteHandler) Name() string { return h.name }

func (h *deleteHandler) Match(ev transport.InboundEvent, cur session.Context) bool {
	return ev.Command == cmdDelete || inFlow(ev, cur, session.CmdDelete)
}

func (h *deleteHandler) Handle(ctx context.Context, ev transport.InboundEvent) {
	if ev.Command == cmdDelete {
		h.begin(ctx, ev)
		return
	}

	switch h.deps.Sessions.CurrentContext(ev.UserID).Step {
	case session.StepSelecting:
		h.selectIDs(ctx, ev)
	case session.StepConfirming:
		h.confirm(ctx, ev)
	}
}

func (h *deleteHandler) begin(ctx context.Context, ev transport.InboundEvent) {
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
	h.beginFlow(ev.UserID, session.CmdDelete, session.StepSelecting)
	h.reply(ev, listAlerts(alerts)+"\n\nWhich alert(s) do you want to delete?")
}

func (h *deleteHandler) selectIDs(ctx context.Context, ev transport.InboundEvent) {
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
		s.Context = session.Context{Command: session.CmdDelete, Step: session.StepConfirming}
		s.SelectedIDs = valid
		return s
	})
	text := confirmDelete(valid)
	if len(invalid) > 0 {
		text = invalidIDs(invalid) + "\n" + text
	}
	h.reply(ev, text)
}

func (h *deleteHandler) confirm(ctx context.Context, ev transport.InboundEvent) {
	h.handleConfirmation(ctx, ev,
		session.Context{Command: session.CmdDelete, Step: session.StepSelecting},
		"Okay. Which alert(s) then? Or /cancel.",
		h.commit,
		func(sess session.Session) string {
			if len(sess.SelectedIDs) == 0 {
				return msgNothingToDo
			}
			return confirmDelete(sess.SelectedIDs)
		})
}

// commit deletes storage first, trigger second. An alert that vanished
// between selection and confirmation is treated as already deleted.
func (h *deleteHandler) commit(ctx context.Context, sess session.Session) (string, error) {
	if len(sess.SelectedIDs) == 0 {
		return "", errors.New("confirming without a selection")
	}
	for _, id := range sess.SelectedIDs {
		if err := h.deps.Repo.DeleteByID(ctx, id); err != nil && !isNotFound(err) {
			return "", fmt.Errorf("delete alert %s: %w", id, err)
		}
		h.deps.Scheduler.Remove(id)
	}
	return fmt.Sprintf("Deleted %s.", strings.Join(sess.SelectedIDs, ", ")), nil
}

func isNotFound(err error) bool { return errors.Is(err, alert.ErrNotFound) }
