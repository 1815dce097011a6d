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

// searchHandler runs a one-off search through the trigger gate. Nothing
// is persisted and no trigger is registered; the gate call is
// synchronous so the user's confirmation only succeeds when the search
// was actually dispatched.
type searchHandler struct{ base }

func newSearchHandler(deps Deps) Handler {
	return &searchHandler{base{deps: deps, name: "search"}}
}

func (h *searchHandler) Name() string { return h.name }

func (h *searchHandler) Match(ev transport.InboundEvent, cur session.Context) bool {
	return ev.Command == cmdSearch || inFlow(ev, cur, session.CmdSearch)
}

func (h *searchHandler) Handle(ctx context.Context, ev transport.InboundEvent) {
	if ev.Command == cmdSearch {
		h.beginFlow(ev.UserID, session.CmdSearch, session.StepCollecting)
		if ev.Params == "" {
			h.reply(ev, msgSearchIntro)
			return
		}
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

func (h *searchHandler) collect(ctx context.Context, ev transport.InboundEvent, text string) {
	h.collectDescription(ctx, ev, session.CmdSearch, text,
		func(c alert.SearchCriteria, _ session.Session) string {
			return confirmSearch(c)
		})
}

func (h *searchHandler) confirm(ctx context.Context, ev transport.InboundEvent) {
	h.handleConfirmation(ctx, ev,
		session.Context{Command: session.CmdSearch, Step: session.StepCollecting},
		msgConfirmRetry,
		h.commit,
		func(sess session.Session) string {
			if sess.Pending == nil {
				return msgSearchIntro
			}
			return confirmSearch(*sess.Pending)
		})
}

func (h *searchHandler) commit(ctx context.Context, sess session.Session) (string, error) {
	if sess.Pending == nil {
		return "", errors.New("confirming without pending criteria")
	}
	// Ephemeral snapshot; the id only ties the gate's logs together.
	snapshot := alert.Alert{
		ID:        "search-" + uuid.NewString(),
		UserID:    sess.UserID,
		ChatID:    sess.ChatID,
		Criteria:  *sess.Pending,
		CreatedAt: time.Now(),
	}
	if err := h.deps.Gate.Run(ctx, snapshot); err != nil {
		return "", fmt.Errorf("run search: %w", err)
	}
	return "Search is running. Results will arrive here shortly.", nil
}
