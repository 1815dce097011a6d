package handlers

import (
	"context"

	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

var knownCommands = map[string]bool{
	cmdStart: true, cmdHelp: true, cmdCancel: true,
	cmdCreate: true, cmdEdit: true, cmdDelete: true,
	cmdList: true, cmdSearch: true,
}

type startHandler struct{ base }

func newStartHandler(deps Deps) Handler {
	return &startHandler{base{deps: deps, name: "start"}}
}

func (h *startHandler) Name() string { return h.name }

func (h *startHandler) Match(ev transport.InboundEvent, _ session.Context) bool {
	return ev.Command == cmdStart
}

func (h *startHandler) Handle(_ context.Context, ev transport.InboundEvent) {
	h.reply(ev, msgStart)
}

type helpHandler struct{ base }

func newHelpHandler(deps Deps) Handler {
	return &helpHandler{base{deps: deps, name: "help"}}
}

func (h *helpHandler) Name() string { return h.name }

func (h *helpHandler) Match(ev transport.InboundEvent, _ session.Context) bool {
	return ev.Command == cmdHelp
}

func (h *helpHandler) Handle(_ context.Context, ev transport.InboundEvent) {
	h.reply(ev, msgHelp)
}

// cancelHandler aborts whatever flow the user is in, from any step.
type cancelHandler struct{ base }

func newCancelHandler(deps Deps) Handler {
	return &cancelHandler{base{deps: deps, name: "cancel"}}
}

func (h *cancelHandler) Name() string { return h.name }

func (h *cancelHandler) Match(ev transport.InboundEvent, _ session.Context) bool {
	return ev.Command == cmdCancel
}

func (h *cancelHandler) Handle(_ context.Context, ev transport.InboundEvent) {
	cur := h.deps.Sessions.CurrentContext(ev.UserID)
	if cur.IsIdle() {
		h.reply(ev, msgNothingToDo)
		return
	}
	h.deps.Sessions.ResetToIdle(ev.UserID)
	h.log().Info("flow cancelled",
		logx.Int64("user_id", ev.UserID),
		logx.String("context", cur.String()),
	)
	h.reply(ev, msgCancelled)
}

// fallbackHandler catches what no command handler claims: unknown
// commands, and free text from users who are not inside any flow.
type fallbackHandler struct{ base }

func newFallbackHandler(deps Deps) Handler {
	return &fallbackHandler{base{deps: deps, name: "fallback"}}
}

func (h *fallbackHandler) Name() string { return h.name }

func (h *fallbackHandler) Match(ev transport.InboundEvent, cur session.Context) bool {
	if ev.IsCommand() {
		return !knownCommands[ev.Command]
	}
	return !cur.Retryable()
}

func (h *fallbackHandler) Handle(_ context.Context, ev transport.InboundEvent) {
	if ev.IsCommand() {
		h.log().Debug("unknown command",
			logx.Int64("user_id", ev.UserID),
			logx.String("cmd", ev.Command),
		)
		h.reply(ev, msgUnknownCommand)
		return
	}
	h.reply(ev, msgIdleFreeText)
}
