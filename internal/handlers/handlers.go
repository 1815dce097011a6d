// Package handlers implements one command handler per top-level bot
// command. Every handler independently subscribes to the inbound bus,
// inspects every event, and acts only when its relevance predicate
// matches (command name, or free text while the user is inside this
// handler's flow). Predicates are side-effect-free; exactly one handler
// acts per event.
package handlers

import (
	"context"

	"jobalertbot/internal/alert"
	"jobalertbot/internal/parser"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

// Command tokens (without the "/" prefix).
const (
	cmdStart  = "start"
	cmdHelp   = "help"
	cmdCancel = "cancel"
	cmdCreate = "create_alert"
	cmdEdit   = "edit_alert"
	cmdDelete = "delete_alert"
	cmdList   = "my_alerts"
	cmdSearch = "search"
)

// SchedulerPort is the slice of the scheduler the handlers drive.
type SchedulerPort interface {
	Add(job alert.Alert) error
	Remove(alertID string)
	Replace(job alert.Alert) error
}

// GatePort is the synchronous one-off search path.
type GatePort interface {
	Run(ctx context.Context, snapshot alert.Alert) error
}

// Publisher is satisfied by *eventbus.Bus[transport.OutboundEvent].
type Publisher interface {
	Publish(ev transport.OutboundEvent)
}

// Deps carries the collaborators shared by all handlers.
type Deps struct {
	Sessions  *session.Store
	Repo      alert.Repository
	Parser    parser.Parser
	Scheduler SchedulerPort
	Gate      GatePort
	Out       Publisher
	Log       logx.Logger
}

// Handler is one command's state machine. Match must be free of side
// effects; Handle owns all session mutation and outbound traffic for a
// matched event.
type Handler interface {
	Name() string
	Match(ev transport.InboundEvent, cur session.Context) bool
	Handle(ctx context.Context, ev transport.InboundEvent)
}

// All constructs the full handler set.
func All(deps Deps) []Handler {
	return []Handler{
		newStartHandler(deps),
		newHelpHandler(deps),
		newCancelHandler(deps),
		newCreateHandler(deps),
		newEditHandler(deps),
		newDeleteHandler(deps),
		newListHandler(deps),
		newSearchHandler(deps),
		newFallbackHandler(deps),
	}
}

// base bundles the reply plumbing every handler shares.
type base struct {
	deps Deps
	name string
}

func (b base) reply(ev transport.InboundEvent, text string) {
	b.deps.Out.Publish(transport.OutboundEvent{
		Text:    text,
		ChatID:  ev.ChatID,
		Handler: b.name,
	})
}

func (b base) log() logx.Logger { return b.deps.Log }

// inFlow reports whether free text should be routed to this command's
// flow: no command token, matching top-level command, and a step that
// accepts free text.
func inFlow(ev transport.InboundEvent, cur session.Context, cmd session.Command) bool {
	if ev.IsCommand() || cur.Command != cmd {
		return false
	}
	switch cur.Step {
	case session.StepSelecting, session.StepCollecting, session.StepConfirming:
		return true
	}
	return false
}
