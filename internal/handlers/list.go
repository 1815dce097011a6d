package handlers

import (
	"context"
	"fmt"
	"strings"

	"jobalertbot/internal/alert"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

// listHandler shows the user's alerts and, on request, per-alert detail.
type listHandler struct{ base }

func newListHandler(deps Deps) Handler {
	return &listHandler{base{deps: deps, name: "list"}}
}

func (h *listHandler) Name() string { return h.name }

func (h *listHandler) Match(ev transport.InboundEvent, cur session.Context) bool {
	return ev.Command == cmdList || inFlow(ev, cur, session.CmdList)
}

func (h *listHandler) Handle(ctx context.Context, ev transport.InboundEvent) {
	if ev.Command == cmdList {
		h.showList(ctx, ev)
		return
	}
	if h.deps.Sessions.CurrentContext(ev.UserID).Step == session.StepSelecting {
		h.showDetail(ctx, ev)
	}
}

func (h *listHandler) showList(ctx context.Context, ev transport.InboundEvent) {
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
	h.beginFlow(ev.UserID, session.CmdList, session.StepSelecting)
	h.reply(ev, listAlerts(alerts))
}

func (h *listHandler) showDetail(ctx context.Context, ev transport.InboundEvent) {
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

	var parts []string
	if len(invalid) > 0 {
		parts = append(parts, invalidIDs(invalid))
	}
	for _, id := range valid {
		a, err := h.deps.Repo.FindByID(ctx, id)
		if err != nil {
			h.log().Warn("load alert detail", logx.String("alert_id", id), logx.Err(err))
			continue
		}
		parts = append(parts, alertDetail(a))
	}
	h.deps.Sessions.ResetToIdle(ev.UserID)
	h.reply(ev, strings.Join(parts, "\n\n"))
}

func alertDetail(a alert.Alert) string {
	return fmt.Sprintf("%s\n%s\nevery %s (%s)\ncreated %s",
		a.ID,
		a.Criteria.Summary(),
		a.Schedule.Period,
		a.Schedule.CronSpec,
		a.CreatedAt.Format("2006-01-02"),
	)
}
