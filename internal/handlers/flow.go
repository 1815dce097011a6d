package handlers

import (
	"context"

	"jobalertbot/internal/alert"
	"jobalertbot/internal/parser"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

// maxParseRetries is the consecutive-failure threshold after which the
// bot stops re-asking in prose and switches to the structured prompt.
const maxParseRetries = 3

// beginFlow drops any prior flow state and enters cmd at step. A new
// top-level command always aborts whatever the user was doing before.
func (b base) beginFlow(userID int64, cmd session.Command, step session.Step) {
	b.deps.Sessions.Update(userID, func(s session.Session) session.Session {
		s.PreviousContext = s.Context
		s.Context = session.Context{Command: cmd, Step: step}
		s.Pending = nil
		s.SelectedIDs = nil
		s.RetryCount = 0
		return s
	})
}

// collectDescription runs one parse attempt on text for cmd's flow.
// Success stores the criteria as pending and moves to the confirming
// step; failure keeps (or puts) the user in the collecting step and
// counts the retry. The parser is called exactly once per message.
func (b base) collectDescription(ctx context.Context, ev transport.InboundEvent, cmd session.Command, text string, confirm func(c alert.SearchCriteria, sess session.Session) string) {
	res, err := b.deps.Parser.Parse(ctx, text, ev.UserID)
	if err != nil {
		b.log().Warn("parse attempt failed",
			logx.String("handler", b.name),
			logx.Int64("user_id", ev.UserID),
			logx.Err(err),
		)
		res = parser.Result{ErrorMessage: "I couldn't process that right now. Please try again."}
	}

	if !res.Success || res.Criteria == nil {
		sess, _ := b.deps.Sessions.Update(ev.UserID, func(s session.Session) session.Session {
			s.PreviousContext = s.Context
			s.Context = session.Context{Command: cmd, Step: session.StepCollecting}
			s.RetryCount++
			return s
		})
		if sess.RetryCount >= maxParseRetries {
			b.reply(ev, structuredFallback())
			return
		}
		b.reply(ev, parseFailure(res.ErrorMessage, res.MissingFields))
		return
	}

	c := *res.Criteria
	sess, _ := b.deps.Sessions.Update(ev.UserID, func(s session.Session) session.Session {
		s.PreviousContext = s.Context
		s.Context = session.Context{Command: cmd, Step: session.StepConfirming}
		s.Pending = &c
		return s
	})
	b.reply(ev, confirm(c, sess))
}

// handleConfirmation routes a yes/no answer at a confirming step.
//
// yes: commit runs once; its message (or the generic failure text) is
// sent and the session returns to Idle either way. Commit failures must
// leave no partial registration behind; that is commit's contract.
// no: pending criteria are dropped, the retry counter advances, and the
// user lands on noTarget to try again.
// anything else: the confirmation question is re-asked verbatim.
func (b base) handleConfirmation(ctx context.Context, ev transport.InboundEvent, noTarget session.Context, recollect string,
	commit func(ctx context.Context, sess session.Session) (string, error),
	reask func(sess session.Session) string,
) {
	switch classifyAnswer(ev.Text) {
	case answerYes:
		sess, ok := b.deps.Sessions.Get(ev.UserID)
		if !ok {
			return
		}
		text, err := commit(ctx, sess)
		if err != nil {
			b.log().Error("commit failed",
				logx.String("handler", b.name),
				logx.Int64("user_id", ev.UserID),
				logx.Err(err),
			)
			text = msgCommitFailed
		}
		b.deps.Sessions.ResetToIdle(ev.UserID)
		b.reply(ev, text)

	case answerNo:
		sess, _ := b.deps.Sessions.Update(ev.UserID, func(s session.Session) session.Session {
			s.PreviousContext = s.Context
			s.Context = noTarget
			s.Pending = nil
			s.RetryCount++
			return s
		})
		if sess.RetryCount >= maxParseRetries {
			b.reply(ev, structuredFallback())
			return
		}
		b.reply(ev, recollect)

	default:
		sess, ok := b.deps.Sessions.Get(ev.UserID)
		if !ok {
			return
		}
		b.reply(ev, reask(sess))
	}
}

// validSelection partitions candidate ids into the user's own alerts
// and everything else. Ownership is checked against storage, never
// against what the list message happened to show.
func (b base) validSelection(ctx context.Context, userID int64, candidates []string) (valid, invalid []string, err error) {
	owned, err := b.deps.Repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	own := make(map[string]bool, len(owned))
	for _, a := range owned {
		own[a.ID] = true
	}
	for _, id := range candidates {
		if own[id] {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid, nil
}
