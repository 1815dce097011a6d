package transport

import (
	"context"
	"strings"
)

// InboundEvent is one user message, normalized by the adapter.
//
// Command is the leading command token without the "/" prefix ("" when
// the message is free text). Params is everything after the first
// whitespace-delimited token, trimmed.
type InboundEvent struct {
	Text     string
	Command  string
	Params   string
	UserID   int64
	ChatID   int64
	Username string
}

// IsCommand reports whether the event carries a command token.
func (e InboundEvent) IsCommand() bool { return e.Command != "" }

// OutboundEvent is a rendered reply awaiting delivery.
// Handler names the producer for tracing only.
type OutboundEvent struct {
	Text    string
	ChatID  int64
	Handler string
}

// Adapter is the platform binding. It feeds inbound events into the bus
// and owns physical delivery of outbound events (chunking, retry).
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ParseCommand splits raw message text into (command, params).
//
// A command is "text begins with /"; params are the text after the
// first whitespace-delimited token. "/create_alert@SomeBot x" strips
// the bot mention the way Telegram clients append it.
func ParseCommand(text string) (cmd, params string) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "/") {
		return "", ""
	}
	rest := ""
	if i := strings.IndexAny(t, " \t\n"); i >= 0 {
		rest = strings.TrimSpace(t[i+1:])
		t = t[:i]
	}
	word := strings.TrimPrefix(t, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", ""
	}
	return strings.ToLower(word), rest
}
