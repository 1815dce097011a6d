// Package telegram binds the bot to Telegram through long polling.
// Inbound messages are normalized into events and published on the
// inbound bus; outbound events are delivered rate-limited and chunked.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"jobalertbot/internal/eventbus"
	"jobalertbot/internal/runtime/supervisor"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second
	defaultRatePerSec  = 20
	textLimit          = 4000
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec caps outbound sends across all chats.
	RatePerSec int
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	in  *eventbus.Bus[transport.InboundEvent]
	out *eventbus.Bus[transport.OutboundEvent]

	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor
}

func New(cfg Config, in *eventbus.Bus[transport.InboundEvent], out *eventbus.Bus[transport.OutboundEvent], log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		in:      in,
		out:     out,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		cmd, params := transport.ParseCommand(m.Text)
		a.in.Publish(transport.InboundEvent{
			Text:     m.Text,
			Command:  cmd,
			Params:   params,
			UserID:   m.Sender.ID,
			ChatID:   m.Chat.ID,
			Username: m.Sender.Username,
		})
		return nil
	})
}

// SetRate adjusts the outbound rate limit at runtime (config reload).
func (a *Adapter) SetRate(perSec int) {
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	a.limiter.SetLimit(rate.Limit(perSec))
	a.limiter.SetBurst(perSec)
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "telegram"))),
	)
	sup := a.sup
	a.runMu.Unlock()

	outCh, unsub := a.out.Subscribe(256)
	sup.Go0("telegram.deliver", func(c context.Context) {
		defer unsub()
		a.deliverLoop(c, outCh)
	})

	// Dropped events are counted on the buses; flush them as one
	// periodic warning instead of per-event log spam.
	sup.Go0("telegram.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.flushDropped()
				return
			case <-ticker.C:
				a.flushDropped()
			}
		}
	})

	sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	sup.Go0("telegram.poll", func(_ context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	})

	return nil
}

func (a *Adapter) flushDropped() {
	if n := a.in.Dropped(); n > 0 {
		a.log.Warn("inbound events dropped (subscribers slow)", logx.Any("count", n))
	}
	if n := a.out.Dropped(); n > 0 {
		a.log.Warn("outbound events dropped (delivery slow)", logx.Any("count", n))
	}
}

func (a *Adapter) deliverLoop(ctx context.Context, ch <-chan transport.OutboundEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.deliver(ctx, ev)
		}
	}
}

func (a *Adapter) deliver(ctx context.Context, ev transport.OutboundEvent) {
	for _, chunk := range splitText(ev.Text, textLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := a.bot.Send(&tele.Chat{ID: ev.ChatID}, chunk); err != nil {
			a.log.Warn("send failed",
				logx.Int64("chat_id", ev.ChatID),
				logx.String("handler", ev.Handler),
				logx.Err(err),
			)
			return
		}
	}
}

// Stop shuts the adapter down, bounded by ctx. Long-poll teardown is
// best-effort; shutdown never hangs on Telegram.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	sup.Cancel()
	go a.bot.Stop()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

// splitText chunks long replies, preferring newline boundaries so lists
// don't break mid-line.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
