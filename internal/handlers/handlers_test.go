package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"jobalertbot/internal/alert"
	"jobalertbot/internal/parser"
	"jobalertbot/internal/session"
	"jobalertbot/internal/transport"
	"jobalertbot/pkg/logx"
)

// ---- fakes ----

type fakeRepo struct {
	mu      sync.Mutex
	alerts  map[string]alert.Alert
	saveErr error
	findErr error
}

func newFakeRepo() *fakeRepo { return &fakeRepo{alerts: map[string]alert.Alert{}} }

func (r *fakeRepo) Save(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.alerts[a.ID] = a
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (alert.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return alert.Alert{}, alert.ErrNotFound
	}
	return a, nil
}

func (r *fakeRepo) FindByUser(_ context.Context, userID int64) ([]alert.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []alert.Alert
	for _, a := range r.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[id]; !ok {
		return alert.ErrNotFound
	}
	delete(r.alerts, id)
	return nil
}

func (r *fakeRepo) ListAll(context.Context) ([]alert.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alert.Alert
	for _, a := range r.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// fakeParser returns scripted results in order, then repeats the last.
type fakeParser struct {
	mu      sync.Mutex
	results []parser.Result
	err     error
	calls   int
}

func (p *fakeParser) Parse(_ context.Context, _ string, _ int64) (parser.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return parser.Result{}, p.err
	}
	if len(p.results) == 0 {
		return parser.Result{}, errors.New("no scripted result")
	}
	res := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	return res, nil
}

func parseOK(c alert.SearchCriteria) parser.Result {
	cc := c
	return parser.Result{Success: true, Criteria: &cc}
}

func parseFail(msg string, missing ...string) parser.Result {
	return parser.Result{ErrorMessage: msg, MissingFields: missing}
}

type fakeScheduler struct {
	mu       sync.Mutex
	added    []alert.Alert
	removed  []string
	replaced []alert.Alert
	err      error
}

func (s *fakeScheduler) Add(job alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.added = append(s.added, job)
	return nil
}

func (s *fakeScheduler) Remove(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, alertID)
}

func (s *fakeScheduler) Replace(job alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replaced = append(s.replaced, job)
	return nil
}

type fakeGate struct {
	mu   sync.Mutex
	runs []alert.Alert
	err  error
}

func (g *fakeGate) Run(_ context.Context, snapshot alert.Alert) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.runs = append(g.runs, snapshot)
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []transport.OutboundEvent
}

func (p *capturePublisher) Publish(ev transport.OutboundEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *capturePublisher) last(t *testing.T) transport.OutboundEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("no outbound events")
	}
	return p.events[len(p.events)-1]
}

// ---- harness ----

type env struct {
	sessions *session.Store
	repo     *fakeRepo
	parse    *fakeParser
	sched    *fakeScheduler
	gate     *fakeGate
	out      *capturePublisher
	handlers []Handler
}

func newEnv() *env {
	e := &env{
		sessions: session.NewStore(),
		repo:     newFakeRepo(),
		parse:    &fakeParser{},
		sched:    &fakeScheduler{},
		gate:     &fakeGate{},
		out:      &capturePublisher{},
	}
	e.handlers = All(Deps{
		Sessions:  e.sessions,
		Repo:      e.repo,
		Parser:    e.parse,
		Scheduler: e.sched,
		Gate:      e.gate,
		Out:       e.out,
		Log:       logx.Nop(),
	})
	return e
}

// dispatch routes one event the way the runner does and asserts that
// exactly one handler claims it.
func (e *env) dispatch(t *testing.T, ev transport.InboundEvent) {
	t.Helper()
	sess := e.sessions.GetOrCreate(ev.UserID, ev.ChatID, ev.Username)

	var matched []Handler
	for _, h := range e.handlers {
		if h.Match(ev, sess.Context) {
			matched = append(matched, h)
		}
	}
	if len(matched) != 1 {
		names := make([]string, 0, len(matched))
		for _, h := range matched {
			names = append(names, h.Name())
		}
		t.Fatalf("event %+v matched %d handlers (%v), want exactly 1", ev, len(matched), names)
	}
	matched[0].Handle(context.Background(), ev)
}

func cmdEvent(userID int64, cmd, params string) transport.InboundEvent {
	text := "/" + cmd
	if params != "" {
		text += " " + params
	}
	return transport.InboundEvent{Text: text, Command: cmd, Params: params, UserID: userID, ChatID: userID * 10, Username: "u"}
}

func textEvent(userID int64, text string) transport.InboundEvent {
	return transport.InboundEvent{Text: text, UserID: userID, ChatID: userID * 10, Username: "u"}
}

func (e *env) contextOf(userID int64) session.Context {
	return e.sessions.CurrentContext(userID)
}

func (e *env) sessionOf(t *testing.T, userID int64) session.Session {
	t.Helper()
	s, ok := e.sessions.Get(userID)
	if !ok {
		t.Fatalf("no session for user %d", userID)
	}
	return s
}

var berlinGo = alert.SearchCriteria{Query: "Senior Go Engineer", Location: "Berlin", Remote: true, Period: "daily"}

// ---- create flow ----

func TestCreateHappyPath(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}

	e.dispatch(t, cmdEvent(1, "create_alert", ""))
	if got := e.contextOf(1); got != (session.Context{Command: session.CmdCreate, Step: session.StepCollecting}) {
		t.Fatalf("context after command = %v", got)
	}
	if e.out.last(t).Text != msgCreateIntro {
		t.Fatalf("intro not sent: %q", e.out.last(t).Text)
	}

	e.dispatch(t, textEvent(1, "Senior Go Engineer in Berlin, remote, daily"))
	if got := e.contextOf(1); got != (session.Context{Command: session.CmdCreate, Step: session.StepConfirming}) {
		t.Fatalf("context after description = %v", got)
	}
	sess := e.sessionOf(t, 1)
	if sess.Pending == nil || sess.Pending.Query != berlinGo.Query {
		t.Fatalf("pending = %+v", sess.Pending)
	}
	if !strings.Contains(e.out.last(t).Text, "yes / no") {
		t.Fatalf("confirmation not asked: %q", e.out.last(t).Text)
	}

	e.dispatch(t, textEvent(1, "yes"))
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context after confirm = %v", e.contextOf(1))
	}
	if e.repo.count() != 1 {
		t.Fatalf("persisted alerts = %d, want 1", e.repo.count())
	}
	if len(e.sched.added) != 1 {
		t.Fatalf("scheduled triggers = %d, want 1", len(e.sched.added))
	}
	added := e.sched.added[0]
	if added.ID == "" || added.UserID != 1 || added.Schedule.Period != "daily" {
		t.Fatalf("scheduled alert = %+v", added)
	}
	if _, ok := e.repo.alerts[added.ID]; !ok {
		t.Fatal("scheduler and repo disagree on alert id")
	}
	if !strings.Contains(e.out.last(t).Text, "created") {
		t.Fatalf("success not reported: %q", e.out.last(t).Text)
	}
}

func TestCreateInlineParamsSkipPrompt(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}

	e.dispatch(t, cmdEvent(1, "create_alert", "Senior Go Engineer in Berlin, remote, daily"))
	if got := e.contextOf(1); got != (session.Context{Command: session.CmdCreate, Step: session.StepConfirming}) {
		t.Fatalf("context = %v, want confirming (prompt skipped)", got)
	}
	if e.parse.calls != 1 {
		t.Fatalf("parser calls = %d, want 1", e.parse.calls)
	}
}

func TestCreateRetryEscalation(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseFail("no role found", "query")}

	e.dispatch(t, cmdEvent(1, "create_alert", ""))
	e.dispatch(t, textEvent(1, "gibberish one"))
	if got := e.out.last(t).Text; !strings.Contains(got, "no role found") {
		t.Fatalf("first failure reply = %q", got)
	}
	e.dispatch(t, textEvent(1, "gibberish two"))
	e.dispatch(t, textEvent(1, "gibberish three"))

	if got := e.out.last(t).Text; got != structuredFallback() {
		t.Fatalf("third failure reply = %q, want structured prompt", got)
	}
	sess := e.sessionOf(t, 1)
	if sess.RetryCount != 3 {
		t.Fatalf("RetryCount = %d, want 3", sess.RetryCount)
	}
	if got := e.contextOf(1); got != (session.Context{Command: session.CmdCreate, Step: session.StepCollecting}) {
		t.Fatalf("context = %v, still collecting expected", got)
	}
	if e.repo.count() != 0 {
		t.Fatal("parse failures must not persist anything")
	}
}

func TestCreateParserErrorIsFailureNotCrash(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.err = errors.New("api down")

	e.dispatch(t, cmdEvent(1, "create_alert", "something"))
	if !strings.Contains(e.out.last(t).Text, "try again") && !strings.Contains(e.out.last(t).Text, "Try again") {
		t.Fatalf("infra failure reply = %q", e.out.last(t).Text)
	}
	if got := e.contextOf(1); got.Step != session.StepCollecting {
		t.Fatalf("context = %v, want collecting", got)
	}
}

func TestCreateConfirmNoReturnsToCollecting(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}

	e.dispatch(t, cmdEvent(1, "create_alert", "desc"))
	e.dispatch(t, textEvent(1, "no"))

	sess := e.sessionOf(t, 1)
	if sess.Context != (session.Context{Command: session.CmdCreate, Step: session.StepCollecting}) {
		t.Fatalf("context = %v", sess.Context)
	}
	if sess.Pending != nil {
		t.Fatal("pending criteria survived a 'no'")
	}
	if sess.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", sess.RetryCount)
	}
	if e.repo.count() != 0 || len(e.sched.added) != 0 {
		t.Fatal("'no' must not commit")
	}
}

func TestCreateConfirmOtherReasksVerbatim(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}

	e.dispatch(t, cmdEvent(1, "create_alert", "desc"))
	asked := e.out.last(t).Text
	e.dispatch(t, textEvent(1, "hmm maybe"))

	if got := e.out.last(t).Text; got != asked {
		t.Fatalf("re-ask = %q, want %q", got, asked)
	}
	if got := e.contextOf(1); got.Step != session.StepConfirming {
		t.Fatalf("context = %v, want confirming", got)
	}
	sess := e.sessionOf(t, 1)
	if sess.Pending == nil {
		t.Fatal("pending lost on re-ask")
	}
}

func TestCreateCommitFailureIsTerminal(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}
	e.repo.saveErr = errors.New("disk full")

	e.dispatch(t, cmdEvent(1, "create_alert", "desc"))
	e.dispatch(t, textEvent(1, "yes"))

	if e.out.last(t).Text != msgCommitFailed {
		t.Fatalf("reply = %q", e.out.last(t).Text)
	}
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle after terminal failure", e.contextOf(1))
	}
	if len(e.sched.added) != 0 {
		t.Fatal("scheduler touched despite save failure")
	}
}

// ---- cancel / fallback ----

func TestCancelFromAnyStep(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}

	e.dispatch(t, cmdEvent(1, "create_alert", "desc")) // now confirming
	e.dispatch(t, cmdEvent(1, "cancel", ""))

	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle", e.contextOf(1))
	}
	if e.out.last(t).Text != msgCancelled {
		t.Fatalf("reply = %q", e.out.last(t).Text)
	}
	sess := e.sessionOf(t, 1)
	if sess.Pending != nil || sess.RetryCount != 0 {
		t.Fatalf("flow state not cleared: %+v", sess)
	}
}

func TestCancelWhenIdle(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.dispatch(t, cmdEvent(1, "cancel", ""))
	if e.out.last(t).Text != msgNothingToDo {
		t.Fatalf("reply = %q", e.out.last(t).Text)
	}
}

func TestUnknownCommandAndIdleText(t *testing.T) {
	t.Parallel()
	e := newEnv()

	e.dispatch(t, cmdEvent(1, "frobnicate", ""))
	if e.out.last(t).Text != msgUnknownCommand {
		t.Fatalf("reply = %q", e.out.last(t).Text)
	}

	e.dispatch(t, textEvent(1, "hello there"))
	if e.out.last(t).Text != msgIdleFreeText {
		t.Fatalf("reply = %q", e.out.last(t).Text)
	}
}

func TestStartAndHelp(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.dispatch(t, cmdEvent(1, "start", ""))
	if e.out.last(t).Text != msgStart {
		t.Fatalf("start reply = %q", e.out.last(t).Text)
	}
	e.dispatch(t, cmdEvent(1, "help", ""))
	if e.out.last(t).Text != msgHelp {
		t.Fatalf("help reply = %q", e.out.last(t).Text)
	}
}

// ---- search flow ----

func TestSearchRunsGateWithoutPersisting(t *testing.T) {
	t.Parallel()
	e := newEnv()
	criteria := berlinGo
	criteria.Period = ""
	e.parse.results = []parser.Result{parseOK(criteria)}

	e.dispatch(t, cmdEvent(1, "search", "Go dev in Berlin"))
	e.dispatch(t, textEvent(1, "yes"))

	if len(e.gate.runs) != 1 {
		t.Fatalf("gate runs = %d, want 1", len(e.gate.runs))
	}
	run := e.gate.runs[0]
	if run.UserID != 1 || run.Criteria.Query != criteria.Query {
		t.Fatalf("gate snapshot = %+v", run)
	}
	if e.repo.count() != 0 || len(e.sched.added) != 0 {
		t.Fatal("one-off search persisted or scheduled something")
	}
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle", e.contextOf(1))
	}
}

func TestSearchGateFailureReported(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}
	e.gate.err = errors.New("executor down")

	e.dispatch(t, cmdEvent(1, "search", "desc"))
	e.dispatch(t, textEvent(1, "yes"))

	if e.out.last(t).Text != msgCommitFailed {
		t.Fatalf("reply = %q", e.out.last(t).Text)
	}
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle", e.contextOf(1))
	}
}

// ---- delete flow ----

func seedAlert(e *env, id string, userID int64) {
	sched, _ := alert.ScheduleForPeriod("daily")
	e.repo.alerts[id] = alert.Alert{
		ID: id, UserID: userID, ChatID: userID * 10,
		Criteria: alert.SearchCriteria{Query: "q-" + id, Period: "daily"},
		Schedule: sched,
	}
}

func TestDeleteFlow(t *testing.T) {
	t.Parallel()
	e := newEnv()
	seedAlert(e, "a1", 1)
	seedAlert(e, "a2", 1)
	seedAlert(e, "b1", 2) // someone else's

	e.dispatch(t, cmdEvent(1, "delete_alert", ""))
	if got := e.contextOf(1); got != (session.Context{Command: session.CmdDelete, Step: session.StepSelecting}) {
		t.Fatalf("context = %v", got)
	}

	// Mixed selection: b1 is not ours, a1 is.
	e.dispatch(t, textEvent(1, "a1, b1"))
	reply := e.out.last(t).Text
	if !strings.Contains(reply, "b1") || !strings.Contains(reply, "yes / no") {
		t.Fatalf("selection reply = %q", reply)
	}
	if got := e.contextOf(1); got.Step != session.StepConfirming {
		t.Fatalf("context = %v, want confirming", got)
	}

	e.dispatch(t, textEvent(1, "yes"))
	if _, ok := e.repo.alerts["a1"]; ok {
		t.Fatal("a1 not deleted")
	}
	if _, ok := e.repo.alerts["b1"]; !ok {
		t.Fatal("foreign alert b1 deleted")
	}
	if len(e.sched.removed) != 1 || e.sched.removed[0] != "a1" {
		t.Fatalf("scheduler removals = %v", e.sched.removed)
	}
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle", e.contextOf(1))
	}
}

func TestDeleteAllInvalidStaysSelecting(t *testing.T) {
	t.Parallel()
	e := newEnv()
	seedAlert(e, "a1", 1)

	e.dispatch(t, cmdEvent(1, "delete_alert", ""))
	e.dispatch(t, textEvent(1, "nope, wrong"))

	if got := e.contextOf(1); got.Step != session.StepSelecting {
		t.Fatalf("context = %v, want selecting", got)
	}
	if e.repo.count() != 1 {
		t.Fatal("something was deleted")
	}
}

func TestDeleteNoAlerts(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.dispatch(t, cmdEvent(1, "delete_alert", ""))
	if e.out.last(t).Text != msgNoAlerts {
		t.Fatalf("reply = %q", e.out.last(t).Text)
	}
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle", e.contextOf(1))
	}
}

// ---- edit flow ----

func TestEditFlow(t *testing.T) {
	t.Parallel()
	e := newEnv()
	seedAlert(e, "a1", 1)
	newCriteria := alert.SearchCriteria{Query: "Platform Engineer", Period: "weekly"}
	e.parse.results = []parser.Result{parseOK(newCriteria)}

	e.dispatch(t, cmdEvent(1, "edit_alert", ""))
	e.dispatch(t, textEvent(1, "a1"))
	if got := e.contextOf(1); got != (session.Context{Command: session.CmdEdit, Step: session.StepCollecting}) {
		t.Fatalf("context = %v", got)
	}

	e.dispatch(t, textEvent(1, "Platform Engineer, weekly"))
	if got := e.contextOf(1); got.Step != session.StepConfirming {
		t.Fatalf("context = %v, want confirming", got)
	}

	e.dispatch(t, textEvent(1, "yes"))
	got := e.repo.alerts["a1"]
	if got.Criteria.Query != "Platform Engineer" || got.Schedule.Period != "weekly" {
		t.Fatalf("alert not updated: %+v", got)
	}
	if len(e.sched.replaced) != 1 || e.sched.replaced[0].ID != "a1" {
		t.Fatalf("scheduler replacements = %v", e.sched.replaced)
	}
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle", e.contextOf(1))
	}
}

// ---- list flow ----

func TestListFlow(t *testing.T) {
	t.Parallel()
	e := newEnv()

	e.dispatch(t, cmdEvent(1, "my_alerts", ""))
	if e.out.last(t).Text != msgNoAlerts {
		t.Fatalf("empty reply = %q", e.out.last(t).Text)
	}

	seedAlert(e, "a1", 1)
	e.dispatch(t, cmdEvent(1, "my_alerts", ""))
	if !strings.Contains(e.out.last(t).Text, "a1") {
		t.Fatalf("listing = %q", e.out.last(t).Text)
	}
	if got := e.contextOf(1); got.Step != session.StepSelecting {
		t.Fatalf("context = %v, want selecting", got)
	}

	e.dispatch(t, textEvent(1, "a1"))
	detail := e.out.last(t).Text
	if !strings.Contains(detail, "q-a1") || !strings.Contains(detail, "daily") {
		t.Fatalf("detail = %q", detail)
	}
	if !e.contextOf(1).IsIdle() {
		t.Fatalf("context = %v, want idle after detail", e.contextOf(1))
	}
}

// ---- isolation ----

func TestConcurrentUsersDoNotShareState(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo), parseOK(berlinGo)}

	e.dispatch(t, cmdEvent(1, "create_alert", ""))
	e.dispatch(t, cmdEvent(2, "search", ""))

	if got := e.contextOf(1); got.Command != session.CmdCreate {
		t.Fatalf("user 1 context = %v", got)
	}
	if got := e.contextOf(2); got.Command != session.CmdSearch {
		t.Fatalf("user 2 context = %v", got)
	}

	// User 2's text lands in the search flow, not user 1's create flow.
	e.dispatch(t, textEvent(2, "desc"))
	if got := e.contextOf(2); got.Step != session.StepConfirming {
		t.Fatalf("user 2 context = %v", got)
	}
	if got := e.contextOf(1); got.Step != session.StepCollecting {
		t.Fatalf("user 1 context = %v (leaked)", got)
	}
}

func TestNewCommandAbortsCurrentFlow(t *testing.T) {
	t.Parallel()
	e := newEnv()
	e.parse.results = []parser.Result{parseOK(berlinGo)}

	e.dispatch(t, cmdEvent(1, "create_alert", "desc")) // confirming with pending
	e.dispatch(t, cmdEvent(1, "search", ""))

	sess := e.sessionOf(t, 1)
	if sess.Context != (session.Context{Command: session.CmdSearch, Step: session.StepCollecting}) {
		t.Fatalf("context = %v", sess.Context)
	}
	if sess.Pending != nil {
		t.Fatal("pending from aborted flow survived")
	}
}
