package session

// Command identifies the top-level flow a user is in.
type Command string

const (
	CmdNone   Command = ""
	CmdCreate Command = "create"
	CmdEdit   Command = "edit"
	CmdDelete Command = "delete"
	CmdList   Command = "list"
	CmdSearch Command = "search"
	CmdHelp   Command = "help"
	CmdStart  Command = "start"
)

// Step identifies how far along a flow the user is.
type Step string

const (
	StepNone       Step = ""
	StepInitial    Step = "initial"
	StepSelecting  Step = "selecting"
	StepCollecting Step = "collecting"
	StepConfirming Step = "confirming"
)

// Context is the closed tagged state of a conversation. The set of
// commands and steps is fixed at compile time; the zero value is Idle.
//
// Exactly one Context is active per user at any instant (enforced by the
// Store, which only ever swaps the whole value).
type Context struct {
	Command Command
	Step    Step
}

// Idle is the resting state: no flow in progress.
var Idle = Context{}

func (c Context) IsIdle() bool { return c == Idle }

// Retryable reports whether RetryCount is meaningful in this context.
// Entering a non-retryable context resets the counter.
func (c Context) Retryable() bool {
	return c.Step == StepCollecting || c.Step == StepSelecting || c.Step == StepConfirming
}

func (c Context) String() string {
	if c.IsIdle() {
		return "idle"
	}
	if c.Step == StepNone {
		return string(c.Command)
	}
	return string(c.Command) + "/" + string(c.Step)
}
