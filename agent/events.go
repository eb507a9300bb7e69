package agent

// LifecycleKind identifies a Loop-level lifecycle notification, distinct
// from the provider-stream events in package event, which are forwarded
// to RunOptions.OnEvent unchanged.
type LifecycleKind int

const (
	LifecycleTurnStart LifecycleKind = iota
	LifecycleToolResult
	LifecycleTurnEnd
	LifecycleAgentEnd
	LifecycleError
)

// Lifecycle is one loop-level notification, emitted via
// RunOptions.OnLifecycle.
type Lifecycle struct {
	Kind      LifecycleKind
	Iteration int
	ToolName  string
	ToolText  string
	Steered   bool
	FollowUp  bool
	Err       error
}
