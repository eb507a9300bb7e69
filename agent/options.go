package agent

import (
	"time"

	"github.com/xonecas/symbrt/queue"
)

// Options configures a Loop. Zero-valued numeric and duration fields
// mean "use the default"; see WithDefaults. The boolean switches and
// queue modes are used as given (DefaultOptions turns the switches on).
type Options struct {
	MaxIterations       int
	MaxToolCallsPerTurn int
	RetryAttempts       int
	RetryDelayBase      time.Duration
	ToolTimeout         time.Duration
	EnableParallelTools bool
	MaxParallelTools    int
	EnableSteering      bool
	EnableFollowUp      bool
	SteeringMode        queue.Mode
	FollowUpMode        queue.Mode
	AutoCompact         bool
	MaxContextTokens    int
	CompactionThreshold float64
	TargetUtilization   float64
	PreserveRecent      int
	MinMessages         int

	// Recitation, when set, is consulted before each model call and may
	// return reminder text (a restated goal, a scratchpad summary) that
	// is appended to the working conversation as a user message before
	// that call; the text stays in the conversation for later turns. Nil
	// disables the hook.
	Recitation func(convoLen, iteration int) (text string, ok bool)
}

// WithDefaults returns o with every zero-valued numeric and duration
// field replaced by its default. Boolean switches and queue modes are
// left unchanged.
func (o Options) WithDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 50
	}
	if o.MaxToolCallsPerTurn <= 0 {
		o.MaxToolCallsPerTurn = 32
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelayBase <= 0 {
		o.RetryDelayBase = time.Second
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = 600 * time.Second
	}
	if o.MaxParallelTools <= 0 {
		o.MaxParallelTools = 8
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = 128_000
	}
	if o.CompactionThreshold <= 0 {
		o.CompactionThreshold = 0.85
	}
	if o.TargetUtilization <= 0 {
		o.TargetUtilization = 0.75
	}
	if o.PreserveRecent <= 0 {
		o.PreserveRecent = 4
	}
	if o.MinMessages <= 0 {
		o.MinMessages = 2
	}
	return o
}

// DefaultOptions returns Options with every default applied and
// parallel tools, steering/follow-up, and auto-compact all enabled:
// the fully-featured configuration a new caller should start from.
func DefaultOptions() Options {
	o := Options{
		EnableParallelTools: true,
		EnableSteering:      true,
		EnableFollowUp:      true,
		AutoCompact:         true,
	}
	return o.WithDefaults()
}
