// Package subagent runs a bounded, nested invocation of the agent loop:
// a sub-agent spawned by a tool handler (e.g. a "delegate this subtask"
// tool) rather than the top-level caller.
package subagent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xonecas/symbrt/agent"
	"github.com/xonecas/symbrt/internal/constants"
	"github.com/xonecas/symbrt/message"
	"github.com/xonecas/symbrt/modelprovider"
	"github.com/xonecas/symbrt/toolkit"
)

const (
	// MaxDepth is the recursion depth allowed below the root agent; a
	// sub-agent may not itself spawn a sub-agent.
	MaxDepth = 1

	// DefaultMaxIterations bounds a sub-agent run when the caller
	// doesn't specify one.
	DefaultMaxIterations = 5

	// MaxAllowedIterations is the upper bound a caller may request.
	MaxAllowedIterations = 20
)

// Options configures one sub-agent run.
type Options struct {
	Provider      modelprovider.Provider
	Model         modelprovider.Model
	Tools         *toolkit.Registry
	Prompt        string
	MaxIterations int
}

// Result reports a sub-agent run's outcome.
type Result struct {
	Content string
	Usage   message.Usage
}

// Run executes one sub-agent turn to completion and returns its final
// assistant text. Tool calls and retries run through the same agent.Loop
// the root agent uses, with steering and follow-up disabled; a sub-agent
// simply gets its own Loop, its own Context, and a tool registry view
// with the delegation tool filtered out (MaxDepth enforcement).
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("subagent: cancelled: %w", err)
	}
	if opts.Provider == nil {
		return Result{}, fmt.Errorf("subagent: provider is required")
	}
	if opts.Tools == nil {
		return Result{}, fmt.Errorf("subagent: tool registry is required")
	}
	if strings.TrimSpace(opts.Prompt) == "" {
		return Result{}, fmt.Errorf("subagent: prompt is required")
	}

	maxIter := DefaultMaxIterations
	if opts.MaxIterations > 0 {
		if opts.MaxIterations > MaxAllowedIterations {
			return Result{}, fmt.Errorf("subagent: max_iterations too large (max %d)", MaxAllowedIterations)
		}
		maxIter = opts.MaxIterations
	}

	convo := message.Context{
		SystemPrompt: SystemPrompt(),
	}.Append(message.UserMessage{Text: opts.Prompt, CreatedAt: time.Now()})

	tools := opts.Tools.Subset(FilterTools(opts.Tools)...)
	loop := agent.New(opts.Provider, opts.Model, tools, agent.Options{
		MaxIterations:       maxIter,
		EnableSteering:      false,
		EnableFollowUp:      false,
		EnableParallelTools: true,
	})

	final, err := loop.Run(ctx, convo, agent.RunOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("subagent: run failed: %w", err)
	}
	if final.StopReason == message.StopReasonError {
		return Result{}, fmt.Errorf("subagent: %s", final.ErrorMessage)
	}

	text := strings.TrimSpace(final.Text())
	if text == "" {
		return Result{}, fmt.Errorf("subagent: produced no final response")
	}
	return Result{Content: text, Usage: final.Usage}, nil
}

// FilterTools returns every tool descriptor name registered in reg
// except the delegation tool, suitable for passing to
// toolkit.Registry.Definitions as an allow-list: the restricted toolset
// a sub-agent runs with (MaxDepth's enforcement point).
func FilterTools(reg *toolkit.Registry) []string {
	defs := reg.Definitions()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		if d.Name == constants.DelegateToolName {
			continue
		}
		names = append(names, d.Name)
	}
	return names
}

// SystemPrompt returns the system prompt a sub-agent runs with: a fixed
// base prompt plus any AGENTS.md instructions found up the directory
// tree or in the user's config directory.
func SystemPrompt() string {
	parts := []string{basePrompt}
	if instructions := loadAgentInstructions(); instructions != "" {
		parts = append(parts, instructions)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n---\n\n"))
}

const basePrompt = `You are a focused sub-agent handling one delegated subtask.
Use the tools available to you to complete it, then report your final
result as plain text. You cannot delegate further subtasks.`

// loadAgentInstructions searches for AGENTS.md files from the current
// working directory up to the filesystem root, then in the user's
// config directory, and concatenates them with the user-config file
// first and the file nearest the working directory last.
func loadAgentInstructions() string {
	var instructions []string

	if cwd, err := os.Getwd(); err == nil {
		dir := cwd
		for {
			if content := readFileIfExists(filepath.Join(dir, constants.AgentsInstructionsFile)); content != "" {
				instructions = append(instructions, content)
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		if content := readFileIfExists(filepath.Join(home, ".config", constants.ConfigDirName, constants.AgentsInstructionsFile)); content != "" {
			instructions = append(instructions, content)
		}
	}

	for i, j := 0, len(instructions)-1; i < j; i, j = i+1, j-1 {
		instructions[i], instructions[j] = instructions[j], instructions[i]
	}
	return strings.Join(instructions, "\n\n")
}

func readFileIfExists(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
