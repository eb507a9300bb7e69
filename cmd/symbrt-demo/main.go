// Command symbrt-demo wires the runtime's pieces together end to end:
// load config, build a provider registry, register a sample tool, then
// run the agent loop once against a prompt (a tool-call turn followed by
// a text turn from the mock provider), printing the streamed text deltas
// and logging each tool result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/symbrt/agent"
	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/internal/config"
	"github.com/xonecas/symbrt/internal/constants"
	"github.com/xonecas/symbrt/message"
	"github.com/xonecas/symbrt/modelprovider"
	"github.com/xonecas/symbrt/toolkit"
)

func main() {
	setupLogging()

	flagConfig := flag.String("config", "", "path to config.toml (defaults to ~/.config/symbrt/config.toml)")
	flagPrompt := flag.String("prompt", "say hello", "user prompt for the demo run")
	flag.Parse()

	cfg, err := config.Load(resolveConfigPath(*flagConfig))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	registry := buildProviderRegistry(cfg)
	providerName, providerCfg := resolveProvider(cfg, registry)

	prov, err := registry.Create(providerName, providerCfg.Model, modelprovider.Options{
		Temperature: providerCfg.Temperature,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating provider: %v\n", err)
		os.Exit(1)
	}
	prov = modelprovider.NewRateLimited(prov, 120)

	tools := buildToolRegistry()

	loop := agent.New(prov, modelprovider.Model{ID: providerCfg.Model}, tools, cfg.Agent.ToOptions())

	convo := message.Context{
		SystemPrompt: "You are a terse demo assistant.",
		Tools:        tools.Definitions(),
	}.Append(message.UserMessage{Text: *flagPrompt, CreatedAt: time.Now()})

	final, err := loop.Run(context.Background(), convo, agent.RunOptions{
		OnEvent: func(evt event.Event) {
			if evt.Type == event.TextDelta {
				fmt.Print(evt.Delta)
			}
		},
		OnLifecycle: func(l agent.Lifecycle) {
			if l.Kind == agent.LifecycleToolResult {
				log.Info().Str("tool", l.ToolName).Msg("tool result")
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError running agent: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	if final.StopReason == message.StopReasonError {
		fmt.Fprintf(os.Stderr, "agent ended in error: %s\n", final.ErrorMessage)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if dataDir, err := config.DataDir(); err == nil {
		p := filepath.Join(dataDir, constants.DefaultConfigFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(".", constants.DefaultConfigFileName)
}

// buildProviderRegistry registers a mock factory per configured provider.
// Concrete vendor adapters live outside this module (modelprovider.Provider
// only fixes the interface they implement); the demo uses
// modelprovider.MockProvider so the wiring runs without network access.
func buildProviderRegistry(cfg *config.Config) *modelprovider.Registry {
	registry := modelprovider.NewRegistry()
	for name := range cfg.Providers {
		mock := modelprovider.NewMock(name, demoToolCallScript(), demoFinalTextScript())
		registry.RegisterFactory(name, modelprovider.NewMockFactory(name, mock))
	}
	return registry
}

func resolveProvider(cfg *config.Config, registry *modelprovider.Registry) (string, config.ProviderConfig) {
	name := cfg.DefaultProvider
	if name == "" {
		names := registry.List()
		if len(names) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no providers configured")
			os.Exit(1)
		}
		name = names[0]
	}
	pcfg, ok := cfg.Providers[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: provider %q not found\n", name)
		os.Exit(1)
	}
	return name, pcfg
}

// demoToolCallScript is the model's first turn: it calls the "echo" tool.
func demoToolCallScript() []event.Event {
	return []event.Event{
		{Type: event.Start},
		{Type: event.ToolCallStart, ContentIndex: 0, ToolCallID: "call_demo", ToolCallName: "echo"},
		{Type: event.ToolCallEnd, ContentIndex: 0, Arguments: map[string]any{"text": "hello from the tool registry"}},
		{Type: event.Done, DoneReason: event.DoneToolUse},
	}
}

// demoFinalTextScript is the model's second turn, after it sees the echo
// tool's result: a plain text final answer.
func demoFinalTextScript() []event.Event {
	return []event.Event{
		{Type: event.Start},
		{Type: event.TextStart, ContentIndex: 0},
		{Type: event.TextDelta, ContentIndex: 0, Delta: "done: hello from the tool registry"},
		{Type: event.TextEnd, ContentIndex: 0},
		{Type: event.Done, DoneReason: event.DoneStop},
	}
}

func buildToolRegistry() *toolkit.Registry {
	reg := toolkit.NewRegistry()
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	})
	_ = reg.Register(message.ToolDescriptor{
		Name:        "echo",
		Description: "Echoes its text argument back.",
		Parameters:  schema,
	}, func(arguments map[string]any, tc toolkit.ToolContext) (any, error) {
		text, _ := arguments["text"].(string)
		return text, nil
	})
	return reg
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
