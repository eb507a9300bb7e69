// Package modelprovider defines the abstract streaming provider contract,
// its capability flags, cost calculation, and the retry/backoff policy the
// core applies around every provider call. Concrete vendor adapters (how
// bytes flow to any one API) are external collaborators and live outside
// this module; this package only fixes the interface they must satisfy.
package modelprovider

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/message"
)

// ErrProviderNotFound is returned when a requested provider doesn't exist.
var ErrProviderNotFound = errors.New("modelprovider: provider not found")

// ThinkingLevel is a coarse reasoning-budget setting, mapped to
// model-specific token allowances by each provider.
type ThinkingLevel string

const (
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingXHigh   ThinkingLevel = "xhigh"
)

// CacheRetention controls how aggressively a provider is asked to retain
// prompt-cache state between calls.
type CacheRetention string

const (
	CacheNone  CacheRetention = "none"
	CacheShort CacheRetention = "short"
	CacheLong  CacheRetention = "long"
)

// Options carries per-call generation settings.
type Options struct {
	Temperature    float64
	MaxTokens      int
	Reasoning      ThinkingLevel
	CacheRetention CacheRetention
	Headers        map[string]string
	SessionID      string
	// OnPayload, when set, is invoked with the exact outbound request
	// payload a provider is about to send, useful for debugging or
	// recording fixtures. Providers that don't build a single JSON
	// payload may ignore it.
	OnPayload func(payload []byte)
}

// Model describes a model a provider exposes.
type Model struct {
	ID                     string
	Provider               string
	API                    string
	BaseURL                string
	ContextWindow          int
	MaxTokens              int
	CostPerMInput          float64
	CostPerMOutput         float64
	CostPerMCacheRead      float64
	CostPerMCacheWrite     float64
	SupportedInputs        []string // subset of {"text", "image"}
	SupportsReasoning      bool
	SupportsCacheRetention bool
}

// Provider is the abstract streaming interface every vendor adapter must
// implement. Stream must emit events obeying the package event grammar.
type Provider interface {
	// Stream sends ctx and returns an event stream for one assistant turn.
	Stream(ctx context.Context, model Model, convo message.Context, opts Options) (event.Stream, error)

	// Complete collects Stream to completion. A provider with no more
	// efficient non-streaming path may implement this as
	// event.Collect(ctx, must(p.Stream(...))).
	Complete(ctx context.Context, model Model, convo message.Context, opts Options) (*message.AssistantMessage, error)

	// CalculateCost computes the Cost sub-fields and their Total from
	// model's rates and usage's token counts; usage itself is not
	// modified.
	CalculateCost(model Model, usage message.Usage) message.Cost

	SupportsToolCalling() bool
	SupportsVision() bool
	SupportsCacheRetention() bool
	SupportsThinkingLevel(level ThinkingLevel) bool

	APIType() string
	ProviderID() string
}

// Factory creates a configured Provider instance for a given model.
type Factory interface {
	Name() string
	Create(model string, opts Options) Provider
}

// Registry holds named provider factories: multiple configured provider
// entries, each capable of producing a Provider for any model string.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterFactory adds or replaces a named factory.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.factories[name] = f
}

// Create instantiates a Provider from a registered factory.
func (r *Registry) Create(name, model string, opts Options) (Provider, error) {
	f, ok := r.factories[name]
	if !ok {
		log.Error().Str("name", name).Str("model", model).Msg("modelprovider.Registry.Create: factory not found")
		return nil, ErrProviderNotFound
	}
	return f.Create(model, opts), nil
}

// List returns all registered factory names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// TaggedModel pairs a provider config name with a model.
type TaggedModel struct {
	ProviderName string
	Model        Model
}
