package modelprovider

import (
	"context"
	"sync"

	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/message"
)

// MockProvider is a test provider that replays a scripted sequence of
// event.Event streams, one per call.
type MockProvider struct {
	mu       sync.Mutex
	id       string
	scripts  [][]event.Event
	callIdx  int
	toolCall bool
	vision   bool
	caching  bool
}

// NewMock creates a mock provider that replays scripts in order, one per
// Stream call. If fewer scripts than calls are provided, the last script
// repeats.
func NewMock(id string, scripts ...[]event.Event) *MockProvider {
	return &MockProvider{id: id, scripts: scripts, toolCall: true}
}

// WithCapabilities overrides the capability flags reported by the mock.
func (p *MockProvider) WithCapabilities(toolCall, vision, caching bool) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolCall, p.vision, p.caching = toolCall, vision, caching
	return p
}

func (p *MockProvider) Stream(ctx context.Context, model Model, convo message.Context, opts Options) (event.Stream, error) {
	p.mu.Lock()
	var script []event.Event
	if len(p.scripts) > 0 {
		idx := p.callIdx
		if idx >= len(p.scripts) {
			idx = len(p.scripts) - 1
		}
		script = p.scripts[idx]
	}
	p.callIdx++
	p.mu.Unlock()

	ch := make(chan event.Event, len(script))
	for _, e := range script {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (p *MockProvider) Complete(ctx context.Context, model Model, convo message.Context, opts Options) (*message.AssistantMessage, error) {
	stream, err := p.Stream(ctx, model, convo, opts)
	if err != nil {
		return nil, err
	}
	return event.Collect(ctx, stream)
}

func (p *MockProvider) CalculateCost(model Model, usage message.Usage) message.Cost {
	return CalculateCost(model, usage)
}

func (p *MockProvider) SupportsToolCalling() bool                { return p.toolCall }
func (p *MockProvider) SupportsVision() bool                     { return p.vision }
func (p *MockProvider) SupportsCacheRetention() bool             { return p.caching }
func (p *MockProvider) SupportsThinkingLevel(ThinkingLevel) bool { return false }
func (p *MockProvider) APIType() string                          { return "mock" }
func (p *MockProvider) ProviderID() string                       { return p.id }

// MockFactory adapts a single MockProvider as a Factory for Registry tests.
type MockFactory struct {
	name string
	p    *MockProvider
}

func NewMockFactory(name string, p *MockProvider) *MockFactory {
	return &MockFactory{name: name, p: p}
}

func (f *MockFactory) Name() string                               { return f.name }
func (f *MockFactory) Create(model string, opts Options) Provider { return f.p }
