package compact

import (
	"strings"
	"testing"
	"time"

	"github.com/xonecas/symbrt/message"
)

func userMsg(text string, at time.Time) message.UserMessage {
	return message.UserMessage{Text: text, CreatedAt: at}
}

func assistantToolCall(id string, at time.Time) message.AssistantMessage {
	return message.AssistantMessage{
		Content:   []message.ContentPart{message.ToolCallPart{ID: id, Name: "lookup"}},
		CreatedAt: at,
	}
}

func toolResult(id string, at time.Time) message.ToolResultMessage {
	return message.NewTextToolResult(id, "lookup", "ok", false)
}

// The trailing PreserveRecent messages always survive a smart
// compaction, regardless of their score.
func TestSmartPrune_PreservesRecent(t *testing.T) {
	base := time.Now()
	var msgs []message.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, userMsg(strings.Repeat("x", 500), base.Add(time.Duration(i)*time.Second)))
	}
	ctx := message.Context{Messages: msgs}

	cfg := Config{Strategy: Smart, MaxTokens: 400, TargetUtilization: 0.5, PreserveRecent: 3}
	out, stats := Run(ctx, cfg)

	if stats.EntriesRemoved == 0 {
		t.Fatal("expected compaction to remove entries given the tight budget")
	}
	n := len(out.Messages)
	if n < 3 {
		t.Fatalf("expected at least PreserveRecent=3 messages retained, got %d", n)
	}
	last3 := out.Messages[n-3:]
	for i, want := range msgs[len(msgs)-3:] {
		if last3[i].Timestamp() != want.Timestamp() {
			t.Errorf("recent message %d not preserved in order", i)
		}
	}
}

// A compaction that keeps a tool call but drops its result (or vice
// versa) must drop the orphan too.
func TestRun_EnforcesPairing(t *testing.T) {
	base := time.Now()
	ctx := message.Context{Messages: []message.Message{
		userMsg("first", base),
		assistantToolCall("call-1", base.Add(time.Second)),
		toolResult("call-1", base.Add(2*time.Second)),
		userMsg(strings.Repeat("y", 5000), base.Add(3*time.Second)),
	}}

	cfg := Config{Strategy: Truncate, MaxTokens: 40, TargetUtilization: 1.0, MinMessages: 1}
	out, _ := Run(ctx, cfg)

	var sawCall, sawResult bool
	for _, m := range out.Messages {
		switch v := m.(type) {
		case message.AssistantMessage:
			if len(v.ToolCalls()) > 0 {
				sawCall = true
			}
		case message.ToolResultMessage:
			sawResult = true
		}
	}
	if sawCall != sawResult {
		t.Fatalf("pairing invariant broken: sawCall=%v sawResult=%v", sawCall, sawResult)
	}
}

func TestTruncatePrune_RespectsMinMessages(t *testing.T) {
	base := time.Now()
	var msgs []message.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, userMsg(strings.Repeat("z", 1000), base.Add(time.Duration(i)*time.Second)))
	}
	ctx := message.Context{Messages: msgs}

	cfg := Config{Strategy: Truncate, MaxTokens: 1, TargetUtilization: 1.0, MinMessages: 2}
	out, _ := Run(ctx, cfg)

	if len(out.Messages) < 2 {
		t.Fatalf("expected at least MinMessages=2 retained, got %d", len(out.Messages))
	}
}

func TestCompactPrune_TruncatesOversizedText(t *testing.T) {
	ctx := message.Context{Messages: []message.Message{
		message.AssistantMessage{Content: []message.ContentPart{
			message.TextPart{Text: strings.Repeat("a", 3000)},
		}},
	}}

	out, _ := Run(ctx, Config{Strategy: Compact, TruncateTextCeiling: 100})

	am := out.Messages[0].(message.AssistantMessage)
	text := am.Text()
	if !strings.HasSuffix(text, "...[truncated]") {
		t.Fatalf("expected truncation suffix, got len=%d", len(text))
	}
	if len(text) > 100+len("\n...[truncated]") {
		t.Fatalf("truncated text too long: %d", len(text))
	}
}

func TestShouldCompact(t *testing.T) {
	ctx := message.Context{Messages: []message.Message{
		userMsg(strings.Repeat("x", 4000), time.Now()),
	}}
	if !ShouldCompact(ctx, 1000, 0.5) {
		t.Fatal("expected ShouldCompact to trigger when over threshold")
	}
	if ShouldCompact(ctx, 100000, 0.75) {
		t.Fatal("expected ShouldCompact to stay false under a generous budget")
	}
}

func TestCompactor_Compact_DelegatesToRun(t *testing.T) {
	ctx := message.Context{Messages: []message.Message{userMsg("hi", time.Now())}}
	var c Compactor
	out, stats := c.Compact(ctx, Config{Strategy: Smart, MaxTokens: 1000})
	if len(out.Messages) != 1 {
		t.Fatalf("expected message preserved, got %d", len(out.Messages))
	}
	if stats.EntriesRemoved != 0 {
		t.Fatalf("expected no removals under a generous budget, got %d", stats.EntriesRemoved)
	}
}
