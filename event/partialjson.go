package event

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// PartialJSONParser accumulates toolcallDelta fragments into a textual
// buffer and, at each delta, returns the longest valid prefix parse,
// used for UI preview only. The authoritative arguments map always comes
// from the strict parse of the final buffer at toolcallEnd (see
// StrictParseArguments).
type PartialJSONParser struct {
	buf string
}

// NewPartialJSONParser returns an empty accumulator.
func NewPartialJSONParser() *PartialJSONParser {
	return &PartialJSONParser{}
}

// Feed appends a fragment and returns the best-effort decode of the
// buffer so far. A nil map means even repair could not produce valid
// JSON yet (e.g. the buffer is still `{"path`).
func (p *PartialJSONParser) Feed(fragment string) map[string]any {
	p.buf += fragment
	return p.bestEffortParse()
}

// Buffer returns the raw accumulated text.
func (p *PartialJSONParser) Buffer() string {
	return p.buf
}

func (p *PartialJSONParser) bestEffortParse() map[string]any {
	if p.buf == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(p.buf), &out); err == nil {
		return out
	}
	repaired, err := jsonrepair.JSONRepair(p.buf)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil
	}
	return out
}

// StrictParseArguments decodes the final, complete argument buffer. It
// is the only source of authoritative ToolCallEnd.Arguments. Callers
// must not fall back to the lenient repair path here; a tool call whose
// arguments fail strict parsing at toolcallEnd is a provider protocol
// error.
func StrictParseArguments(buf string) (map[string]any, error) {
	if buf == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(buf), &out); err != nil {
		return nil, err
	}
	return out, nil
}
