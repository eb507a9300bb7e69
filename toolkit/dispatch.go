package toolkit

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Dispatch looks up name and invokes its handler with arguments,
// normalizing the result: if the handler returns a value with an
// "output" field, use it; else "content"; else "result"; else stringify
// the whole value. A handler error or a name miss is returned as a Go
// error; callers in package agent convert this into an isError=true
// tool-result rather than aborting the run.
func (r *Registry) Dispatch(name string, arguments map[string]any, tc ToolContext) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if e.schema != nil {
		if err := e.schema.Validate(toAny(arguments)); err != nil {
			return "", fmt.Errorf("toolkit: arguments for %q failed schema validation: %w", name, err)
		}
	}

	result, err := e.handler(arguments, tc)
	if err != nil {
		return "", err
	}
	return normalizeResult(result)
}

// toAny widens a map[string]any so it satisfies jsonschema's validate
// signature regardless of nested value kinds produced by json.Unmarshal.
func toAny(m map[string]any) any {
	return any(m)
}

// normalizeResult flattens a handler's return value to a string.
func normalizeResult(result any) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", nil
	}

	var shaped struct {
		Output  *string `mapstructure:"output"`
		Content *string `mapstructure:"content"`
		Result  *string `mapstructure:"result"`
	}
	if err := mapstructure.Decode(result, &shaped); err == nil {
		switch {
		case shaped.Output != nil:
			return *shaped.Output, nil
		case shaped.Content != nil:
			return *shaped.Content, nil
		case shaped.Result != nil:
			return *shaped.Result, nil
		}
	}

	return fmt.Sprintf("%v", result), nil
}
