// Package wrapper builds the driver script and stdin payload for "safe
// evaluation" mode (internal/jail's Evaluate) and implements the JSON-safe
// sieve shared by both ends of that wire.
package wrapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Registry maps a CommandSpec.DriverTemplate name to the embedded driver
// script run inside the child. Only "python3" ships built in; a host can
// register additional templates for other interpreters at init time.
var Registry = map[string]string{
	"python3": python3Driver,
}

// Build renders the driver script and its stdin payload for one Evaluate
// call: the script is the fixed driver source for template, and stdin is a
// JSON array `[code, globalsIn]` with globalsIn already passed through the
// JSON-safe sieve.
func Build(template, code string, globalsIn map[string]any) (script, stdin []byte, err error) {
	src, ok := Registry[template]
	if !ok {
		return nil, nil, fmt.Errorf("codejail: unknown driver template %q", template)
	}
	payload, err := json.Marshal([]any{code, JSONSafe(globalsIn)})
	if err != nil {
		return nil, nil, fmt.Errorf("codejail: encode driver payload: %w", err)
	}
	return []byte(src), payload, nil
}

// ParseOutput parses a driver's stdout back into the output globals map
// written by the driver's own JSON-safe sieve.
func ParseOutput(raw []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &out); err != nil {
		return nil, fmt.Errorf("codejail: parse driver output: %w", err)
	}
	return out, nil
}

// JSONSafe filters in down to the subset of values representable on the
// wire: nil, bool, numbers, strings, []byte (decoded as UTF-8), []any, and
// map[string]any, recursively. The key "__builtins__" is always dropped
// (carried over from the Python ancestor's globals-dict convention). Keys
// are subjected to the same round-trip probe as values -- a key holding
// invalid UTF-8 (Go map keys are untyped strings, so this is possible even
// though JSON object keys never are) is dropped along with its value,
// exactly as json_safe does on the Python side. Every retained value is
// probed with a round-trip marshal/unmarshal of its own — anything that
// fails (invalid UTF-8, NaN/Inf floats) is dropped rather than causing an
// error.
func JSONSafe(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == "__builtins__" {
			continue
		}
		safeKey, keyOK := probeRoundTrip(k)
		if !keyOK {
			continue
		}
		if safe, ok := sieveValue(v); ok {
			out[safeKey.(string)] = safe
		}
	}
	return out
}

func sieveValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case bool, int, int32, int64, float32, float64, string:
		return probeRoundTrip(val)
	case []byte:
		if !utf8.Valid(val) {
			return nil, false
		}
		return probeRoundTrip(string(val))
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if safe, ok := sieveValue(item); ok {
				out = append(out, safe)
			}
		}
		return out, true
	case map[string]any:
		return JSONSafe(val), true
	default:
		return nil, false
	}
}

// probeRoundTrip confirms v survives Marshal followed by Unmarshal, the
// same check the driver side performs before writing a value back.
func probeRoundTrip(v any) (any, bool) {
	// json.Marshal replaces invalid UTF-8 with U+FFFD instead of failing,
	// so a string that would not come back unchanged is rejected here.
	if s, ok := v.(string); ok && !utf8.ValidString(s) {
		return nil, false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var rt any
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, false
	}
	return v, true
}
