package jail

import "fmt"

// NotConfigured is returned when a caller asks for a command name with no
// registered CommandSpec or whose BinPath does not resolve to an executable,
// or supplies an extra-file name containing a path separator.
type NotConfigured struct {
	Reason string
}

func (e *NotConfigured) Error() string {
	return fmt.Sprintf("codejail: %s", e.Reason)
}

// NotSupportedForEvaluate is returned when Evaluate is called against a
// command whose CommandSpec has no DriverTemplate.
type NotSupportedForEvaluate struct {
	Command string
}

func (e *NotSupportedForEvaluate) Error() string {
	return fmt.Sprintf("codejail: command %q has no driver template, evaluate is unsupported", e.Command)
}

// ExecutionFailed is returned by Evaluate (never by Execute) when the
// driver child exits non-zero or is signal-terminated.
type ExecutionFailed struct {
	Status         int
	Stdout, Stderr []byte
}

func (e *ExecutionFailed) Error() string {
	return fmt.Sprintf("codejail: evaluate failed (status %d): stdout=%q stderr=%q", e.Status, e.Stdout, e.Stderr)
}

// ProtocolError is returned by Evaluate when the driver's stdout is not a
// valid JSON object.
type ProtocolError struct {
	Raw []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("codejail: malformed evaluate output: %q", e.Raw)
}

// ProxyTransport is returned when every retry against the proxy helper has
// failed.
type ProxyTransport struct {
	Err error
}

func (e *ProxyTransport) Error() string {
	return fmt.Sprintf("codejail: proxy transport failed: %v", e.Err)
}

func (e *ProxyTransport) Unwrap() error { return e.Err }
