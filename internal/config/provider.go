// Package config supplies the jail executor's configuration surface: which
// commands are registered, what their default and per-context resource
// limits are, and where that data comes from. The executor itself only ever
// talks to the Provider interface; this package's two concrete
// implementations (Manual and File) are interchangeable and a host may
// supply its own.
package config

import (
	"fmt"

	"github.com/ehrlich-b/codejail/internal/limits"
)

// CommandSpec is the immutable registration for one abstract command name,
// e.g. "python" or "nodejs".
type CommandSpec struct {
	// Name is the abstract command name callers use, e.g. "python".
	Name string
	// BinPath is the absolute path to the interpreter/binary.
	BinPath string
	// User is the sandbox OS user to run as. Empty means "run as the
	// current user" (no sudo prefix) -- only appropriate in tests.
	User string
	// Argv is fixed argv fragments appended right after BinPath, e.g.
	// ["-E", "-B"] for a locked-down Python invocation.
	Argv []string
	// DriverTemplate, if non-empty, is the driver script template used by
	// Evaluate mode (see internal/wrapper). A command with no
	// DriverTemplate can only be used with Execute.
	DriverTemplate string
}

// Provider is the pull interface the jail orchestrator consumes for
// configuration. Implementations must be safe for concurrent read access.
type Provider interface {
	// GetCommand returns the CommandSpec registered under name, if any.
	GetCommand(name string) (CommandSpec, bool)
	// GetDefaultLimits returns the process-wide default limits.
	GetDefaultLimits() limits.Limits
	// GetOverrides returns the configured patch for a context key. Returns
	// the zero Patch if no overrides are configured for that key.
	GetOverrides(contextKey string) limits.Patch
	// EffectiveLimits merges GetDefaultLimits with GetOverrides(contextKey).
	EffectiveLimits(contextKey string) limits.Limits
}

// NotConfigured is returned when a caller asks for a command name that has
// no registered CommandSpec.
type NotConfigured struct {
	Command string
}

func (e *NotConfigured) Error() string {
	return fmt.Sprintf("codejail: command %q is not configured", e.Command)
}

// effectiveLimits is the shared merge logic behind EffectiveLimits, usable
// by any Provider implementation.
func effectiveLimits(p Provider, contextKey string) limits.Limits {
	return limits.Merge(p.GetDefaultLimits(), p.GetOverrides(contextKey))
}
