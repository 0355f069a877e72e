package limits

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// RlimitPair is a single kernel rlimit to be applied to a jailed child.
type RlimitPair struct {
	Resource int
	Soft     uint64
	Hard     uint64
}

// Build maps a Limits snapshot into the ordered list of rlimits to install
// in a jailed child. Ordering is irrelevant; each pair is applied with its
// own unix.Setrlimit call inside the runner's rlimit trampoline.
func Build(l Limits) []RlimitPair {
	var pairs []RlimitPair

	// No subprocesses, unless explicitly allowed. NPROC=0 omits the rlimit
	// entirely rather than installing soft=hard=0 (see SPEC_FULL.md Open
	// Questions): the simpler of the two historical behaviors, and nothing
	// in this codebase distinguishes "no limit installed" from "limit of
	// zero" at the observation layer.
	if l.NProc > 0 {
		n := uint64(l.NProc)
		pairs = append(pairs, RlimitPair{unix.RLIMIT_NPROC, n, n})
	}

	// CPU seconds, not wall-clock time. Soft and hard limits are set
	// differently on purpose: hitting the soft limit raises SIGXCPU, a
	// distinguishable "CPU exceeded" signal; hitting the hard limit raises
	// a plain SIGKILL. Both terminate the child; the soft one is easier to
	// diagnose from the exit status alone.
	if l.CPU > 0 {
		cpu := uint64(l.CPU)
		pairs = append(pairs, RlimitPair{unix.RLIMIT_CPU, cpu, cpu + 1})
	}

	// Total virtual address space.
	if l.VMem > 0 {
		vmem := uint64(l.VMem)
		pairs = append(pairs, RlimitPair{unix.RLIMIT_AS, vmem, vmem})
	}

	// Size of written files. Always added, even at zero: zero is the
	// default and means nothing may be written, which combined with a
	// world-writable tmp/ lets callers opt in by raising FSize.
	fsize := uint64(l.FSize)
	pairs = append(pairs, RlimitPair{unix.RLIMIT_FSIZE, fsize, fsize})

	return pairs
}

// LogFields returns slog attributes describing a Build() result, for the
// runner's "about to exec" log line.
func LogFields(pairs []RlimitPair) []any {
	fields := make([]any, 0, len(pairs)*2)
	for _, p := range pairs {
		fields = append(fields, slog.Int("rlimit", p.Resource), slog.Uint64("soft", p.Soft))
	}
	return fields
}
