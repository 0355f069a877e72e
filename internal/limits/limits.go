// Package limits holds the resource-limit snapshot used by a jail executor
// call and the code that turns it into kernel rlimit pairs.
package limits

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ProxyMode is a tri-state toggle for whether a call should go through the
// proxy helper: on, off, or "fall back to the CODEJAIL_PROXY environment
// variable".
type ProxyMode int

const (
	ProxyInherit ProxyMode = iota
	ProxyOn
	ProxyOff
)

// Limits are process-wide resource limits for jailed code. Zero means
// "disable that limit" except FSize, where zero means "no files may be
// created".
type Limits struct {
	// CPU is the maximum CPU seconds the jailed code can use.
	CPU int
	// Realtime is the maximum wall-clock seconds the jailed code can run.
	Realtime int
	// VMem is the total virtual address space available, in bytes.
	VMem int64
	// FSize is the maximum size of a single file the jailed code can write,
	// in bytes.
	FSize int64
	// NProc is the maximum number of processes/threads the jailed code can
	// create.
	NProc int
	// Proxy selects whether this call should run through the proxy helper.
	Proxy ProxyMode
}

// Patch is a partial override over a Limits value. A nil field leaves the
// base value untouched.
type Patch struct {
	CPU      *int
	Realtime *int
	VMem     *int64
	FSize    *int64
	NProc    *int
	Proxy    *ProxyMode
}

// Merge applies patch on top of base, returning a new Limits. PROXY is never
// carried over from patch — overriding PROXY per context is silently
// ignored, by design (see OverridesMap in section 3 and property 6 of
// section 8 in SPEC_FULL.md): a context override
// is meant to tighten or loosen resource ceilings, not to flip the
// process-wide fork-offload strategy underneath unrelated callers.
func Merge(base Limits, patch Patch) Limits {
	out := base
	if patch.CPU != nil {
		out.CPU = *patch.CPU
	}
	if patch.Realtime != nil {
		out.Realtime = *patch.Realtime
	}
	if patch.VMem != nil {
		out.VMem = *patch.VMem
	}
	if patch.FSize != nil {
		out.FSize = *patch.FSize
	}
	if patch.NProc != nil {
		out.NProc = *patch.NProc
	}
	return out
}

// Describe renders a Limits snapshot for log lines, using human-readable
// byte sizes so operators don't have to convert bytes to MB by hand.
func (l Limits) Describe() string {
	vmem := "unlimited"
	if l.VMem > 0 {
		vmem = humanize.IBytes(uint64(l.VMem))
	}
	fsize := "0 (no writes)"
	if l.FSize > 0 {
		fsize = humanize.IBytes(uint64(l.FSize))
	}
	return fmt.Sprintf("cpu=%ds realtime=%ds vmem=%s fsize=%s nproc=%d", l.CPU, l.Realtime, vmem, fsize, l.NProc)
}
