package limits

import (
	"testing"

	"golang.org/x/sys/unix"
)

func findPair(t *testing.T, pairs []RlimitPair, resource int) (RlimitPair, bool) {
	t.Helper()
	for _, p := range pairs {
		if p.Resource == resource {
			return p, true
		}
	}
	return RlimitPair{}, false
}

func TestBuildCPUHasOneSecondGap(t *testing.T) {
	pairs := Build(Limits{CPU: 5})
	p, ok := findPair(t, pairs, unix.RLIMIT_CPU)
	if !ok {
		t.Fatal("expected RLIMIT_CPU pair")
	}
	if p.Soft != 5 || p.Hard != 6 {
		t.Errorf("CPU rlimit = (%d, %d), want (5, 6)", p.Soft, p.Hard)
	}
}

func TestBuildNProcZeroOmitsRlimit(t *testing.T) {
	pairs := Build(Limits{NProc: 0})
	if _, ok := findPair(t, pairs, unix.RLIMIT_NPROC); ok {
		t.Error("NPROC=0 should omit RLIMIT_NPROC entirely")
	}
}

func TestBuildNProcPositive(t *testing.T) {
	pairs := Build(Limits{NProc: 15})
	p, ok := findPair(t, pairs, unix.RLIMIT_NPROC)
	if !ok {
		t.Fatal("expected RLIMIT_NPROC pair")
	}
	if p.Soft != 15 || p.Hard != 15 {
		t.Errorf("NPROC rlimit = (%d, %d), want (15, 15)", p.Soft, p.Hard)
	}
}

func TestBuildFSizeAlwaysPresent(t *testing.T) {
	pairs := Build(Limits{})
	p, ok := findPair(t, pairs, unix.RLIMIT_FSIZE)
	if !ok {
		t.Fatal("expected RLIMIT_FSIZE pair even at zero")
	}
	if p.Soft != 0 || p.Hard != 0 {
		t.Errorf("default FSIZE rlimit = (%d, %d), want (0, 0)", p.Soft, p.Hard)
	}
}

func TestBuildVMemOmittedWhenZero(t *testing.T) {
	pairs := Build(Limits{})
	if _, ok := findPair(t, pairs, unix.RLIMIT_AS); ok {
		t.Error("VMem=0 should omit RLIMIT_AS")
	}
}

func TestMergeLeavesProxyUntouched(t *testing.T) {
	base := Limits{Proxy: ProxyOn}
	on := ProxyOff
	merged := Merge(base, Patch{Proxy: &on})
	if merged.Proxy != ProxyOn {
		t.Errorf("Merge should never apply a Proxy override, got %v", merged.Proxy)
	}
}

func TestMergeOverridesCPU(t *testing.T) {
	base := Limits{CPU: 1}
	five := 5
	merged := Merge(base, Patch{CPU: &five})
	if merged.CPU != 5 {
		t.Errorf("CPU = %d, want 5", merged.CPU)
	}
}
