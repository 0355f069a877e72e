//go:build integration

package jail

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/codejail/internal/config"
	"github.com/ehrlich-b/codejail/internal/limits"
)

// newTestExecutor registers python3 with no sandbox user (the test runner
// is assumed to already be an unprivileged account, matching the reference
// scenarios that don't require a second OS user).
func newTestExecutor(t *testing.T, lim limits.Limits) *Executor {
	t.Helper()
	cfg := config.NewManual(lim)
	cfg.Configure(config.CommandSpec{
		Name:           "python3",
		BinPath:        "/usr/bin/python3",
		Argv:           []string{"-E", "-B"},
		DriverTemplate: "python3",
	})
	return New(cfg)
}

func TestIntegrationHelloWorld(t *testing.T) {
	e := newTestExecutor(t, limits.Limits{CPU: 5, Realtime: 5, VMem: 256 << 20, FSize: 1 << 20, NProc: 15})
	res, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("print('hello world')"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != 0 {
		t.Fatalf("status = %d, stderr = %s", res.Status, res.Stderr)
	}
	if strings.TrimSpace(string(res.Stdout)) != "hello world" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestIntegrationUncaughtExceptionNonZeroExit(t *testing.T) {
	e := newTestExecutor(t, limits.Limits{CPU: 5, Realtime: 5, VMem: 256 << 20, FSize: 1 << 20, NProc: 15})
	res, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("raise ValueError('boom')"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status == 0 {
		t.Fatal("expected non-zero exit for an uncaught exception")
	}
	if !strings.Contains(string(res.Stderr), "ValueError") {
		t.Errorf("stderr = %q, want it to mention ValueError", res.Stderr)
	}
}

func TestIntegrationCPUExhaustionIsKilled(t *testing.T) {
	e := newTestExecutor(t, limits.Limits{CPU: 1, Realtime: 10, VMem: 256 << 20, FSize: 1 << 20, NProc: 15})
	res, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("x = 0\nwhile True:\n    x += 1"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status >= 0 {
		t.Fatalf("status = %d, want a negative (signal) status from the CPU rlimit", res.Status)
	}
}

func TestIntegrationWallClockKill(t *testing.T) {
	e := newTestExecutor(t, limits.Limits{CPU: 30, Realtime: 1, VMem: 256 << 20, FSize: 1 << 20, NProc: 15})
	start := time.Now()
	res, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("import time\ntime.sleep(10)"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("took %v, want the 1s watchdog to kill it well before the 10s sleep completes", elapsed)
	}
	if res.Status >= 0 {
		t.Errorf("status = %d, want a negative (signal) status from the watchdog kill", res.Status)
	}
}

func TestIntegrationFileWriteBlockedByDefaultFSizeZero(t *testing.T) {
	e := newTestExecutor(t, limits.Limits{CPU: 5, Realtime: 5, VMem: 256 << 20, FSize: 0, NProc: 15})
	res, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("open('out.txt', 'w').write('x' * 1024)"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status == 0 {
		t.Fatal("expected the write to fail under an FSIZE=0 rlimit")
	}
}

func TestIntegrationTempFilesAreSwept(t *testing.T) {
	e := newTestExecutor(t, limits.Limits{CPU: 5, Realtime: 5, VMem: 256 << 20, FSize: 1 << 20, NProc: 15})
	res, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("import os\nopen(os.path.join(os.environ['TMPDIR'], 'scratch.txt'), 'w').write('x')"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != 0 {
		t.Fatalf("status = %d, stderr = %s", res.Status, res.Stderr)
	}
	// The sandbox directory itself is removed by Execute's deferred
	// cleanup, so there's nothing left on disk to assert against here --
	// this test exists to document that leftover tmp/ files never cause
	// Execute to fail or leak into the next job's sandbox.
}

func TestIntegrationEvaluateRoundTripsGlobals(t *testing.T) {
	e := newTestExecutor(t, limits.Limits{CPU: 5, Realtime: 5, VMem: 256 << 20, FSize: 1 << 20, NProc: 15})
	out, err := e.Evaluate(context.Background(), "python3", "y = x + 1", map[string]any{"x": float64(41)}, JobRequest{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out["y"] != float64(42) {
		t.Errorf("y = %v, want 42", out["y"])
	}
}

func TestIntegrationProxyModeMatchesDirectExecution(t *testing.T) {
	if _, err := os.Stat("/usr/bin/python3"); err != nil {
		t.Skip("python3 not available")
	}
	lim := limits.Limits{CPU: 5, Realtime: 5, VMem: 256 << 20, FSize: 1 << 20, NProc: 15, Proxy: limits.ProxyOn}
	e := newTestExecutor(t, lim)
	res, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("print('via proxy')"),
	})
	if err != nil {
		t.Fatalf("execute via proxy: %v", err)
	}
	if res.Status != 0 {
		t.Fatalf("status = %d, stderr = %s", res.Status, res.Stderr)
	}
	if strings.TrimSpace(string(res.Stdout)) != "via proxy" {
		t.Errorf("stdout = %q", res.Stdout)
	}

	lim.Proxy = limits.ProxyOff
	direct, err := newTestExecutor(t, lim).Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("print('via proxy')"),
	})
	if err != nil {
		t.Fatalf("execute directly: %v", err)
	}
	if direct.Status != res.Status || string(direct.Stdout) != string(res.Stdout) || string(direct.Stderr) != string(res.Stderr) {
		t.Errorf("proxy result (%d, %q, %q) differs from direct result (%d, %q, %q)",
			res.Status, res.Stdout, res.Stderr, direct.Status, direct.Stdout, direct.Stderr)
	}
}

// TestIntegrationProxyRetriesAfterHelperKilled exercises "Proxy retry" at
// the Executor level: killing the helper process between two Execute calls
// must not surface as an Execute error, only as a respawn the caller never
// sees.
func TestIntegrationProxyRetriesAfterHelperKilled(t *testing.T) {
	if _, err := os.Stat("/usr/bin/python3"); err != nil {
		t.Skip("python3 not available")
	}
	lim := limits.Limits{CPU: 5, Realtime: 5, VMem: 256 << 20, FSize: 1 << 20, NProc: 15, Proxy: limits.ProxyOn}
	e := newTestExecutor(t, lim)

	first, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("print('first')"),
	})
	if err != nil {
		t.Fatalf("first execute via proxy: %v", err)
	}
	if first.Status != 0 {
		t.Fatalf("first status = %d, stderr = %s", first.Status, first.Stderr)
	}

	firstPID := e.proxyCh.PID()
	if firstPID == 0 {
		t.Fatal("expected a helper PID after the first execute")
	}
	proc, err := os.FindProcess(firstPID)
	if err != nil {
		t.Fatalf("find helper process: %v", err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("kill helper mid-flight: %v", err)
	}
	proc.Wait()

	second, err := e.Execute(context.Background(), JobRequest{
		Command: "python3",
		Code:    []byte("print('second')"),
	})
	if err != nil {
		t.Fatalf("second execute after helper death: %v", err)
	}
	if second.Status != 0 {
		t.Fatalf("second status = %d, stderr = %s", second.Status, second.Stderr)
	}
	if strings.TrimSpace(string(second.Stdout)) != "second" {
		t.Errorf("stdout = %q", second.Stdout)
	}
	if secondPID := e.proxyCh.PID(); secondPID == 0 || secondPID == firstPID {
		t.Errorf("second PID = %d, want a new nonzero PID (first was %d)", secondPID, firstPID)
	}
}
