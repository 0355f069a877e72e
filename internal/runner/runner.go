// Package runner forks/execs one jailed child: a fresh process group, the
// rlimits from internal/limits installed on the child's own process image
// via a self-reexec trampoline (see rlimitinit.go), byte-transparent
// stdin/stdout/stderr, and an optional real-time watchdog. It has no
// notion of sandbox directories or drivers — those belong to internal/jail,
// which calls the runner directly or through the proxy helper in
// internal/proxy; it does know about sudo, since the trampoline and the
// watchdog's kill both have to route through it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/codejail/internal/limits"
)

// Spec is one invocation of the runner.
type Spec struct {
	// Argv is the target command line: the command's fixed binary and
	// argv, with no sudo prefix and no rlimit trampoline -- Run composes
	// both around Argv itself, using Rlimits and SudoUser below.
	Argv []string
	// Cwd is the child's working directory.
	Cwd string
	// Env is the child's exact environment. Never inherits the runner's
	// own environment — an empty Env means the child sees nothing.
	Env []string
	// Stdin is written to the child's stdin and then closed.
	Stdin []byte
	// Rlimits, when non-empty, are installed on the child's own process
	// image by the rlimit-init trampoline before it execs into Argv (see
	// rlimitinit.go) -- never via a parent-side unix.Prlimit call racing
	// the child's own exec.
	Rlimits []limits.RlimitPair
	// RealtimeSeconds, if positive, bounds wall-clock time; exceeding it
	// kills the child's process group.
	RealtimeSeconds int
	// Slug tags log lines for this call, if non-empty.
	Slug string
	// SudoUser, when non-empty, names the sandbox user Argv was launched
	// under via `sudo -u`. The watchdog and any caller-triggered kill
	// route through `sudo pkill` instead of a direct signal, since the
	// host user generally can't signal that process group itself.
	SudoUser string
}

// Result is the outcome of one Run call.
type Result struct {
	// Status is the child's exit status: non-negative values are exit
	// codes, negative values are -signal for a signal-terminated child.
	Status int
	Stdout []byte
	Stderr []byte
}

// Run executes spec to completion. It returns a non-nil error only for
// runner-level failures (couldn't start the child, couldn't wait on it);
// a child that exits non-zero or is killed is reported through Result,
// not error.
func Run(ctx context.Context, spec Spec, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(spec.Argv) == 0 {
		return Result{}, fmt.Errorf("codejail: empty argv")
	}

	argv, err := buildTrampolineArgv(spec.Argv, spec.Rlimits, spec.SudoUser)
	if err != nil {
		return Result{}, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env
	if cmd.Env == nil {
		// exec.Cmd treats a nil Env as "inherit the parent's environment".
		cmd.Env = []string{}
	}
	// New session and process group: every descendant the child forks
	// shares it, so a single group kill reaches them all.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, fmt.Errorf("codejail: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("codejail: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("codejail: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("codejail: start child: %w", err)
	}
	pid := cmd.Process.Pid

	if len(spec.Rlimits) > 0 {
		log.Info("codejail: installed rlimits via trampoline", append(limits.LogFields(spec.Rlimits), "pid", pid)...)
	}

	if spec.Slug != "" {
		log.Info("executed jailed code", "slug", spec.Slug, "cwd", spec.Cwd, "pid", pid)
	}

	reaped := make(chan struct{})
	if spec.RealtimeSeconds > 0 {
		go watchdog(pid, time.Duration(spec.RealtimeSeconds)*time.Second, spec.SudoUser, spec.Slug, log, reaped)
	}

	ctxDone := make(chan struct{})
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				if pgid, err := unix.Getpgid(pid); err == nil {
					_ = killGroup(pgid, spec.SudoUser)
				}
			case <-ctxDone:
			}
		}()
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		if len(spec.Stdin) == 0 {
			return nil
		}
		_, err := stdin.Write(spec.Stdin)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stdoutBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderrBuf, stderr)
		return err
	})
	drainErr := g.Wait()

	waitErr := cmd.Wait()
	close(reaped)
	close(ctxDone)

	if drainErr != nil {
		log.Warn("codejail: stream drain error", "pid", pid, "error", drainErr)
	}

	status, err := exitStatus(waitErr)
	if err != nil {
		return Result{}, err
	}

	return Result{Status: status, Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}, nil
}

// exitStatus decodes the return of cmd.Wait into POSIX-style status: a
// non-negative exit code, or -signal for a signal-terminated child.
func exitStatus(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return 0, fmt.Errorf("codejail: wait child: %w", waitErr)
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode(), nil
	}
	if ws.Signaled() {
		return -int(ws.Signal()), nil
	}
	return ws.ExitStatus(), nil
}
