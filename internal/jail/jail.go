// Package jail is the public entry point of the sandbox executor: it
// stages a disposable sandbox directory, materializes caller-supplied
// inputs, composes the target command line, invokes the subprocess runner
// (directly or through the proxy channel) with the sandbox user named
// separately so the runner can decide where `sudo -u` belongs, and
// performs the privileged cleanup sweep before returning the result.
package jail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ehrlich-b/codejail/internal/config"
	"github.com/ehrlich-b/codejail/internal/history"
	"github.com/ehrlich-b/codejail/internal/limits"
	"github.com/ehrlich-b/codejail/internal/proxy"
	"github.com/ehrlich-b/codejail/internal/runner"
	"github.com/ehrlich-b/codejail/internal/wrapper"
)

// JobRequest is one call to Execute or the basis of one call to Evaluate.
type JobRequest struct {
	// Command is the logical name registered in the configuration
	// provider, e.g. "python".
	Command string
	// Code, if non-nil, is written to <sandbox>/jailed_code and prepended
	// to argv.
	Code []byte
	// ExtraFiles are written to <sandbox>/<name>; name must be flat (no
	// path separators).
	ExtraFiles map[string][]byte
	// CopyFiles are host paths copied (or symlinked, for symlink inputs)
	// into the sandbox under their basename.
	CopyFiles []string
	// Argv is appended after the command's fixed argv.
	Argv []string
	// Stdin is piped to the child.
	Stdin []byte
	// OverridesKey selects a per-context Limits patch.
	OverridesKey string
	// Slug tags log lines (and, if a history store is configured, the
	// recorded entry) for this call.
	Slug string
}

// JobResult is the outcome of one Execute call.
type JobResult struct {
	Status int
	Stdout []byte
	Stderr []byte
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithHistory attaches a job history store; every Execute call appends an
// entry to it once the run completes.
func WithHistory(store history.Store) Option {
	return func(e *Executor) { e.history = store }
}

// Executor is the jail orchestrator. It owns the configuration provider and
// a lazily-initialized proxy channel; it carries no other mutable state, so
// host code passes the *Executor around explicitly rather than relying on
// package-level globals.
type Executor struct {
	cfg     config.Provider
	log     *slog.Logger
	history history.Store

	proxyMu sync.Mutex
	proxyCh *proxy.Channel
}

// New builds an Executor backed by cfg.
func New(cfg config.Provider, opts ...Option) *Executor {
	e := &Executor{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute stages a sandbox, runs req under its configured command, sweeps
// the sandbox user's leftover files, and returns the child's result.
// Configuration errors surface directly; a non-zero exit or signal kill is
// reported through JobResult.Status, never translated into an error.
func (e *Executor) Execute(ctx context.Context, req JobRequest) (JobResult, error) {
	spec, ok := e.cfg.GetCommand(req.Command)
	if !ok {
		return JobResult{}, &NotConfigured{Reason: fmt.Sprintf("command %q is not configured", req.Command)}
	}
	if _, err := exec.LookPath(spec.BinPath); err != nil {
		return JobResult{}, &NotConfigured{Reason: fmt.Sprintf("command %q has no usable binary", req.Command)}
	}

	lim := e.cfg.EffectiveLimits(req.OverridesKey)

	dir, tmpDir, err := stageSandboxDir()
	if err != nil {
		return JobResult{}, err
	}
	defer os.RemoveAll(dir)

	if err := materialize(dir, req); err != nil {
		return JobResult{}, err
	}

	runSpec := runner.Spec{
		Argv:            buildArgv(spec, req),
		Cwd:             dir,
		Env:             []string{"TMPDIR=tmp"},
		Stdin:           req.Stdin,
		Rlimits:         limits.Build(lim),
		RealtimeSeconds: lim.Realtime,
		Slug:            req.Slug,
		SudoUser:        spec.User,
	}

	start := time.Now()
	var result runner.Result
	if e.shouldUseProxy(lim.Proxy) {
		result, err = e.runViaProxy(ctx, runSpec)
	} else {
		result, err = runner.Run(ctx, runSpec, e.log)
	}
	if err != nil {
		return JobResult{}, err
	}

	if err := e.cleanupSweep(ctx, spec, tmpDir); err != nil {
		e.log.Warn("codejail: cleanup sweep failed", "slug", req.Slug, "error", err)
	}

	jr := JobResult{Status: result.Status, Stdout: result.Stdout, Stderr: result.Stderr}

	if e.history != nil {
		entry := history.Entry{
			Slug:      req.Slug,
			Command:   req.Command,
			Status:    jr.Status,
			Duration:  time.Since(start),
			StartedAt: start,
		}
		if herr := e.history.Record(ctx, entry); herr != nil {
			e.log.Warn("codejail: job history record failed", "error", herr)
		}
	}

	return jr, nil
}

// Evaluate runs code against a seeded globals namespace using the
// command's driver template, returning the merged post-execution globals.
func (e *Executor) Evaluate(ctx context.Context, command, code string, globalsIn map[string]any, extras JobRequest) (map[string]any, error) {
	spec, ok := e.cfg.GetCommand(command)
	if !ok {
		return nil, &NotConfigured{Reason: fmt.Sprintf("command %q is not configured", command)}
	}
	if spec.DriverTemplate == "" {
		return nil, &NotSupportedForEvaluate{Command: command}
	}

	script, stdin, err := wrapper.Build(spec.DriverTemplate, code, globalsIn)
	if err != nil {
		return nil, err
	}

	req := extras
	req.Command = command
	req.Code = script
	req.Stdin = stdin

	result, err := e.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Status != 0 {
		return nil, &ExecutionFailed{Status: result.Status, Stdout: result.Stdout, Stderr: result.Stderr}
	}

	out, perr := wrapper.ParseOutput(result.Stdout)
	if perr != nil {
		return nil, &ProtocolError{Raw: result.Stdout}
	}

	// A fresh map, not a mutation of globalsIn, for referential clarity
	// (see DESIGN.md on this Open Question).
	merged := make(map[string]any, len(globalsIn)+len(out))
	for k, v := range wrapper.JSONSafe(globalsIn) {
		merged[k] = v
	}
	for k, v := range out {
		merged[k] = v
	}
	return merged, nil
}

// buildArgv composes the target command line: the command's fixed binary
// and argv, "jailed_code" when inline code was supplied, then the caller's
// own argv. It never adds a sudo prefix itself -- runSpec.SudoUser carries
// that, and the runner decides where in the final argv sudo belongs
// relative to the rlimit trampoline (see internal/runner/rlimitinit.go).
func buildArgv(spec config.CommandSpec, req JobRequest) []string {
	var argv []string
	argv = append(argv, spec.BinPath)
	argv = append(argv, spec.Argv...)
	if req.Code != nil {
		argv = append(argv, "jailed_code")
	}
	argv = append(argv, req.Argv...)
	return argv
}

// shouldUseProxy decides proxy vs. direct execution: an explicit
// Limits.Proxy wins; "inherit" falls back to CODEJAIL_PROXY.
func (e *Executor) shouldUseProxy(mode limits.ProxyMode) bool {
	switch mode {
	case limits.ProxyOn:
		return true
	case limits.ProxyOff:
		return false
	default:
		return os.Getenv("CODEJAIL_PROXY") == "1"
	}
}

func (e *Executor) runViaProxy(ctx context.Context, spec runner.Spec) (runner.Result, error) {
	e.proxyMu.Lock()
	if e.proxyCh == nil {
		e.proxyCh = proxy.NewChannel(slog.LevelInfo, e.log)
	}
	ch := e.proxyCh
	e.proxyMu.Unlock()

	resp, err := ch.RoundTrip(ctx, proxy.Request{
		Argv:            spec.Argv,
		Cwd:             spec.Cwd,
		Env:             spec.Env,
		Stdin:           spec.Stdin,
		Rlimits:         spec.Rlimits,
		RealtimeSeconds: spec.RealtimeSeconds,
		Slug:            spec.Slug,
		SudoUser:        spec.SudoUser,
	})
	if err != nil {
		return runner.Result{}, &ProxyTransport{Err: err}
	}
	return runner.Result{Status: resp.Status, Stdout: resp.Stdout, Stderr: resp.Stderr}, nil
}

// cleanupSweep removes the contents of tmpDir as the sandbox user (since
// the sandboxed child may have created files the host user can't remove),
// leaving the sandbox directory itself for the host user to remove
// normally.
func (e *Executor) cleanupSweep(ctx context.Context, spec config.CommandSpec, tmpDir string) error {
	argv := []string{"find", tmpDir, "-mindepth", "1", "-maxdepth", "1", "-exec", "rm", "-rf", "{}", ";"}
	_, err := runner.Run(ctx, runner.Spec{Argv: argv, Cwd: tmpDir, SudoUser: spec.User}, e.log)
	return err
}
