// Package proxy implements the optional long-lived helper process that
// performs the runner's fork/exec on the host's behalf, for hosts whose own
// address space makes forking expensive. The wire format is line-delimited
// JSON in both directions; the channel itself is a single-producer,
// single-consumer serial pipe, enforced at the type level with a weighted
// semaphore rather than left to caller discipline.
package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/codejail/internal/limits"
)

// Request is one proxied call, mirroring runner.Spec across the wire.
type Request struct {
	Argv            []string            `json:"argv"`
	Cwd             string               `json:"cwd"`
	Env             []string             `json:"env"`
	Stdin           []byte               `json:"stdin"`
	Rlimits         []limits.RlimitPair  `json:"rlimits"`
	RealtimeSeconds int                  `json:"realtime_seconds"`
	Slug            string               `json:"slug"`
	SudoUser        string               `json:"sudo_user"`
}

// LogRecord is one log line captured by the helper and replayed by the
// host after a round-trip completes.
type LogRecord struct {
	Level int    `json:"level"`
	Msg   string `json:"msg"`
}

// Response is the helper's reply to one Request.
type Response struct {
	Status     int         `json:"status"`
	Stdout     []byte      `json:"stdout"`
	Stderr     []byte      `json:"stderr"`
	LogRecords []LogRecord `json:"log_records"`
}

// maxRetries bounds how many times RoundTrip respawns the helper and
// retries before surfacing the last transport error.
const maxRetries = 3

// Channel is a lazily-spawned conduit to a `codejail proxy-helper`
// subprocess.
type Channel struct {
	log      *slog.Logger
	logLevel slog.Level
	sem      *semaphore.Weighted
	limiter  *rate.Limiter

	cmd    *exec.Cmd
	stdin  *bufio.Writer
	stdout *bufio.Scanner
}

// NewChannel returns a Channel that spawns its helper lazily on first use,
// passing logLevel to the helper so it knows what to capture.
func NewChannel(logLevel slog.Level, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		log:      log,
		logLevel: logLevel,
		sem:      semaphore.NewWeighted(1),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// RoundTrip sends req to the helper and returns its response. Any
// transport failure (EOF, malformed response, a dead helper) triggers a
// respawn and retry, up to maxRetries, before giving up.
func (c *Channel) RoundTrip(ctx context.Context, req Request) (Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Response{}, fmt.Errorf("codejail: acquire proxy channel: %w", err)
	}
	defer c.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.ensureHelper(ctx); err != nil {
			lastErr = err
			time.Sleep(100 * time.Millisecond)
			continue
		}
		resp, err := c.roundTripOnce(req)
		if err == nil {
			for _, rec := range resp.LogRecords {
				c.log.Log(ctx, slog.Level(rec.Level), rec.Msg, "proxied", true)
			}
			return resp, nil
		}
		lastErr = err
		c.reset()
		time.Sleep(100 * time.Millisecond)
	}
	return Response{}, fmt.Errorf("codejail: proxy round trip failed after %d attempts: %w", maxRetries, lastErr)
}

// ensureHelper spawns a fresh helper if none is running or the existing
// one has died, probed with a non-blocking signal(0).
func (c *Channel) ensureHelper(ctx context.Context) error {
	if c.cmd != nil && c.cmd.Process != nil {
		if c.cmd.Process.Signal(syscall.Signal(0)) == nil {
			return nil
		}
		c.reset()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("codejail: proxy respawn throttled: %w", err)
	}
	return c.spawn()
}

func (c *Channel) spawn() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("codejail: resolve self executable: %w", err)
	}
	cmd := exec.Command(exe, "proxy-helper", strconv.Itoa(int(c.logLevel)))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("codejail: proxy stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("codejail: proxy stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("codejail: spawn proxy helper: %w", err)
	}

	c.cmd = cmd
	c.stdin = bufio.NewWriter(stdin)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	c.stdout = scanner
	c.log.Info("codejail: spawned proxy helper", "pid", cmd.Process.Pid)
	return nil
}

// reset kills and forgets the current helper, if any.
func (c *Channel) reset() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	c.cmd, c.stdin, c.stdout = nil, nil, nil
}

func (c *Channel) roundTripOnce(req Request) (Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("codejail: encode proxy request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return Response{}, fmt.Errorf("codejail: write proxy request: %w", err)
	}
	if err := c.stdin.Flush(); err != nil {
		return Response{}, fmt.Errorf("codejail: flush proxy request: %w", err)
	}
	if !c.stdout.Scan() {
		if err := c.stdout.Err(); err != nil {
			return Response{}, fmt.Errorf("codejail: read proxy response: %w", err)
		}
		return Response{}, fmt.Errorf("codejail: proxy helper closed stdout")
	}
	var resp Response
	if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("codejail: parse proxy response: %w", err)
	}
	return resp, nil
}

// Close terminates the helper process, if one is running. It acquires the
// same semaphore RoundTrip holds for the duration of a round-trip, so Close
// never races a call that's mid-flight reading or writing c.cmd/c.stdin/
// c.stdout.
func (c *Channel) Close() error {
	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		return fmt.Errorf("codejail: acquire proxy channel for close: %w", err)
	}
	defer c.sem.Release(1)
	c.reset()
	return nil
}

// PID reports the current helper's process id, or 0 if none is running —
// used by tests and operational tooling to confirm a respawn happened.
func (c *Channel) PID() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}
