package runner

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// watchdogQuantum is how often the watchdog polls for child exit while
// waiting out the real-time budget.
const watchdogQuantum = 250 * time.Millisecond

// watchdog kills pid's process group once budget has elapsed, unless
// reaped is closed first (the runner closes it right after cmd.Wait
// returns). sudoUser, when non-empty, routes the kill through sudo, the
// same elevation the child itself was launched under.
func watchdog(pid int, budget time.Duration, sudoUser, slug string, log *slog.Logger, reaped <-chan struct{}) {
	if log == nil {
		log = slog.Default()
	}
	ticker := time.NewTicker(watchdogQuantum)
	defer ticker.Stop()

	var elapsed time.Duration
	for {
		select {
		case <-reaped:
			return
		case <-ticker.C:
			elapsed += watchdogQuantum
			if elapsed < budget {
				continue
			}
			pgid, err := unix.Getpgid(pid)
			if err != nil {
				// Already gone; the runner's own Wait will observe this.
				return
			}
			if err := killGroup(pgid, sudoUser); err != nil {
				log.Warn("codejail: watchdog kill failed", "pid", pid, "pgid", pgid, "error", err)
				return
			}
			log.Warn(fmt.Sprintf("Killing process %d (group %d), ran too long: %s", pid, pgid, elapsed),
				"pid", pid, "pgid", pgid, "elapsed", elapsed, "slug", slug)
			return
		}
	}
}

// killGroup sends SIGKILL to every process in pgid. When sudoUser is set
// the host process generally can't signal that group directly (it belongs
// to a different, lower-privilege user), so the kill is issued via the
// same sudo elevation the child was started under.
func killGroup(pgid int, sudoUser string) error {
	if sudoUser == "" {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}
	return exec.Command("sudo", "pkill", "-9", "-g", strconv.Itoa(pgid)).Run()
}
