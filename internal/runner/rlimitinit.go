package runner

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/codejail/internal/limits"
)

// RlimitInitSubcommand is the hidden argv[1] value that causes this binary
// to re-exec itself as the rlimit-install trampoline instead of running
// its normal CLI. cmd/codejail intercepts it in main, before any flag
// parsing, since the target argv following "--" is opaque and may itself
// contain flags this binary's own command tree would otherwise try to
// parse.
const RlimitInitSubcommand = "_rlimit_init"

// buildTrampolineArgv composes the argv Run actually execs: when rlimits
// is non-empty, argv is wrapped so the launched process re-execs itself
// under RlimitInitSubcommand, installing every rlimit on its own image via
// unix.Setrlimit before replacing itself with the real target via
// syscall.Exec. That closes the race a parent-side unix.Prlimit(pid, ...)
// call after Start leaves open: that call can land after the target has
// already begun running (briefly unconstrained), and when sudoUser is set
// it races sudo's own internal setresuid+execve outright -- once sudo has
// dropped to the sandbox user, the host process generally can't even
// Prlimit it (EPERM). Rlimits set on a process survive that same process's
// own later execve, so setting them on the trampoline before it execs into
// the target closes the window entirely.
//
// sudoUser, if set, still prefixes the whole thing with `sudo -u` --
// sudo's setuid has to happen before the trampoline (and therefore the
// target) ever runs.
func buildTrampolineArgv(argv []string, rlimits []limits.RlimitPair, sudoUser string) ([]string, error) {
	if len(rlimits) == 0 {
		return prefixSudo(argv, sudoUser), nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("codejail: resolve self executable for rlimit trampoline: %w", err)
	}
	wrapped := make([]string, 0, len(argv)+len(rlimits)+3)
	wrapped = append(wrapped, self, RlimitInitSubcommand)
	wrapped = append(wrapped, encodeRlimitArgs(rlimits)...)
	wrapped = append(wrapped, "--")
	wrapped = append(wrapped, argv...)
	return prefixSudo(wrapped, sudoUser), nil
}

func prefixSudo(argv []string, sudoUser string) []string {
	if sudoUser == "" {
		return argv
	}
	return append([]string{"sudo", "-u", sudoUser}, argv...)
}

func encodeRlimitArgs(pairs []limits.RlimitPair) []string {
	args := make([]string, 0, len(pairs))
	for _, p := range pairs {
		args = append(args, fmt.Sprintf("--rlimit=%d:%d:%d", p.Resource, p.Soft, p.Hard))
	}
	return args
}

// RunRlimitInit is the trampoline's own entry point, reached either
// through cmd/codejail's early dispatch in main or, in this package's own
// tests, through a TestMain that intercepts the same re-exec before the
// test binary interprets its own argv (see rlimitinit_test.go). It
// installs every rlimit encoded in args via unix.Setrlimit on the calling
// process, then execs into the target argv that follows "--". It only
// returns on failure: syscall.Exec replaces the process image in place on
// success, so there is no longer a process to return to.
func RunRlimitInit(args []string) error {
	pairs, target, err := parseRlimitInitArgs(args)
	if err != nil {
		return err
	}
	if len(target) == 0 {
		return fmt.Errorf("codejail: %s: no target argv after --", RlimitInitSubcommand)
	}

	for _, pair := range pairs {
		lim := unix.Rlimit{Cur: pair.Soft, Max: pair.Hard}
		if err := unix.Setrlimit(pair.Resource, &lim); err != nil {
			return fmt.Errorf("codejail: %s: setrlimit(%d): %w", RlimitInitSubcommand, pair.Resource, err)
		}
	}

	bin, err := exec.LookPath(target[0])
	if err != nil {
		return fmt.Errorf("codejail: %s: resolve target %q: %w", RlimitInitSubcommand, target[0], err)
	}
	return syscall.Exec(bin, target, os.Environ())
}

// parseRlimitInitArgs splits args into the leading run of "--rlimit=r:s:h"
// flags and the target argv following the first "--".
func parseRlimitInitArgs(args []string) (pairs []limits.RlimitPair, target []string, err error) {
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			i++
			break
		}
		rest, ok := strings.CutPrefix(args[i], "--rlimit=")
		if !ok {
			return nil, nil, fmt.Errorf("codejail: %s: unexpected argument %q", RlimitInitSubcommand, args[i])
		}
		fields := strings.SplitN(rest, ":", 3)
		if len(fields) != 3 {
			return nil, nil, fmt.Errorf("codejail: %s: malformed --rlimit %q", RlimitInitSubcommand, args[i])
		}
		resource, rerr := strconv.Atoi(fields[0])
		soft, serr := strconv.ParseUint(fields[1], 10, 64)
		hard, herr := strconv.ParseUint(fields[2], 10, 64)
		if rerr != nil || serr != nil || herr != nil {
			return nil, nil, fmt.Errorf("codejail: %s: malformed --rlimit %q", RlimitInitSubcommand, args[i])
		}
		pairs = append(pairs, limits.RlimitPair{Resource: resource, Soft: soft, Hard: hard})
	}
	return pairs, args[i:], nil
}
