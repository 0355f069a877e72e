package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"

	"github.com/ehrlich-b/codejail/internal/runner"
)

// RunHelper implements the hidden `codejail proxy-helper <log-level>`
// subcommand: reads line-delimited JSON Requests from stdin, performs the
// runner fork/exec on the host's behalf, and writes line-delimited JSON
// Responses to stdout carrying captured log records. Exits cleanly on
// stdin EOF, matching the ancestor proxy's "stdin closes, helper exits"
// lifecycle.
func RunHelper(args []string) error {
	level := slog.LevelInfo
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			level = slog.Level(n)
		}
	}

	capture := newCaptureHandler(level)
	log := slog.New(capture)

	if devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0); err == nil {
		os.Stderr = devNull
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	writer := bufio.NewWriter(os.Stdout)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		result, runErr := runner.Run(context.Background(), runner.Spec{
			Argv:            req.Argv,
			Cwd:             req.Cwd,
			Env:             req.Env,
			Stdin:           req.Stdin,
			Rlimits:         req.Rlimits,
			RealtimeSeconds: req.RealtimeSeconds,
			Slug:            req.Slug,
			SudoUser:        req.SudoUser,
		}, log)

		resp := Response{LogRecords: capture.drain()}
		if runErr != nil {
			resp.Status = -1
			resp.Stderr = []byte(runErr.Error())
		} else {
			resp.Status = result.Status
			resp.Stdout = result.Stdout
			resp.Stderr = result.Stderr
		}

		data, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		writer.Write(data)
		writer.WriteByte('\n')
		writer.Flush()
	}
	return scanner.Err()
}
