package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ehrlich-b/codejail/internal/limits"
)

func TestRequestRoundTripsThroughJSON(t *testing.T) {
	req := Request{
		Argv:            []string{"/usr/bin/python3", "jailed_code"},
		Cwd:             "/tmp/codejail-abc",
		Env:             []string{"TMPDIR=tmp"},
		Stdin:           []byte{0x00, 0xff, 'h', 'i'},
		Rlimits:         []limits.RlimitPair{{Resource: 1, Soft: 2, Hard: 3}},
		RealtimeSeconds: 5,
		Slug:            "test-slug",
		SudoUser:        "sandbox",
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Request
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Slug != req.Slug || got.SudoUser != req.SudoUser || got.RealtimeSeconds != req.RealtimeSeconds {
		t.Errorf("round trip mismatch: %#v", got)
	}
	if string(got.Stdin) != string(req.Stdin) {
		t.Errorf("stdin round trip lost bytes: %v vs %v", got.Stdin, req.Stdin)
	}
}

func TestResponseRoundTripsThroughJSON(t *testing.T) {
	resp := Response{
		Status:     -9,
		Stdout:     []byte("out\x00bytes"),
		Stderr:     []byte("err"),
		LogRecords: []LogRecord{{Level: int(slog.LevelWarn), Msg: "Killing process 42"}},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Response
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != -9 || len(got.LogRecords) != 1 || got.LogRecords[0].Msg != "Killing process 42" {
		t.Errorf("response round trip mismatch: %#v", got)
	}
}

func TestCaptureHandlerBuffersAndDrains(t *testing.T) {
	h := newCaptureHandler(slog.LevelInfo)
	log := slog.New(h)
	log.Info("first")
	log.Warn("second")
	log.Debug("filtered out below threshold")

	recs := h.drain()
	if len(recs) != 2 {
		t.Fatalf("recs = %#v, want 2 entries", recs)
	}
	if recs[0].Msg != "first" || recs[1].Msg != "second" {
		t.Errorf("unexpected messages: %#v", recs)
	}

	if got := h.drain(); len(got) != 0 {
		t.Errorf("drain should clear the buffer, got %#v", got)
	}
}

func TestChannelPIDZeroBeforeSpawn(t *testing.T) {
	c := NewChannel(slog.LevelInfo, nil)
	if pid := c.PID(); pid != 0 {
		t.Errorf("PID = %d, want 0 before any helper is spawned", pid)
	}
}

// TestRoundTripRespawnsAfterHelperKilledMidFlight exercises the "Proxy
// retry" property from SPEC_FULL.md: killing the helper between two calls
// must not fail the caller's Execute -- the next RoundTrip transparently
// respawns a fresh helper (with a new PID) and succeeds identically.
func TestRoundTripRespawnsAfterHelperKilledMidFlight(t *testing.T) {
	c := NewChannel(slog.LevelInfo, nil)

	first, err := c.RoundTrip(context.Background(), Request{Argv: []string{"/bin/true"}})
	if err != nil {
		t.Fatalf("first round trip: %v", err)
	}
	if first.Status != 0 {
		t.Fatalf("first status = %d, want 0", first.Status)
	}
	firstPID := c.PID()
	if firstPID == 0 {
		t.Fatal("expected a helper PID after the first round trip")
	}

	if err := c.cmd.Process.Kill(); err != nil {
		t.Fatalf("kill helper mid-flight: %v", err)
	}
	c.cmd.Wait()

	second, err := c.RoundTrip(context.Background(), Request{Argv: []string{"/bin/true"}})
	if err != nil {
		t.Fatalf("second round trip after helper death: %v", err)
	}
	if second.Status != 0 {
		t.Fatalf("second status = %d, want 0", second.Status)
	}
	if secondPID := c.PID(); secondPID == 0 || secondPID == firstPID {
		t.Errorf("second PID = %d, want a new nonzero PID (first was %d)", secondPID, firstPID)
	}
}
