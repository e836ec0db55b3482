package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/rollcall/internal/metrics"
)

// fakePurger はDeleteStaleの呼び出しを記録する。
type fakePurger struct {
	mu      sync.Mutex
	calls   int
	befores []time.Time
	deleted int64
	err     error
}

func (f *fakePurger) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.befores = append(f.befores, before)
	return f.deleted, f.err
}

func (f *fakePurger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingCollector struct {
	metrics.Nop
	purged []int64
}

func (c *recordingCollector) RecordTokensPurged(n int64) { c.purged = append(c.purged, n) }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

var fixedNow = time.Date(2024, 5, 31, 3, 0, 0, 0, time.UTC)

func TestNewCleanupJob_Defaults(t *testing.T) {
	job := NewCleanupJob(&fakePurger{}, newTestLogger(&bytes.Buffer{}), nil)

	if job.RetentionDays != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, DefaultRetentionDays)
	}
	if job.metrics == nil {
		t.Error("nil collector should be replaced with a no-op")
	}
}

func TestCleanupJob_Run_UsesRetentionCutoff(t *testing.T) {
	var buf bytes.Buffer
	purger := &fakePurger{deleted: 7}
	collector := &recordingCollector{}
	job := NewCleanupJob(purger, newTestLogger(&buf), collector)
	job.now = func() time.Time { return fixedNow }
	job.RetentionDays = 10

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if purger.calls != 1 {
		t.Fatalf("DeleteStale calls = %d, want 1", purger.calls)
	}
	want := time.Date(2024, 5, 21, 3, 0, 0, 0, time.UTC)
	if !purger.befores[0].Equal(want) {
		t.Errorf("before = %v, want %v", purger.befores[0], want)
	}
	if len(collector.purged) != 1 || collector.purged[0] != 7 {
		t.Errorf("purged = %v, want [7]", collector.purged)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["deleted_count"] != float64(7) {
		t.Errorf("deleted_count = %v, want 7", entry["deleted_count"])
	}
	if entry["retention_days"] != float64(10) {
		t.Errorf("retention_days = %v, want 10", entry["retention_days"])
	}
}

func TestCleanupJob_Run_ZeroRowsIsNotAnError(t *testing.T) {
	collector := &recordingCollector{}
	job := NewCleanupJob(&fakePurger{}, newTestLogger(&bytes.Buffer{}), collector)

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(collector.purged) != 1 || collector.purged[0] != 0 {
		t.Errorf("purged = %v, want [0]", collector.purged)
	}
}

func TestCleanupJob_Run_Error(t *testing.T) {
	var buf bytes.Buffer
	collector := &recordingCollector{}
	job := NewCleanupJob(&fakePurger{err: errors.New("connection reset")}, newTestLogger(&buf), collector)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error should wrap cause: %v", err)
	}
	if len(collector.purged) != 0 {
		t.Error("nothing should be recorded on failure")
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected error log, got %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	purger := &fakePurger{}
	job := NewCleanupJob(purger, newTestLogger(&bytes.Buffer{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for purger.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if purger.callCount() != 1 {
		t.Fatalf("DeleteStale calls = %d, want 1 immediately after start", purger.callCount())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestCleanupJob_Start_RunsOnTick(t *testing.T) {
	purger := &fakePurger{}
	job := NewCleanupJob(purger, newTestLogger(&bytes.Buffer{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go job.Start(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for purger.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if purger.callCount() < 3 {
		t.Errorf("DeleteStale calls = %d, want >= 3", purger.callCount())
	}
}
