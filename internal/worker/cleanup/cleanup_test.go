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

	"github.com/hitoshi/rentals/internal/metrics"
)

// mockPurger は Purger インターフェースに対するモック実装
type mockPurger struct {
	mu     sync.Mutex
	calls  int
	gotNow time.Time
	result int64
	err    error
}

func (m *mockPurger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.gotNow = now
	return m.result, m.err
}

func (m *mockPurger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingCollector は RecordRevocationsPurged の呼び出しを記録する。
type recordingCollector struct {
	metrics.Nop
	purged []int
}

func (c *recordingCollector) RecordRevocationsPurged(count int) {
	c.purged = append(c.purged, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogEntry はキーを含む最初のJSONログ行を返す。
func findLogEntry(t *testing.T, buf *bytes.Buffer, key string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if _, ok := entry[key]; ok {
			return entry
		}
	}
	return nil
}

func TestNewPurgeJob_Defaults(t *testing.T) {
	job := NewPurgeJob(&mockPurger{}, nil, nil)

	if job == nil {
		t.Fatal("NewPurgeJob は nil を返してはならない")
	}
	if job.Interval != time.Hour {
		t.Errorf("Interval = %v, want %v", job.Interval, time.Hour)
	}
	if job.logger == nil || job.metrics == nil {
		t.Error("logger と metrics は nil の場合でも補完されるべき")
	}
}

func TestPurgeJob_Run_PassesCurrentTime(t *testing.T) {
	var buf bytes.Buffer
	store := &mockPurger{}
	job := NewPurgeJob(store, nil, newTestLogger(&buf))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !store.gotNow.Equal(fixed) {
		t.Errorf("DeleteExpired now = %v, want %v", store.gotNow, fixed)
	}
}

func TestPurgeJob_Run_RecordsMetricAndLogs(t *testing.T) {
	var buf bytes.Buffer
	collector := &recordingCollector{}
	job := NewPurgeJob(&mockPurger{result: 42}, collector, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(collector.purged) != 1 || collector.purged[0] != 42 {
		t.Errorf("RecordRevocationsPurged calls = %v, want [42]", collector.purged)
	}

	entry := findLogEntry(t, &buf, "deleted_count")
	if entry == nil {
		t.Fatalf("ログに deleted_count が記録されていない。ログ出力: %s", buf.String())
	}
	if entry["deleted_count"] != float64(42) {
		t.Errorf("deleted_count = %v, want 42", entry["deleted_count"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("ログに duration_ms が記録されていない")
	}
}

func TestPurgeJob_Run_ZeroRowsIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	store := &mockPurger{result: 0}
	job := NewPurgeJob(store, nil, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if store.callCount() != 2 {
		t.Errorf("DeleteExpired calls = %d, want 2", store.callCount())
	}

	entry := findLogEntry(t, &buf, "deleted_count")
	if entry == nil || entry["deleted_count"] != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestPurgeJob_Run_StoreFailure(t *testing.T) {
	var buf bytes.Buffer
	collector := &recordingCollector{}
	storeErr := errors.New("connection refused")
	job := NewPurgeJob(&mockPurger{err: storeErr}, collector, newTestLogger(&buf))

	err := job.Run(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, storeErr)
	}
	if len(collector.purged) != 0 {
		t.Errorf("失敗時にメトリクスを記録してはならない: %v", collector.purged)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestPurgeJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	store := &mockPurger{}
	job := NewPurgeJob(store, nil, newTestLogger(&buf))
	job.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("DeleteExpired calls = %d, want >= 2", store.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start はコンテキストのキャンセルで終了するべき")
	}
}

func TestPurgeJob_Start_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	store := &mockPurger{err: errors.New("temporary")}
	job := NewPurgeJob(store, nil, newTestLogger(&buf))
	job.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	job.Start(ctx)

	if store.callCount() < 2 {
		t.Errorf("失敗後も実行を継続するべき: calls = %d", store.callCount())
	}
}
