package services

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

var testNow = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type jobRunRecord struct {
	job                      string
	applied, skipped, failed int
}

// recordingMetrics is a metrics.MetricsCollector that remembers every call.
type recordingMetrics struct {
	mu     sync.Mutex
	runs   []jobRunRecord
	deltas map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{deltas: map[string]int{}}
}

func (r *recordingMetrics) RecordJobRun(job string, _ time.Duration, applied, skipped, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, jobRunRecord{job, applied, skipped, failed})
}

func (r *recordingMetrics) RecordPointDelta(reason string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas[reason] += delta
}
