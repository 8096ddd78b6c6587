package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/domain"
	"github.com/SteelMorgan/log-alert-monitor/internal/matcher"
	"github.com/SteelMorgan/log-alert-monitor/internal/offset"
	"github.com/SteelMorgan/log-alert-monitor/internal/tailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	normalLine   = "2024-01-01T00:00:00 - INFO - Normal activity\n"
	criticalLine = "2024-01-01T00:00:05 - CRITICAL ERROR - disk full\n"
	marker       = "CRITICAL ERROR"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	events   []domain.AlertEvent
	fail     func(call int) bool
	onCall   func(call int)
	notified chan domain.AlertEvent
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event domain.AlertEvent) (domain.DispatchResult, error) {
	d.mu.Lock()
	d.events = append(d.events, event)
	call := len(d.events)
	d.mu.Unlock()

	if d.onCall != nil {
		d.onCall(call)
	}
	if d.notified != nil {
		d.notified <- event
	}

	result := domain.DispatchResult{EventID: event.ID, Transport: "test"}
	if d.fail != nil && d.fail(call) {
		result.Reason = "transport down"
		return result, errors.New("transport down")
	}
	result.Success = true
	return result, nil
}

func (d *recordingDispatcher) lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, e := range d.events {
		out[i] = e.Line
	}
	return out
}

// flakyStore fails the first setFailures Set calls and every Get while getErr is set
type flakyStore struct {
	offset.OffsetStore
	setFailures int
	getErr      error
}

func (s *flakyStore) Get(ctx context.Context, filePath string) (int64, error) {
	if s.getErr != nil {
		return 0, s.getErr
	}
	return s.OffsetStore.Get(ctx, filePath)
}

func (s *flakyStore) Set(ctx context.Context, filePath string, off int64) error {
	if s.setFailures > 0 {
		s.setFailures--
		return errors.New("disk full")
	}
	return s.OffsetStore.Set(ctx, filePath, off)
}

type failingReader struct{}

func (failingReader) ReadNew(ctx context.Context, path string, from int64) ([]domain.LogLine, int64, error) {
	return nil, from, os.ErrPermission
}

type harness struct {
	path       string
	store      offset.OffsetStore
	dispatcher *recordingDispatcher
	engine     *Engine
}

func newHarness(t *testing.T, store offset.OffsetStore, dispatcher *recordingDispatcher) *harness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sample.log")
	if store == nil {
		store = offset.NewFileStore("")
	}
	if dispatcher == nil {
		dispatcher = &recordingDispatcher{}
	}

	engine, err := NewEngine(Options{
		LogFile:      path,
		PollInterval: 20 * time.Millisecond,
		BackoffDelay: 5 * time.Millisecond,
	}, Deps{
		Store:      store,
		Reader:     tailer.NewReader(0),
		Matcher:    matcher.NewSubstring(marker, false),
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	return &harness{path: path, store: store, dispatcher: dispatcher, engine: engine}
}

func (h *harness) append(t *testing.T, content string) {
	t.Helper()
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func (h *harness) storedOffset(t *testing.T) int64 {
	t.Helper()
	off, err := h.store.Get(context.Background(), h.path)
	require.NoError(t, err)
	return off
}

func TestPollOnce_NormalThenCriticalLine(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	h.append(t, normalLine)
	stats, err := h.engine.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LinesRead)
	assert.Equal(t, int64(len(normalLine)), h.storedOffset(t))
	assert.Empty(t, h.dispatcher.lines(), "normal activity must not alert")

	h.append(t, criticalLine)
	stats, err = h.engine.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, []string{strings.TrimSuffix(criticalLine, "\n")}, h.dispatcher.lines())
	assert.Equal(t, int64(len(normalLine+criticalLine)), h.storedOffset(t))
	assert.Equal(t, h.storedOffset(t), h.engine.Offset())

	event := h.dispatcher.events[0]
	assert.Equal(t, h.path, event.Source)
	assert.Equal(t, int64(len(normalLine)), event.Offset)
	assert.False(t, event.DetectedAt.IsZero())
}

func TestPollOnce_NoNewLines(t *testing.T) {
	h := newHarness(t, nil, nil)

	stats, err := h.engine.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleStats{}, stats)
	assert.Equal(t, int64(0), h.storedOffset(t))
}

func TestPollOnce_RestartSkipsConsumedLines(t *testing.T) {
	store := offset.NewFileStore("")
	h := newHarness(t, store, nil)

	var content strings.Builder
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&content, "line %d CRITICAL ERROR\n", i)
	}
	h.append(t, content.String())

	// First three lines were consumed by a previous run
	consumed := int64(len("line 1 CRITICAL ERROR\n") * 3)
	require.NoError(t, store.Set(context.Background(), h.path, consumed))

	_, err := h.engine.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"line 4 CRITICAL ERROR", "line 5 CRITICAL ERROR"}, h.dispatcher.lines())
}

func TestPollOnce_PreservesOrder(t *testing.T) {
	h := newHarness(t, nil, nil)

	var want []string
	for i := 0; i < 20; i++ {
		line := fmt.Sprintf("event %02d - CRITICAL ERROR", i)
		want = append(want, line)
		h.append(t, line+"\n")
		if i%3 == 0 {
			h.append(t, normalLine)
		}
	}

	_, err := h.engine.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, h.dispatcher.lines())
}

func TestPollOnce_PartialLineWaitsForNewline(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	h.append(t, normalLine+"2024-01-01T00:00:05 - CRITICAL")
	_, err := h.engine.PollOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.dispatcher.lines())
	assert.Equal(t, int64(len(normalLine)), h.storedOffset(t))

	h.append(t, " ERROR - disk full\n")
	_, err = h.engine.PollOnce(ctx)
	require.NoError(t, err)
	_, err = h.engine.PollOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, h.dispatcher.lines(), 1, "completed line is dispatched exactly once")
}

func TestPollOnce_DispatchFailureIsIsolated(t *testing.T) {
	dispatcher := &recordingDispatcher{fail: func(call int) bool { return call == 1 }}
	h := newHarness(t, nil, dispatcher)
	ctx := context.Background()

	h.append(t, "a CRITICAL ERROR\nb CRITICAL ERROR\n")
	stats, err := h.engine.PollOnce(ctx)
	require.NoError(t, err, "dispatch failures never fail the cycle")
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 1, stats.DispatchFailures)

	h.append(t, "c CRITICAL ERROR\n")
	_, err = h.engine.PollOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"a CRITICAL ERROR", "b CRITICAL ERROR", "c CRITICAL ERROR"}, h.dispatcher.lines())
}

func TestPollOnce_TruncationRecovery(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	h.append(t, normalLine+normalLine)
	_, err := h.engine.PollOnce(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(h.path, []byte(criticalLine), 0o644))
	_, err = h.engine.PollOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{strings.TrimSuffix(criticalLine, "\n")}, h.dispatcher.lines())
	assert.Equal(t, int64(len(criticalLine)), h.storedOffset(t))
}

func TestPollOnce_PersistFailureRetriesBatch(t *testing.T) {
	store := &flakyStore{OffsetStore: offset.NewFileStore(""), setFailures: 1}
	h := newHarness(t, store, nil)
	ctx := context.Background()

	h.append(t, criticalLine)
	_, err := h.engine.PollOnce(ctx)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, StagePersist, cycleErr.Stage)
	assert.Equal(t, int64(0), h.engine.Offset(), "in-memory offset must not run ahead of the record")

	_, err = h.engine.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(criticalLine)), h.storedOffset(t))
	assert.Len(t, h.dispatcher.lines(), 2, "unpersisted batch is evaluated again")
}

func TestPollOnce_ReadError(t *testing.T) {
	engine, err := NewEngine(Options{
		LogFile:      "app.log",
		PollInterval: time.Second,
		BackoffDelay: time.Millisecond,
	}, Deps{
		Store:      offset.NewFileStore(filepath.Join(t.TempDir(), "app.offset")),
		Reader:     failingReader{},
		Matcher:    matcher.NewSubstring(marker, false),
		Dispatcher: &recordingDispatcher{},
	})
	require.NoError(t, err)

	_, err = engine.PollOnce(context.Background())
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, StageRead, cycleErr.Stage)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestPollOnce_LoadOffsetError(t *testing.T) {
	store := &flakyStore{OffsetStore: offset.NewFileStore(""), getErr: errors.New("record unreadable")}
	h := newHarness(t, store, nil)

	_, err := h.engine.PollOnce(context.Background())
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, StageLoadOffset, cycleErr.Stage)

	store.getErr = nil
	_, err = h.engine.PollOnce(context.Background())
	assert.NoError(t, err)
}

func TestPollOnce_CancelStopsAtLineBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := &recordingDispatcher{onCall: func(call int) {
		if call == 1 {
			cancel()
		}
	}}
	h := newHarness(t, nil, dispatcher)

	first := "a CRITICAL ERROR\n"
	h.append(t, first+"b CRITICAL ERROR\nc CRITICAL ERROR\n")

	_, err := h.engine.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a CRITICAL ERROR"}, h.dispatcher.lines())
	assert.Equal(t, int64(len(first)), h.storedOffset(t), "offset never passes an unevaluated line")
}

func TestRun_DispatchesAndStopsOnCancel(t *testing.T) {
	dispatcher := &recordingDispatcher{notified: make(chan domain.AlertEvent, 10)}
	h := newHarness(t, nil, dispatcher)
	h.engine.opts.Bootstrap = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(h.path)
		return err == nil
	}, time.Second, 5*time.Millisecond, "bootstrap must create the monitored file")

	h.append(t, criticalLine)

	select {
	case event := <-dispatcher.notified:
		assert.Equal(t, strings.TrimSuffix(criticalLine, "\n"), event.Line)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not dispatched")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	data, err := os.ReadFile(h.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO - System startup")
}

func TestRun_SurvivesPersistentErrors(t *testing.T) {
	store := &flakyStore{OffsetStore: offset.NewFileStore(""), setFailures: 3}
	dispatcher := &recordingDispatcher{notified: make(chan domain.AlertEvent, 10)}
	h := newHarness(t, store, dispatcher)
	h.append(t, criticalLine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		off, err := store.OffsetStore.Get(context.Background(), h.path)
		return err == nil && off == int64(len(criticalLine))
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Len(t, h.dispatcher.lines(), 4, "three failed persists, one successful")
}

func TestEngines_AreIndependent(t *testing.T) {
	a := newHarness(t, nil, nil)
	b := newHarness(t, nil, nil)

	a.append(t, criticalLine)
	b.append(t, normalLine)

	_, err := a.engine.PollOnce(context.Background())
	require.NoError(t, err)
	_, err = b.engine.PollOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, a.dispatcher.lines(), 1)
	assert.Empty(t, b.dispatcher.lines())
	assert.Equal(t, int64(len(criticalLine)), a.storedOffset(t))
	assert.Equal(t, int64(len(normalLine)), b.storedOffset(t))
}

func TestNewEngine_Validation(t *testing.T) {
	deps := Deps{
		Store:      offset.NewFileStore(""),
		Reader:     tailer.NewReader(0),
		Matcher:    matcher.NewSubstring(marker, false),
		Dispatcher: &recordingDispatcher{},
	}

	_, err := NewEngine(Options{PollInterval: time.Second, BackoffDelay: time.Millisecond}, deps)
	assert.Error(t, err)

	_, err = NewEngine(Options{LogFile: "a.log", BackoffDelay: time.Millisecond}, deps)
	assert.Error(t, err)

	_, err = NewEngine(Options{LogFile: "a.log", PollInterval: time.Second}, deps)
	assert.Error(t, err)

	_, err = NewEngine(Options{LogFile: "a.log", PollInterval: time.Second, BackoffDelay: time.Millisecond}, Deps{})
	assert.Error(t, err)
}
