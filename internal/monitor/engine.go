package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/config"
	"github.com/SteelMorgan/log-alert-monitor/internal/domain"
	"github.com/SteelMorgan/log-alert-monitor/internal/history"
	"github.com/SteelMorgan/log-alert-monitor/internal/matcher"
	"github.com/SteelMorgan/log-alert-monitor/internal/observability"
	"github.com/SteelMorgan/log-alert-monitor/internal/offset"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// TailReader reads complete lines written after an offset
type TailReader interface {
	ReadNew(ctx context.Context, path string, from int64) ([]domain.LogLine, int64, error)
}

// AlertDispatcher sends one notification per matched line
type AlertDispatcher interface {
	Dispatch(ctx context.Context, event domain.AlertEvent) (domain.DispatchResult, error)
}

// Options configures one engine instance
type Options struct {
	LogFile      string
	PollInterval time.Duration
	BackoffDelay time.Duration
	Bootstrap    bool // create the monitored file with a startup line if absent
}

// OptionsFromConfig extracts engine options from the resolved configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LogFile:      cfg.Monitoring.LogFile,
		PollInterval: cfg.PollInterval(),
		BackoffDelay: cfg.BackoffDelay(),
		Bootstrap:    cfg.Monitoring.Bootstrap,
	}
}

// Deps are the collaborators of an engine
// Recorder and Metrics are optional
type Deps struct {
	Store      offset.OffsetStore
	Reader     TailReader
	Matcher    matcher.Matcher
	Dispatcher AlertDispatcher
	Recorder   history.Recorder
	Metrics    *observability.Metrics
}

// CycleStats summarizes one poll cycle
type CycleStats struct {
	LinesRead        int
	Matched          int
	DispatchFailures int
	Offset           int64 // persisted offset after the cycle
}

// Engine tails one file, evaluates new lines and dispatches alerts.
//
// Reads, offset persists and dispatches happen sequentially on the caller's goroutine.
// The offset is persisted only after every line below it was evaluated, so a crash
// can re-deliver the last batch but never skip it.
type Engine struct {
	opts Options
	deps Deps

	offset int64
	loaded bool
	state  State

	linesRead     uint64
	alertsMatched uint64

	now func() time.Time
}

// NewEngine creates a monitor engine
func NewEngine(opts Options, deps Deps) (*Engine, error) {
	if opts.LogFile == "" {
		return nil, fmt.Errorf("log file is required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if opts.BackoffDelay <= 0 {
		return nil, fmt.Errorf("backoff delay must be positive")
	}
	if deps.Store == nil || deps.Reader == nil || deps.Matcher == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("store, reader, matcher and dispatcher are required")
	}
	if deps.Recorder == nil {
		deps.Recorder = history.NopRecorder{}
	}

	return &Engine{
		opts:  opts,
		deps:  deps,
		state: StateIdle,
		now:   time.Now,
	}, nil
}

// Offset returns the last persisted offset
func (e *Engine) Offset() int64 {
	return e.offset
}

// Run polls until ctx is cancelled.
//
// Read and persist failures back off for BackoffDelay and retry forever; failed
// dispatches are logged and dropped. Run returns nil once ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Str("file", e.opts.LogFile).
		Str("matcher", e.deps.Matcher.String()).
		Dur("poll_interval", e.opts.PollInterval).
		Dur("backoff", e.opts.BackoffDelay).
		Msg("Starting to monitor log file")

	if e.opts.Bootstrap {
		if err := e.bootstrap(); err != nil {
			log.Warn().Err(err).Str("file", e.opts.LogFile).Msg("Failed to create monitored file")
		}
	}

	for {
		if ctx.Err() != nil {
			break
		}

		delay := e.opts.PollInterval
		if _, err := e.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			e.enterBackoff(err)
			delay = e.opts.BackoffDelay
		} else {
			e.setState(StateSleeping)
		}

		if !wait(ctx, delay) {
			break
		}
	}

	log.Info().
		Str("file", e.opts.LogFile).
		Int64("offset", e.offset).
		Msg("Log monitoring stopped")
	return nil
}

// PollOnce runs a single read, evaluate and persist cycle
func (e *Engine) PollOnce(ctx context.Context) (stats CycleStats, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "monitor.poll_cycle",
		attribute.String("log.file", e.opts.LogFile),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("lines.read", stats.LinesRead),
			attribute.Int("alerts.matched", stats.Matched),
		)
		observability.EndSpan(span, err, "poll cycle")
		e.deps.Metrics.ObservePoll(time.Since(start))
	}()

	if !e.loaded {
		if err := e.loadOffset(ctx); err != nil {
			return stats, err
		}
	}

	e.setState(StatePolling)
	lines, next, err := e.deps.Reader.ReadNew(ctx, e.opts.LogFile, e.offset)
	if err != nil {
		return stats, &CycleError{Stage: StageRead, Err: err}
	}
	stats.Offset = e.offset
	if len(lines) == 0 && next == e.offset {
		return stats, nil
	}

	e.setState(StateEvaluating)
	evaluatedTo := next
	if len(lines) > 0 {
		evaluatedTo = lines[0].Start
	}

	for _, line := range lines {
		// Stop at a line boundary on shutdown; the rest is read again after restart
		if ctx.Err() != nil {
			break
		}

		stats.LinesRead++
		if e.deps.Matcher.Match(line.Text) {
			stats.Matched++
			if !e.dispatch(ctx, line) {
				stats.DispatchFailures++
			}
		}
		evaluatedTo = line.End
	}

	e.linesRead += uint64(stats.LinesRead)
	e.deps.Metrics.LinesRead(stats.LinesRead)

	if err := e.persist(ctx, evaluatedTo); err != nil {
		return stats, err
	}
	stats.Offset = e.offset

	log.Debug().
		Str("file", e.opts.LogFile).
		Int("lines", stats.LinesRead).
		Int("matched", stats.Matched).
		Int64("offset", e.offset).
		Msg("Poll cycle complete")

	return stats, nil
}

// dispatch sends an alert for line and reports whether it succeeded
func (e *Engine) dispatch(ctx context.Context, line domain.LogLine) bool {
	event := domain.NewAlertEvent(line, e.opts.LogFile, e.now())
	e.alertsMatched++
	e.deps.Metrics.AlertMatched()

	log.Warn().
		Str("alert_id", event.ID.String()).
		Int64("offset", line.Start).
		Str("line", line.Text).
		Msg("Critical error detected")

	e.setState(StateDispatching)
	result, err := e.deps.Dispatcher.Dispatch(ctx, event)
	e.setState(StateEvaluating)

	success := err == nil && result.Success
	e.deps.Metrics.Dispatched(success)
	e.deps.Recorder.RecordAlert(ctx, event, result)

	return success
}

func (e *Engine) loadOffset(ctx context.Context) error {
	stored, err := e.deps.Store.Get(ctx, e.opts.LogFile)
	if err != nil {
		return &CycleError{Stage: StageLoadOffset, Err: err}
	}

	e.offset = stored
	e.loaded = true
	e.deps.Metrics.SetOffset(stored)

	log.Info().
		Str("file", e.opts.LogFile).
		Int64("offset", stored).
		Msg("Loaded saved offset")
	return nil
}

// persist makes off durable before it becomes the in-memory offset
func (e *Engine) persist(ctx context.Context, off int64) error {
	// A persist started during shutdown must still complete
	if err := e.deps.Store.Set(context.WithoutCancel(ctx), e.opts.LogFile, off); err != nil {
		return &CycleError{Stage: StagePersist, Err: err}
	}

	e.offset = off
	e.deps.Metrics.SetOffset(off)
	e.deps.Recorder.RecordProgress(ctx, domain.FileReadingProgress{
		Timestamp:     e.now(),
		FilePath:      e.opts.LogFile,
		FileName:      filepath.Base(e.opts.LogFile),
		OffsetBytes:   off,
		LinesRead:     e.linesRead,
		AlertsMatched: e.alertsMatched,
	})
	return nil
}

func (e *Engine) enterBackoff(err error) {
	e.setState(StateErrorBackoff)

	stage := "unknown"
	var cycleErr *CycleError
	if errors.As(err, &cycleErr) {
		stage = string(cycleErr.Stage)
	}
	e.deps.Metrics.Backoff(stage)

	log.Warn().
		Err(err).
		Str("file", e.opts.LogFile).
		Str("stage", stage).
		Dur("retry_in", e.opts.BackoffDelay).
		Msg("Error monitoring log file, backing off")
}

// bootstrap creates the monitored file with a startup line if it does not exist
func (e *Engine) bootstrap() error {
	f, err := os.OpenFile(e.opts.LogFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s - INFO - System startup\n", e.now().Format("2006-01-02 15:04:05.000000")); err != nil {
		return err
	}

	log.Info().Str("file", e.opts.LogFile).Msg("Created sample log file")
	return nil
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	log.Debug().
		Str("from", string(e.state)).
		Str("to", string(s)).
		Msg("Monitor state change")
	e.state = s
}

// wait sleeps for d and reports false if ctx was cancelled first
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
