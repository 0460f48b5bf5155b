package partialconcat

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/c360/journaldconcat/errors"
	"github.com/c360/journaldconcat/message"
)

// Record kinds, used as the kind label
const (
	kindPartial     = "partial"
	kindComplete    = "complete"
	kindPassthrough = "passthrough"
	kindDiagnostic  = "diagnostic"
)

// Filter joins partial records into whole ones. FilterStream is the record
// path; a background sweeper flushes streams that stay idle longer than the
// flush interval, and Shutdown drains whatever is left.
type Filter struct {
	cfg          Config
	router       Router
	timeoutRoute Emitter
	diagnostic   *regexp.Regexp
	state        *streamState
	logger       *slog.Logger
	metrics      *concatMetrics

	now           func() time.Time
	sweepInterval time.Duration

	stop         chan struct{}
	wg           sync.WaitGroup
	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Filter
type Option func(*Filter)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		if now != nil {
			f.now = now
		}
	}
}

// WithSweepInterval sets how often the sweeper looks for idle streams
func WithSweepInterval(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.sweepInterval = d
		}
	}
}

func withMetrics(m *concatMetrics) Option {
	return func(f *Filter) {
		f.metrics = m
	}
}

// NewFilter builds a filter that emits through router. A timeout label that
// router cannot resolve is a configuration error.
func NewFilter(cfg Config, router Router, logger *slog.Logger, opts ...Option) (*Filter, error) {
	if router == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "PartialConcat", "NewFilter", "router required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	diagnostic, err := regexp.Compile(cfg.diagnosticPattern())
	if err != nil {
		return nil, errors.WrapInvalid(err, "PartialConcat", "NewFilter", "compile diagnostic tag pattern")
	}

	f := &Filter{
		cfg:           cfg,
		router:        router,
		diagnostic:    diagnostic,
		state:         newStreamState(cfg.Key, cfg.MatchKey),
		logger:        logger,
		now:           time.Now,
		sweepInterval: cfg.sweepInterval(),
		stop:          make(chan struct{}),
	}

	if cfg.TimeoutLabel != "" {
		f.timeoutRoute = router.Label(cfg.TimeoutLabel)
		if f.timeoutRoute == nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("unknown timeout_label %q", cfg.TimeoutLabel),
				"PartialConcat", "NewFilter", "resolve timeout label")
		}
	}

	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// FilterStream runs a batch through the filter and returns the records to
// pass downstream, in input order. Records that fail are sent to the error
// route and skipped. An error is returned only when the error route itself
// fails or the filter has been shut down. A shutdown is reported as a
// transient ErrShuttingDown alongside the records taken before it, which the
// caller must still pass on.
func (f *Filter) FilterStream(ctx context.Context, tag string, entries []message.Entry) ([]message.Entry, error) {
	if f.state.isFinished() {
		return nil, errors.WrapTransient(errors.ErrShuttingDown, "PartialConcat", "FilterStream", "accept batch")
	}

	if f.diagnostic.MatchString(tag) {
		for range entries {
			f.metrics.recordRecord(kindDiagnostic)
		}
		return entries, nil
	}

	out := make([]message.Entry, 0, len(entries))
	for _, entry := range entries {
		result, emit, err := f.process(tag, entry)
		if stderrors.Is(err, errors.ErrShuttingDown) {
			return out, errors.WrapTransient(err, "PartialConcat", "FilterStream", "accept record")
		}
		if err != nil {
			f.metrics.recordError("record")
			f.logger.Warn("Record failed, sending to error output",
				"tag", tag,
				"error", err)
			if sinkErr := f.router.EmitError(ctx, tag, entry.Time, entry.Record, err); sinkErr != nil {
				return out, errors.Wrap(sinkErr, "PartialConcat", "FilterStream", "emit record error")
			}
			continue
		}
		if emit {
			out = append(out, result)
		}
	}
	return out, nil
}

// process handles one record under the state lock. A panic is returned as a
// *errors.RecordError so the batch can continue.
func (f *Filter) process(tag string, entry message.Entry) (result message.Entry, emit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, emit = message.Entry{}, false
			err = &errors.RecordError{Tag: tag, Value: r}
		}
	}()

	identity := StreamIdentity(tag, entry.Record, f.cfg.StreamIdentityKey)
	partial := IsPartial(entry.Record[f.cfg.MatchKey])

	s := f.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return message.Entry{}, false, errors.ErrShuttingDown
	}

	s.touch(identity, f.now())

	if partial {
		s.add(identity, Fragment{Tag: tag, Time: entry.Time, Record: entry.Record})
		f.metrics.recordRecord(kindPartial)
		f.metrics.setPending(s.pendingCount())
		return message.Entry{}, false, nil
	}

	if !s.pending(identity) {
		f.metrics.recordRecord(kindPassthrough)
		return entry, true, nil
	}

	s.add(identity, Fragment{Tag: tag, Time: entry.Time, Record: entry.Record})
	merged, n, _ := s.flush(identity)
	f.metrics.recordRecord(kindComplete)
	f.metrics.recordFlush(triggerComplete, n)
	f.metrics.setPending(s.pendingCount())

	return message.Entry{Time: entry.Time, Record: merged.Record}, true, nil
}

// Pending returns the number of buffered fragments per stream identity
func (f *Filter) Pending() map[string]int {
	_, buffered := f.state.snapshot()
	return buffered
}

// LastActivity returns when each known stream identity was last seen
func (f *Filter) LastActivity() map[string]time.Time {
	activity, _ := f.state.snapshot()
	return activity
}
