package partialconcat

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/journaldconcat/message"
	"github.com/c360/journaldconcat/testutil"
)

type emitted struct {
	tag    string
	time   time.Time
	record message.Record
	cause  error
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (e *recordingEmitter) Emit(_ context.Context, tag string, t time.Time, record message.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, emitted{tag: tag, time: t, record: record})
	return nil
}

func (e *recordingEmitter) all() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.events...)
}

// recordingRouter captures everything the filter emits
type recordingRouter struct {
	recordingEmitter

	errMu    sync.Mutex
	errs     []emitted
	errorErr error

	labels map[string]*recordingEmitter
}

func newRecordingRouter(labels ...string) *recordingRouter {
	r := &recordingRouter{labels: make(map[string]*recordingEmitter)}
	for _, l := range labels {
		r.labels[l] = &recordingEmitter{}
	}
	return r
}

func (r *recordingRouter) EmitError(
	_ context.Context, tag string, t time.Time, record message.Record, cause error,
) error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.errorErr != nil {
		return r.errorErr
	}
	r.errs = append(r.errs, emitted{tag: tag, time: t, record: record, cause: cause})
	return nil
}

func (r *recordingRouter) Label(name string) Emitter {
	if e, ok := r.labels[name]; ok {
		return e
	}
	return nil
}

func (r *recordingRouter) errors() []emitted {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return append([]emitted(nil), r.errs...)
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testutil.BaseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FlushInterval = Duration(60 * time.Second)
	return cfg
}

func newTestFilter(t *testing.T, cfg Config, router Router, opts ...Option) *Filter {
	t.Helper()
	f, err := NewFilter(cfg, router, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Shutdown(context.Background()) })
	return f
}

// entries turns records into entries one second apart from BaseTime
func entries(records ...map[string]any) []message.Entry {
	out := make([]message.Entry, len(records))
	for i, r := range records {
		out[i] = message.Entry{
			Time:   testutil.BaseTime.Add(time.Duration(i) * time.Second),
			Record: message.Record(r),
		}
	}
	return out
}

var errSink = stderrors.New("error sink unavailable")

// gateClock blocks the filter on its nth reading until released. The filter
// reads the clock once per record, under the state lock.
type gateClock struct {
	calls   atomic.Int32
	gate    int32
	reached chan struct{}
	release chan struct{}
}

func newGateClock(gate int32) *gateClock {
	return &gateClock{
		gate:    gate,
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *gateClock) Now() time.Time {
	if c.calls.Add(1) == c.gate {
		close(c.reached)
		<-c.release
	}
	return testutil.BaseTime
}
