package partialconcat

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/c360/journaldconcat/errors"
)

// Start launches the timeout sweeper. It does nothing when the flush
// interval is zero or negative, and only the first call has effect.
func (f *Filter) Start(ctx context.Context) {
	if f.cfg.FlushInterval <= 0 {
		return
	}
	f.startOnce.Do(func() {
		ctx := context.WithoutCancel(ctx)
		f.wg.Add(1)
		go f.sweepLoop(ctx)
	})
}

func (f *Filter) sweepLoop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.sweep(ctx)
		}
	}
}

type timedOut struct {
	identity string
	fragment Fragment
}

// sweep flushes every stream idle for at least the flush interval through the
// timeout route. Activity entries of flushed streams are dropped once the
// scan is done. Route failures are logged; nothing is retried.
func (f *Filter) sweep(ctx context.Context) int {
	interval := f.cfg.FlushInterval
	if interval <= 0 {
		return 0
	}

	s := f.state
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return 0
	}

	now := f.now()
	var idle []string
	for identity, last := range s.activity {
		if now.Sub(last) >= time.Duration(interval) && s.pending(identity) {
			idle = append(idle, identity)
		}
	}
	s.sortBySeq(idle)

	flushed := make([]timedOut, 0, len(idle))
	for _, identity := range idle {
		merged, n, ok := s.flush(identity)
		if !ok {
			continue
		}
		f.metrics.recordFlush(triggerTimeout, n)
		flushed = append(flushed, timedOut{identity: identity, fragment: merged})
	}
	for _, t := range flushed {
		delete(s.activity, t.identity)
	}
	f.metrics.setPending(s.pendingCount())
	s.mu.Unlock()

	for _, t := range flushed {
		f.logger.Info("Timeout flush", "stream_identity", t.identity)
		if err := f.emitTimeout(ctx, t); err != nil {
			f.metrics.recordError("emit")
			f.logger.Error("Failed to emit timeout flush",
				"stream_identity", t.identity,
				"error", err)
		}
	}
	return len(flushed)
}

func (f *Filter) emitTimeout(ctx context.Context, t timedOut) error {
	frag := t.fragment
	if f.timeoutRoute != nil {
		return f.timeoutRoute.Emit(ctx, frag.Tag, frag.Time, frag.Record)
	}
	return f.router.EmitError(ctx, frag.Tag, frag.Time, frag.Record, &errors.TimeoutError{Identity: t.identity})
}

// Shutdown stops the sweeper, then flushes every pending stream through the
// normal route. After it returns FilterStream accepts nothing. Later calls
// return the first call's result.
func (f *Filter) Shutdown(ctx context.Context) error {
	f.shutdownOnce.Do(func() {
		f.shutdownErr = f.drain(ctx)
	})
	return f.shutdownErr
}

func (f *Filter) drain(ctx context.Context) error {
	s := f.state

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	close(f.stop)
	f.wg.Wait()

	s.mu.Lock()
	ids := s.pendingIdentities()
	drained := make([]timedOut, 0, len(ids))
	for _, identity := range ids {
		merged, n, ok := s.flush(identity)
		if !ok {
			continue
		}
		f.metrics.recordFlush(triggerShutdown, n)
		drained = append(drained, timedOut{identity: identity, fragment: merged})
	}
	clear(s.buffers)
	f.metrics.setPending(0)
	s.mu.Unlock()

	var errs []error
	for _, d := range drained {
		f.logger.Info("Shutdown flush", "stream_identity", d.identity)
		frag := d.fragment
		if err := f.router.Emit(ctx, frag.Tag, frag.Time, frag.Record); err != nil {
			f.metrics.recordError("emit")
			errs = append(errs, errors.Wrap(err, "PartialConcat", "Shutdown", "emit "+d.identity))
		}
	}

	f.logger.Info("Shutdown drain complete", "flushed", len(drained))
	return stderrors.Join(errs...)
}
