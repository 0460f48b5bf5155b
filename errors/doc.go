// Package errors provides standardized error handling for journaldconcat components.
//
// # Classification
//
// Errors fall into three classes:
//
//   - Transient: connection loss, timeouts, temporary unavailability
//   - Invalid: malformed input or bad configuration values
//   - Fatal: the component cannot continue (missing config, shutting down)
//
// Classification works through errors.Is and errors.As, so wrapped chains keep
// their class:
//
//	if err := p.natsClient.Subscribe(ctx, subject, p.handleMessage); err != nil {
//	    return errors.WrapTransient(err, "PartialConcat", "Start", "subscribe")
//	}
//
// # Domain errors
//
// TimeoutError is routed to the error sink when the sweeper force-flushes an
// idle stream and no override label is configured. It matches ErrTimeoutFlush:
//
//	if errors.Is(ev.Err, errors.ErrTimeoutFlush) { ... }
//
// RecordError wraps a fault (returned error or recovered panic) raised while
// processing a single record. The record is reported and the batch continues.
package errors
