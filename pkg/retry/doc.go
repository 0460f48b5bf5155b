// Package retry runs an operation again with exponential backoff while it
// keeps failing.
//
// Errors marked with Permanent, and errors the errors package classifies
// as invalid or fatal, end the loop at once. Everything else is retried
// until the policy's attempts are used up or the context ends.
//
// Presets:
//
//   - Default(): 3 attempts, 100ms to 5s
//   - Startup(): 10 attempts, 50ms to 1s, for connecting to NATS at boot
//
// Example:
//
//	p := retry.Startup()
//	p.OnRetry = func(attempt int, err error, wait time.Duration) {
//		logger.Warn("NATS connect failed", "attempt", attempt, "error", err, "wait", wait)
//	}
//	err := retry.Do(ctx, p, client.Connect)
package retry
