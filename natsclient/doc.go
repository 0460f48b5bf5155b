// Package natsclient wraps the NATS Go client with circuit breaker
// protection, connection health tracking and JetStream stream helpers.
//
// # Connection Lifecycle
//
// A Client moves through Disconnected, Connecting, Connected and
// Reconnecting. After five consecutive failed connects (configurable with
// WithCircuitBreaker) the circuit opens and Connect fails fast with
// ErrCircuitOpen until the backoff elapses. Each opening doubles the backoff
// up to the configured maximum.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("journaldconcat"),
//	    natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Subscribe(ctx, "logs.docker.>", func(msgCtx context.Context, data []byte) {
//	    // msgCtx is cancelled after the handler timeout (30s by default)
//	})
//
// # JetStream
//
// EnsureStream creates a stream on first use. ConsumeStream runs a durable
// consumer whose handler outcome decides acknowledgement: nil acks, a
// transient error naks for redelivery, and anything else terminates the
// message.
//
//	_, err = client.EnsureStream(ctx, "LOGS", "logs.docker.>")
//	err = client.ConsumeStream(ctx, "LOGS", "logs.docker.>", "concat",
//	    func(ctx context.Context, data []byte) error {
//	        return process(ctx, data)
//	    })
//
// # Testing
//
// NewTestClient and NewSharedTestClient start a throwaway NATS server with
// testcontainers-go. Tests that use them are gated on INTEGRATION_TESTS.
package natsclient
