package partialconcat

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/c360/journaldconcat/errors"
	"github.com/c360/journaldconcat/message"
)

// Emitter accepts records for one downstream route
type Emitter interface {
	Emit(ctx context.Context, tag string, t time.Time, record message.Record) error
}

// Router is the set of routes the filter emits to. Emit is the normal route.
type Router interface {
	Emitter
	EmitError(ctx context.Context, tag string, t time.Time, record message.Record, cause error) error
	// Label resolves a named override route; nil when unknown.
	Label(name string) Emitter
}

// Publisher sends a payload to a subject
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// natsRouter publishes EventStreams on the output subjects, ErrorEvents on
// the error subject and single-entry EventStreams on label subjects.
type natsRouter struct {
	pub          Publisher
	outputs      []string
	errorSubject string
	labels       map[string]string
	logger       *slog.Logger
	metrics      *concatMetrics
}

func newNATSRouter(pub Publisher, outputs []string, errorSubject string, labels map[string]string,
	logger *slog.Logger, metrics *concatMetrics,
) *natsRouter {
	return &natsRouter{
		pub:          pub,
		outputs:      outputs,
		errorSubject: errorSubject,
		labels:       labels,
		logger:       logger,
		metrics:      metrics,
	}
}

// Emit publishes one record to every output subject
func (r *natsRouter) Emit(ctx context.Context, tag string, t time.Time, record message.Record) error {
	return r.EmitStream(ctx, message.NewEventStream(tag, message.Entry{Time: t, Record: record}))
}

// EmitStream publishes a whole batch to every output subject
func (r *natsRouter) EmitStream(ctx context.Context, es *message.EventStream) error {
	if len(es.Entries) == 0 {
		return nil
	}
	data, err := json.Marshal(es)
	if err != nil {
		return errors.WrapInvalid(err, "PartialConcat", "EmitStream", "encode event stream")
	}

	var errs []error
	for _, subject := range r.outputs {
		if err := r.publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// EmitError publishes an ErrorEvent on the error subject. Without one the
// event is logged and dropped.
func (r *natsRouter) EmitError(
	ctx context.Context, tag string, t time.Time, record message.Record, cause error,
) error {
	if r.errorSubject == "" {
		r.logger.Warn("No error output configured, dropping record",
			"tag", tag,
			"error", cause)
		return nil
	}

	data, err := json.Marshal(message.NewErrorEvent(tag, t, record, cause))
	if err != nil {
		return errors.WrapInvalid(err, "PartialConcat", "EmitError", "encode error event")
	}
	return r.publish(ctx, r.errorSubject, data)
}

// Label returns the route for a configured label, or nil
func (r *natsRouter) Label(name string) Emitter {
	subject, ok := r.labels[name]
	if !ok || subject == "" {
		return nil
	}
	return &labelRoute{router: r, subject: subject}
}

func (r *natsRouter) publish(ctx context.Context, subject string, data []byte) error {
	if err := r.pub.Publish(ctx, subject, data); err != nil {
		r.metrics.recordError("publish")
		return errors.WrapTransient(err, "PartialConcat", "publish", "publish to "+subject)
	}
	r.metrics.recordPublished(subject)
	return nil
}

type labelRoute struct {
	router  *natsRouter
	subject string
}

func (l *labelRoute) Emit(ctx context.Context, tag string, t time.Time, record message.Record) error {
	data, err := json.Marshal(message.NewEventStream(tag, message.Entry{Time: t, Record: record}))
	if err != nil {
		return errors.WrapInvalid(err, "PartialConcat", "Label.Emit", "encode event stream")
	}
	return l.router.publish(ctx, l.subject, data)
}
