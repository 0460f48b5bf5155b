package partialconcat

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/journaldconcat/component"
	"github.com/c360/journaldconcat/errors"
	"github.com/c360/journaldconcat/message"
	"github.com/c360/journaldconcat/natsclient"
)

const (
	processorName = "partial-concat-processor"
	errorPortName = "error"
)

// Component status values reported to the core status gauge
const (
	statusStopped = 0
	statusRunning = 1
	statusFailed  = 2
)

// transport is the part of the NATS client the processor needs for core
// subjects.
type transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Processor joins partial log records arriving on NATS subjects and
// publishes the result.
type Processor struct {
	name    string
	cfg     Config
	inputs  []component.Port
	outputs []component.Port

	filter *Filter
	router *natsRouter

	client    *natsclient.Client // JetStream ports only
	transport transport
	logger    *slog.Logger
	metrics   *concatMetrics

	// Lifecycle management
	running      bool
	stopped      bool
	accepting    bool // guarded by mu together with inflight.Add
	cancelIntake context.CancelFunc
	startTime    time.Time
	mu           sync.RWMutex
	lifecycleMu  sync.Mutex
	inflight     sync.WaitGroup

	messagesProcessed int64
	errors            int64
	lastActivity      time.Time
	lastError         string
}

// NewProcessor creates the processor from raw JSON configuration
func NewProcessor(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg, err := ParseConfig(rawConfig)
	if err != nil {
		return nil, err
	}

	inputs, outputs := cfg.resolvePorts()
	if len(subjectsOf(inputs)) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "PartialConcat", "NewProcessor",
			"no input subjects configured")
	}

	logger := deps.GetLoggerWithComponent(processorName)

	metrics, err := newConcatMetrics(deps.MetricsRegistry, processorName)
	if err != nil {
		logger.Error("Failed to initialize partial concat metrics", "error", err)
		metrics = nil
	}

	p := &Processor{
		name:    processorName,
		cfg:     cfg,
		inputs:  inputs,
		outputs: outputs,
		logger:  logger,
		metrics: metrics,
	}
	if deps.NATSClient != nil {
		p.client = deps.NATSClient
		p.transport = deps.NATSClient
	}

	var outputSubjects []string
	var errorSubject string
	for _, port := range outputs {
		switch subject := port.Subject(); {
		case subject == "":
		case port.Name == errorPortName:
			errorSubject = subject
		default:
			outputSubjects = append(outputSubjects, subject)
		}
	}
	p.router = newNATSRouter(p, outputSubjects, errorSubject, cfg.Labels, logger, metrics)

	p.filter, err = NewFilter(cfg, p.router, logger, withMetrics(metrics))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func subjectsOf(ports []component.Port) []string {
	subjects := make([]string, 0, len(ports))
	for _, port := range ports {
		if s := port.Subject(); s != "" {
			subjects = append(subjects, s)
		}
	}
	return subjects
}

// Filter exposes the underlying filter
func (p *Processor) Filter() *Filter {
	return p.filter
}

// Initialize prepares the processor (no-op)
func (p *Processor) Initialize() error {
	return nil
}

// Start subscribes to every input port and starts the timeout sweeper. The
// subscriptions last until Stop or until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "PartialConcat", "Start", "check running state")
	}
	if p.stopped {
		return errors.WrapFatal(errors.ErrShuttingDown, "PartialConcat", "Start", "check stopped state")
	}
	if p.transport == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "PartialConcat", "Start", "NATS client required")
	}

	intakeCtx, cancel := context.WithCancel(ctx)
	p.setAccepting(true)
	for _, port := range p.inputs {
		if err := p.subscribe(intakeCtx, port); err != nil {
			cancel()
			p.setAccepting(false)
			p.metrics.recordStatus(statusFailed)
			return err
		}
	}
	p.cancelIntake = cancel

	p.filter.Start(ctx)

	p.mu.Lock()
	p.running = true
	p.startTime = time.Now()
	p.mu.Unlock()
	p.metrics.recordStatus(statusRunning)

	p.logger.Info("Partial concat processor started",
		"input_subjects", subjectsOf(p.inputs),
		"output_subjects", p.router.outputs,
		"error_subject", p.router.errorSubject,
		"flush_interval", time.Duration(p.cfg.FlushInterval),
		"timeout_label", p.cfg.TimeoutLabel)
	return nil
}

func (p *Processor) subscribe(ctx context.Context, port component.Port) error {
	subject := port.Subject()
	if subject == "" {
		return nil
	}

	switch cfg := port.Config.(type) {
	case component.JetStreamPort:
		if p.client == nil {
			return errors.WrapFatal(errors.ErrMissingConfig, "PartialConcat", "Start",
				"JetStream input requires a NATS client")
		}
		if _, err := p.client.EnsureStream(ctx, cfg.StreamName, cfg.Subjects...); err != nil {
			return errors.Wrap(err, "PartialConcat", "Start", "ensure stream "+cfg.StreamName)
		}
		durable := cfg.ConsumerName
		if durable == "" {
			durable = p.name + "-" + port.Name
		}
		if err := p.client.ConsumeStream(ctx, cfg.StreamName, subject, durable, p.consume); err != nil {
			return errors.Wrap(err, "PartialConcat", "Start", "consume "+cfg.StreamName)
		}
	default:
		if err := p.transport.Subscribe(ctx, subject, p.handleMessage); err != nil {
			p.logger.Error("Failed to subscribe to NATS subject",
				"subject", subject,
				"error", err)
			return errors.WrapTransient(err, "PartialConcat", "Start", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	p.logger.Debug("Subscribed to input", "port", port.Name, "subject", subject)
	return nil
}

// Stop ends intake, waits for in-flight batches to be published, then drains
// pending fragments to the output subjects. Batches arriving after intake
// ends are rejected with a transient ErrShuttingDown.
func (p *Processor) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p.setAccepting(false)
	p.cancelIntake()

	waitCh := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(waitCh)
	}()

	var waitErr error
	select {
	case <-waitCh:
	case <-ctx.Done():
		waitErr = errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"PartialConcat", "Stop", "wait for in-flight batches")
		p.logger.Error("In-flight batches still running at drain", "timeout", timeout)
	}

	drainErr := p.filter.Shutdown(ctx)
	if drainErr != nil {
		p.logger.Error("Shutdown drain failed", "error", drainErr)
	}

	p.mu.Lock()
	p.running = false
	p.stopped = true
	p.mu.Unlock()
	p.metrics.recordStatus(statusStopped)

	return stderrors.Join(waitErr, drainErr)
}

func (p *Processor) setAccepting(v bool) {
	p.mu.Lock()
	p.accepting = v
	p.mu.Unlock()
}

// Publish sends data to subject, through JetStream when an output port
// declares the subject as a stream.
func (p *Processor) Publish(ctx context.Context, subject string, data []byte) error {
	if p.client != nil && p.isStreamOutput(subject) {
		return p.client.PublishToStream(ctx, subject, data)
	}
	if p.transport == nil {
		return errors.ErrNoConnection
	}
	return p.transport.Publish(ctx, subject, data)
}

func (p *Processor) isStreamOutput(subject string) bool {
	for _, port := range p.outputs {
		if _, ok := port.Config.(component.JetStreamPort); ok && port.Subject() == subject {
			return true
		}
	}
	return false
}

// handleMessage processes a batch from a core NATS subscription
func (p *Processor) handleMessage(ctx context.Context, data []byte) {
	_ = p.handleBatch(ctx, data)
}

// consume processes a batch from a JetStream consumer. A batch refused
// because the processor is shutting down is redelivered. Other failures
// terminate the message: its records have already changed the buffered
// state, so a redelivery would duplicate them.
func (p *Processor) consume(ctx context.Context, data []byte) error {
	err := p.handleBatch(ctx, data)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrShuttingDown):
		return errors.WrapTransient(err, "PartialConcat", "consume", "redeliver batch")
	default:
		return errors.WrapFatal(err, "PartialConcat", "consume", "process batch")
	}
}

func (p *Processor) handleBatch(ctx context.Context, data []byte) error {
	p.mu.Lock()
	if !p.accepting {
		p.mu.Unlock()
		return errors.WrapTransient(errors.ErrShuttingDown, "PartialConcat", "handleBatch", "accept batch")
	}
	p.inflight.Add(1)
	p.lastActivity = time.Now()
	p.mu.Unlock()
	defer p.inflight.Done()

	atomic.AddInt64(&p.messagesProcessed, 1)
	p.metrics.recordReceived()

	es, err := message.DecodeEventStream(data)
	if err != nil {
		p.fail("decode", err)
		p.logger.Debug("Failed to decode event stream",
			"size_bytes", len(data),
			"error", err)
		return err
	}

	// A filter shut down mid-batch still returns the records it took,
	// including completed merges whose fragments are gone from the buffer.
	out, err := p.filter.FilterStream(ctx, es.Tag, es.Entries)
	shuttingDown := stderrors.Is(err, errors.ErrShuttingDown)
	if err != nil && !shuttingDown {
		p.fail("emit", err)
		p.logger.Error("Failed to emit to error output", "tag", es.Tag, "error", err)
		return err
	}

	if pubErr := p.router.EmitStream(ctx, message.NewEventStream(es.Tag, out...)); pubErr != nil {
		p.fail("publish", pubErr)
		p.logger.Error("Failed to publish concatenated stream",
			"tag", es.Tag,
			"entries", len(out),
			"error", pubErr)
		return pubErr
	}

	if shuttingDown {
		p.logger.Warn("Batch cut short by shutdown",
			"tag", es.Tag,
			"accepted", len(out),
			"entries", len(es.Entries))
	}
	return err
}

func (p *Processor) fail(errorType string, err error) {
	atomic.AddInt64(&p.errors, 1)
	p.metrics.recordError(errorType)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
}

// Meta returns metadata describing this processor component.
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        p.name,
		Type:        "processor",
		Description: "Joins partial container log messages into whole records",
		Version:     "0.1.0",
	}
}

// InputPorts returns the ports this processor consumes.
func (p *Processor) InputPorts() []component.Port {
	return p.inputs
}

// OutputPorts returns the ports this processor publishes to.
func (p *Processor) OutputPorts() []component.Port {
	return p.outputs
}

// ConfigSchema returns the configuration schema for this processor.
func (p *Processor) ConfigSchema() component.ConfigSchema {
	return partialConcatSchema
}

// Health returns the current health status of this processor.
func (p *Processor) Health() component.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var uptime time.Duration
	if p.running {
		uptime = time.Since(p.startTime)
	}
	return component.HealthStatus{
		Healthy:    p.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&p.errors)),
		LastError:  p.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics for this processor.
func (p *Processor) DataFlow() component.FlowMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	processed := atomic.LoadInt64(&p.messagesProcessed)
	errorCount := atomic.LoadInt64(&p.errors)

	var errorRate, rate float64
	if processed > 0 {
		errorRate = float64(errorCount) / float64(processed)
	}
	if p.running {
		if secs := time.Since(p.startTime).Seconds(); secs > 0 {
			rate = float64(processed) / secs
		}
	}

	buffered := 0
	for _, n := range p.filter.Pending() {
		buffered += n
	}

	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errorRate,
		Buffered:          buffered,
		LastActivity:      p.lastActivity,
	}
}

// Register registers the partial concat processor with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "partial_concat",
		Factory:     NewProcessor,
		Schema:      partialConcatSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "logging",
		Description: "Concatenates Docker partial messages split by the journald log driver",
		Version:     "0.1.0",
	})
}
