package messaging

import (
	"context"
	"errors"
	"log/slog"
)

// ProcessFunc handles one message. Returning nil acknowledges the message
// when the worker manages acknowledgments.
type ProcessFunc func(ctx context.Context, msg Message) error

// Notifier is informed of messages that failed processing, for alerting or
// dead-lettering. A notifier failure stops the worker.
type Notifier interface {
	NotifyProcessingFailure(ctx context.Context, msg Message, procErr error) error
}

// LogNotifier reports processing failures through a logger. It is the
// default notifier.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) NotifyProcessingFailure(ctx context.Context, msg Message, procErr error) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("message processing failed",
		"deliveryTag", msg.DeliveryTag,
		"routingKey", msg.RoutingKey,
		"error", procErr)
	return nil
}

// Transactor wraps the processing of one message in a transaction. The
// message is only acknowledged when fn and the surrounding transaction both
// succeed.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type nopTransactor struct{}

func (nopTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Worker runs a ProcessFunc over the messages of one consumer. Each message
// is processed inside the configured transactor and acknowledged only after
// the processor returns nil.
type Worker struct {
	consumer      *Consumer
	process       ProcessFunc
	notifier      Notifier
	transactor    Transactor
	logger        *slog.Logger
	faultTolerant bool
	manualAck     bool
}

type workerConfig struct {
	notifier      Notifier
	transactor    Transactor
	logger        *slog.Logger
	faultTolerant bool
	manualAck     bool
}

// WorkerOption configures the Worker
type WorkerOption func(*workerConfig)

// WithNotifier sets the failure notifier
func WithNotifier(n Notifier) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.notifier = n
	}
}

// WithTransactor wraps each message's processing in a transaction
func WithTransactor(tx Transactor) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.transactor = tx
	}
}

// WithWorkerLogger sets the logger
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.logger = logger
	}
}

// WithFaultTolerant keeps the worker running after a message fails
// processing. The failed message is reported to the notifier and left
// unacknowledged so the broker can redeliver it.
func WithFaultTolerant() WorkerOption {
	return func(cfg *workerConfig) {
		cfg.faultTolerant = true
	}
}

// WithManualAck leaves acknowledgment to the ProcessFunc
func WithManualAck() WorkerOption {
	return func(cfg *workerConfig) {
		cfg.manualAck = true
	}
}

// NewWorker creates a worker draining consumer through process.
func NewWorker(consumer *Consumer, process ProcessFunc, options ...WorkerOption) (*Worker, error) {
	if consumer == nil {
		return nil, errors.New("messaging: consumer cannot be nil")
	}
	if process == nil {
		return nil, errors.New("messaging: process function cannot be nil")
	}

	cfg := &workerConfig{
		logger:     slog.Default(),
		transactor: nopTransactor{},
	}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.notifier == nil {
		cfg.notifier = &LogNotifier{Logger: cfg.logger}
	}

	return &Worker{
		consumer:      consumer,
		process:       process,
		notifier:      cfg.notifier,
		transactor:    cfg.transactor,
		logger:        cfg.logger,
		faultTolerant: cfg.faultTolerant,
		manualAck:     cfg.manualAck,
	}, nil
}

// runOptions configures one Run call
type runOptions struct {
	limit int
}

// RunOption configures Run
type RunOption func(*runOptions)

// WithRunLimit stops the run after n messages have been processed
func WithRunLimit(n int) RunOption {
	return func(opts *runOptions) {
		opts.limit = n
	}
}

// Run processes messages until ctx is done or the run limit is reached. A
// processing failure stops the run unless the worker is fault tolerant, in
// which case the failure is reported to the notifier and the message is left
// unacknowledged. A notifier failure always stops the run.
func (w *Worker) Run(ctx context.Context, options ...RunOption) error {
	opts := runOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	iterOpts := []IterationOption{}
	if opts.limit > 0 {
		iterOpts = append(iterOpts, WithLimit(opts.limit))
	}

	it, err := w.consumer.Messages(ctx, iterOpts...)
	if err != nil {
		return err
	}
	defer it.Close()

	w.logger.Info("worker started", "queue", w.consumer.Queue(), "limit", opts.limit)

	for {
		msg, err := it.Next(ctx)
		if errors.Is(err, ErrIterationDone) {
			w.logger.Info("worker finished", "queue", w.consumer.Queue())
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopped", "queue", w.consumer.Queue(), "reason", ctx.Err())
				return nil
			}
			return err
		}

		if err := w.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg Message) error {
	procErr := w.transactor.InTransaction(ctx, func(txCtx context.Context) error {
		return w.process(txCtx, msg)
	})
	if procErr != nil {
		w.logger.Error("message processing failed",
			"queue", w.consumer.Queue(),
			"deliveryTag", msg.DeliveryTag,
			"error", procErr)
		if err := w.notifier.NotifyProcessingFailure(ctx, msg, procErr); err != nil {
			return err
		}
		if !w.faultTolerant {
			return procErr
		}
		// Fault tolerant: the message stays unacknowledged so the broker can
		// redeliver it, and the run continues with the next one.
		return nil
	}

	if !w.manualAck {
		if err := w.consumer.Ack(msg); err != nil {
			return err
		}
	}
	return nil
}
