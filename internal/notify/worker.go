package notify

import (
	"context"
	"sync"
	"time"

	"github.com/nimbuslab/crewbase/pkg/metrics"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 256
	maxAttempts      = 3
	retryDelay       = 5 * time.Second
)

// Worker drains a bounded queue of messages and delivers them with a
// small number of retries. When the queue is full, new messages are
// dropped with a log line rather than blocking the caller.
type Worker struct {
	mailer     Mailer
	logger     *zap.Logger
	metrics    *metrics.Metrics
	queue      chan *Message
	retryDelay time.Duration
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

func NewWorker(mailer Mailer, m *metrics.Metrics, logger *zap.Logger) *Worker {
	return &Worker{
		mailer:     mailer,
		logger:     logger.Named("notify"),
		metrics:    m,
		queue:      make(chan *Message, defaultQueueSize),
		retryDelay: retryDelay,
	}
}

// Start launches the delivery loop.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop cancels the loop and waits for the in-flight delivery to finish.
// Queued but undelivered messages are discarded.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Enqueue submits a message for delivery. It never blocks.
func (w *Worker) Enqueue(msg *Message) {
	select {
	case w.queue <- msg:
	default:
		w.logger.Warn("mail queue full, dropping message",
			zap.String("to", msg.To),
			zap.String("template", msg.Template))
		w.metrics.MailDelivered(msg.Template, false)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.queue:
			w.deliver(ctx, msg)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, msg *Message) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.mailer.Send(ctx, msg); err == nil {
			w.metrics.MailDelivered(msg.Template, true)
			w.logger.Debug("mail delivered",
				zap.String("to", msg.To),
				zap.String("template", msg.Template))
			return
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryDelay):
			}
		}
	}
	w.metrics.MailDelivered(msg.Template, false)
	w.logger.Error("mail delivery failed",
		zap.String("to", msg.To),
		zap.String("template", msg.Template),
		zap.Error(err))
}
