package notify

import (
	"context"
	"payouts/internal/domain"
	"sync"
	"time"

	"go.uber.org/zap"
)

const deliveryTimeout = 30 * time.Second

// DeliverFunc hands one notification onward: to the mailer, or to a broker.
type DeliverFunc func(ctx context.Context, n domain.Notification) error

// Queue dispatches notifications to a pool of goroutines. Notify never
// blocks: a full buffer drops the event.
type Queue struct {
	ch      chan domain.Notification
	deliver DeliverFunc
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(size, workers int, deliver DeliverFunc, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}

	q := &Queue{
		ch:      make(chan domain.Notification, size),
		deliver: deliver,
		logger:  logger.Named("notify.queue"),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *Queue) Notify(_ context.Context, n domain.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for n := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := q.deliver(ctx, n); err != nil {
			q.logger.Warn("notification failed",
				zap.String("event", string(n.Event)),
				zap.String("withdrawal_id", n.WithdrawalID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops intake and waits for queued events until ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
