package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"payouts/internal/domain"
	"time"

	"github.com/hibiken/asynq"
)

const TypeWithdrawalNotify = "withdrawal:notify"

const enqueueTimeout = 2 * time.Second

// AsynqNotifier hands notifications to a Redis backed queue consumed by the
// worker process. Tasks are never retried. Notify talks to Redis, so the api
// runs it from Queue workers.
type AsynqNotifier struct {
	client *asynq.Client
	queue  string
}

func NewAsynqNotifier(client *asynq.Client, queue string) *AsynqNotifier {
	return &AsynqNotifier{client: client, queue: queue}
}

func NewTask(n domain.Notification, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWithdrawalNotify, payload, asynq.MaxRetry(0), asynq.Queue(queue)), nil
}

func (a *AsynqNotifier) Notify(ctx context.Context, n domain.Notification) error {
	task, err := NewTask(n, a.queue)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if _, err := a.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", n.Event, err)
	}
	return nil
}

// NewTaskHandler decodes notification tasks and delivers them.
func NewTaskHandler(d *Deliverer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var n domain.Notification
		if err := json.Unmarshal(t.Payload(), &n); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		return d.Deliver(ctx, n)
	}
}

func NewServeMux(d *Deliverer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeWithdrawalNotify, NewTaskHandler(d))
	return mux
}
