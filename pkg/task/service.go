package task

import (
	"context"

	"github.com/hibiken/asynq"
)

// Enqueuer abstracts task submission so services depend on an interface
// rather than holding the asynq client, and tests can fake the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type clientEnqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &clientEnqueuer{client: client}
}

func (e *clientEnqueuer) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return e.client.EnqueueContext(ctx, t, opts...)
}
