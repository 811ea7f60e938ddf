package queue

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS delivers job ids over a NATS subject, for deployments where the API
// and the worker are separate processes. The worker side uses a synchronous
// subscription so it keeps the same pull model as the memory queue.
type NATS struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

func NewNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("forgesyte"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &NATS{nc: nc, sub: sub, subject: subject}, nil
}

func (q *NATS) Push(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.nc.Publish(q.subject, []byte(jobID)); err != nil {
		return fmt.Errorf("publish job id: %w", err)
	}
	return nil
}

func (q *NATS) Pop(ctx context.Context) (string, error) {
	msg, err := q.sub.NextMsgWithContext(ctx)
	if err != nil {
		return "", err
	}
	return string(msg.Data), nil
}

func (q *NATS) Close() error {
	err := q.sub.Unsubscribe()
	q.nc.Close()
	return err
}
