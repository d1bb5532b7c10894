package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

// idleConsumer stands in for an AMQP consumer; it counts starts and leaves
// the lifetime handling to StartConsumers.
type idleConsumer struct {
	started int32
}

func (c *idleConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	atomic.AddInt32(&c.started, 1)
	return make(chan amqp.Delivery), nil
}

func TestStartConsumersWindsDownOnCancel(t *testing.T) {
	consumers := []*idleConsumer{{}, {}, {}}
	q := &Queue{}
	for _, c := range consumers {
		q.Consumers = append(q.Consumers, c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := q.StartConsumers(ctx)

	// Shutdown must release every consumer goroutine.
	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers did not wind down after cancel")
	}

	for _, c := range consumers {
		assert.Equal(t, int32(1), atomic.LoadInt32(&c.started))
	}
}
