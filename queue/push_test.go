package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// countingProducer records published payloads instead of touching RabbitMQ.
type countingProducer struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (p *countingProducer) Publish(body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *countingProducer) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bodies)
}

func newTestSender(nProducers int) (*Sender, []*countingProducer) {
	producers := make([]*countingProducer, nProducers)
	q := &Queue{}
	for i := range producers {
		producers[i] = &countingProducer{}
		q.Producers = append(q.Producers, producers[i])
	}
	return NewSender(q), producers
}

func TestSenderPublishesPushMessage(t *testing.T) {
	sender, producers := newTestSender(1)
	userID := primitive.NewObjectID()

	err := sender.Send(context.Background(), userID, "Habit reminder", `Time for "Stretch"`)
	require.NoError(t, err)
	require.Equal(t, 1, producers[0].published())

	var msg PushMessage
	require.NoError(t, json.Unmarshal(producers[0].bodies[0], &msg))
	assert.Equal(t, userID.Hex(), msg.UserID)
	assert.Equal(t, "Habit reminder", msg.Title)
	assert.Equal(t, `Time for "Stretch"`, msg.Body)
	assert.NotEmpty(t, msg.Id)
}

func TestSenderRoundRobinsAcrossProducers(t *testing.T) {
	sender, producers := newTestSender(3)
	userID := primitive.NewObjectID()

	for i := 0; i < 9; i++ {
		require.NoError(t, sender.Send(context.Background(), userID, "t", "b"))
	}
	for _, p := range producers {
		assert.Equal(t, 3, p.published())
	}
}

func TestSenderIsSafeForConcurrentUse(t *testing.T) {
	// Two scheduler jobs can send through the one shared Sender at the same
	// wall-clock moment; no message may be lost.
	sender, producers := newTestSender(2)
	userID := primitive.NewObjectID()

	const goroutines = 8
	const sendsEach = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < sendsEach; i++ {
				assert.NoError(t, sender.Send(context.Background(), userID, "t", "b"))
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, p := range producers {
		total += p.published()
	}
	assert.Equal(t, goroutines*sendsEach, total)
}

func TestSenderErrorsWithoutProducers(t *testing.T) {
	sender := NewSender(&Queue{})
	err := sender.Send(context.Background(), primitive.NewObjectID(), "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no producers")
}
