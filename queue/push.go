package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/jghoshh/cadence/models"
	cache "github.com/jghoshh/cadence/storage/cache"
	"github.com/streadway/amqp"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Deliverer hands a push message to the actual delivery channel (push
// gateway or the SMTP fallback). Implementations resolve the recipient's
// address themselves.
type Deliverer interface {
	Deliver(ctx context.Context, user *models.User, title, body string) error
}

// UserResolver looks up the recipient of a push message. The persistent
// storage satisfies this.
type UserResolver interface {
	FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// PushMessage is the wire format of one queued push notification. The Id is
// the dedup key the consumers check against the cache, so a redelivered
// message is acknowledged without a second send.
type PushMessage struct {
	Id     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// PushProducerFactory creates new PushProducer instances.
type PushProducerFactory struct{}

// PushConsumerFactory creates new PushConsumer instances bound to the dedup
// cache, the user lookup and the delivery channel.
type PushConsumerFactory struct {
	Cache     cache.CacheInterface
	Users     UserResolver
	Deliverer Deliverer
}

// PushProducer manages the connection, channel and queue of an AMQP producer
// for push messages.
type PushProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
}

// PushConsumer manages the connection, channel, queue, dedup cache and
// delivery channel of an AMQP consumer for push messages.
type PushConsumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queue     *amqp.Queue
	cache     cache.CacheInterface
	users     UserResolver
	deliverer Deliverer
}

// CreateProducer instantiates a new PushProducer on the given connection,
// channel and queue.
func (f *PushProducerFactory) CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	return &PushProducer{
		conn:    conn,
		channel: ch,
		queue:   queue,
	}, nil
}

// CreateConsumer instantiates a new PushConsumer on the given connection,
// channel and queue, carrying the factory's cache, user lookup and deliverer.
func (f *PushConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	return &PushConsumer{
		conn:      conn,
		channel:   ch,
		queue:     queue,
		cache:     f.Cache,
		users:     f.Users,
		deliverer: f.Deliverer,
	}, nil
}

// Publish publishes the given message body to the queue.
func (p *PushProducer) Publish(body []byte) error {
	err := p.channel.Publish(
		"",           // exchange
		p.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Consume sets up a consumer on the queue and launches a worker goroutine
// that reads push messages, checks the dedup cache, resolves the recipient
// and delivers. Transient failures nack-and-requeue; anything already
// processed is acknowledged and dropped.
func (c *PushConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := c.channel.Consume(
		c.queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					return
				}
				c.handle(ctx, d)

			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

func (c *PushConsumer) handle(ctx context.Context, d amqp.Delivery) {
	message := &PushMessage{}
	if err := json.Unmarshal(d.Body, message); err != nil {
		log.Printf("failed to unmarshal push message: %v", err)
		d.Nack(false, false) // malformed, requeueing cannot help
		return
	}

	// Fetch processed state from cache.
	processed, err := c.cache.Get(ctx, "push_"+message.Id)
	if err != nil {
		// Ignore cache misses, handle other errors.
		if err.Error() != "key does not exist" {
			log.Printf("error checking cache: %v", err)
			d.Nack(false, true) // requeue in case of transient error
			return
		}
	}
	if processed != nil {
		d.Ack(false)
		return
	}

	userID, err := primitive.ObjectIDFromHex(message.UserID)
	if err != nil {
		log.Printf("push message %s has invalid user id %q: %v", message.Id, message.UserID, err)
		d.Nack(false, false)
		return
	}

	user, err := c.users.FindUser(ctx, userID)
	if err != nil {
		log.Printf("failed to resolve push recipient %s: %v", message.UserID, err)
		d.Nack(false, true)
		return
	}

	if err := c.deliverer.Deliver(ctx, user, message.Title, message.Body); err != nil {
		log.Printf("failed to deliver push message %s: %v", message.Id, err)
		d.Nack(false, true)
		return
	}

	d.Ack(false)
	if err := c.cache.Set(ctx, "push_"+message.Id, true); err != nil {
		log.Printf("failed to set key in cache: %v", err)
	}
}

// Sender publishes push messages onto the queue, implementing the engine's
// Sender capability. Messages are spread across the queue's producers in a
// round-robin manner. Safe for concurrent use: the scheduler may run jobs
// that send through the same Sender at overlapping times.
type Sender struct {
	queue *Queue
	count uint64
}

// NewSender creates a Sender on an initialized queue.
func NewSender(q *Queue) *Sender {
	return &Sender{queue: q}
}

// Send serializes one push message for the user and publishes it.
func (s *Sender) Send(ctx context.Context, userID primitive.ObjectID, title, body string) error {
	msg := &PushMessage{
		Id:     primitive.NewObjectID().Hex(),
		UserID: userID.Hex(),
		Title:  title,
		Body:   body,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.New("failed to marshal push message: " + err.Error())
	}

	producerCount := len(s.queue.Producers)
	if producerCount == 0 {
		return errors.New("no producers available")
	}

	next := atomic.AddUint64(&s.count, 1) - 1
	producer := s.queue.Producers[next%uint64(producerCount)]

	if err := producer.Publish(payload); err != nil {
		return errors.New("failed to publish push message: " + err.Error())
	}

	return nil
}

// BuildPushQueue initializes the queue handling push messages with the given
// number of producers and consumers.
func BuildPushQueue(rabbitMQURL string, numProducers, numConsumers int, dedupCache cache.CacheInterface, users UserResolver, deliverer Deliverer) (*Queue, error) {
	prodFactories := make([]ProducerFactory, numProducers)
	for i := 0; i < numProducers; i++ {
		prodFactories[i] = &PushProducerFactory{}
	}

	consFactories := make([]ConsumerFactory, numConsumers)
	for i := 0; i < numConsumers; i++ {
		consFactories[i] = &PushConsumerFactory{Cache: dedupCache, Users: users, Deliverer: deliverer}
	}

	return InitQueue(rabbitMQURL, "pushQueue", prodFactories, consFactories)
}

// InitPushCache initializes the cache used to dedupe push deliveries.
func InitPushCache(url string) (cache.CacheInterface, error) {
	c, err := cache.NewCache(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to cache: %w", err)
	}
	return c, nil
}
