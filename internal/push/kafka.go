package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"takeaway-storefront/internal/domain"
)

const DefaultKafkaTopic = "order-status"

type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// Publish keys by user so one user's updates stay ordered on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, msg domain.StatusMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.UserID, 10)),
		Value: b,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}

// KafkaChannel reads the shared topic with a private consumer group per
// subscription, starting at the newest offset.
type KafkaChannel struct {
	Brokers     []string
	Topic       string
	GroupPrefix string
	Logger      *zap.Logger

	box *stateBox

	mu      sync.Mutex
	readers map[int]context.CancelFunc
	next    int
	wg      sync.WaitGroup
}

func NewKafkaChannel(brokers []string, topic string, logger *zap.Logger) *KafkaChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &KafkaChannel{
		Brokers:     brokers,
		Topic:       topic,
		GroupPrefix: "storefront-view",
		Logger:      logger,
		box:         newStateBox(),
		readers:     map[int]context.CancelFunc{},
	}
}

func (c *KafkaChannel) Connect(ctx context.Context, userID int64) error {
	c.box.set(StateConnecting)
	if len(c.Brokers) == 0 {
		c.box.set(StateError)
		return ErrUnavailable
	}
	conn, err := kafka.DialContext(ctx, "tcp", c.Brokers[0])
	if err != nil {
		c.box.set(StateError)
		return fmt.Errorf("kafka dial: %w", err)
	}
	_ = conn.Close()
	c.box.set(StateConnected)
	return nil
}

func (c *KafkaChannel) Subscribe(userID int64, fn Handler) (func(), error) {
	if c.box.get() != StateConnected {
		return nil, ErrNotConnected
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.Brokers,
		Topic:       c.Topic,
		GroupID:     c.GroupPrefix + "-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MaxWait:     500 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	key := strconv.FormatInt(userID, 10)

	c.mu.Lock()
	id := c.next
	c.next++
	c.readers[id] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer r.Close()
		for {
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				c.Logger.Warn("kafka read failed", zap.String("topic", c.Topic), zap.Error(err))
				c.box.set(StateError)
				return
			}
			if string(m.Key) != key {
				continue
			}
			var msg domain.StatusMessage
			if err := json.Unmarshal(m.Value, &msg); err != nil {
				c.Logger.Warn("drop malformed status message", zap.Int64("offset", m.Offset), zap.Error(err))
				continue
			}
			fn(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.readers, id)
			c.mu.Unlock()
			cancel()
		})
	}, nil
}

func (c *KafkaChannel) Disconnect() error {
	c.mu.Lock()
	readers := c.readers
	c.readers = map[int]context.CancelFunc{}
	c.mu.Unlock()
	for _, cancel := range readers {
		cancel()
	}
	c.wg.Wait()
	c.box.set(StateDisconnected)
	return nil
}

func (c *KafkaChannel) State() ConnState { return c.box.get() }

func (c *KafkaChannel) Watch(fn func(ConnState)) func() { return c.box.watch(fn) }
