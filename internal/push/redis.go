package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"takeaway-storefront/internal/domain"
)

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisPublisher struct {
	Client *redis.Client
}

func (p *RedisPublisher) Publish(ctx context.Context, msg domain.StatusMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, Topic(msg.UserID), b).Err()
}

// RedisChannel receives status messages over Redis Pub/Sub.
type RedisChannel struct {
	Client *redis.Client
	Logger *zap.Logger

	box *stateBox

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	subs   map[int]*redis.PubSub
	next   int
	wg     sync.WaitGroup
}

func NewRedisChannel(client *redis.Client, logger *zap.Logger) *RedisChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChannel{Client: client, Logger: logger, box: newStateBox(), subs: map[int]*redis.PubSub{}}
}

func (c *RedisChannel) Connect(ctx context.Context, userID int64) error {
	c.box.set(StateConnecting)
	if err := c.Client.Ping(ctx).Err(); err != nil {
		c.box.set(StateError)
		return fmt.Errorf("redis ping: %w", err)
	}
	c.mu.Lock()
	if c.cancel == nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()
	c.box.set(StateConnected)
	return nil
}

func (c *RedisChannel) Subscribe(userID int64, fn Handler) (func(), error) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil || c.box.get() != StateConnected {
		return nil, ErrNotConnected
	}
	ps := c.Client.Subscribe(ctx, Topic(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		c.box.set(StateError)
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ps
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for m := range ps.Channel() {
			var msg domain.StatusMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				c.Logger.Warn("drop malformed status message", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			fn(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			_, ok := c.subs[id]
			delete(c.subs, id)
			c.mu.Unlock()
			if ok {
				_ = ps.Close()
			}
		})
	}, nil
}

func (c *RedisChannel) Disconnect() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = map[int]*redis.PubSub{}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.ctx = nil
	}
	c.mu.Unlock()
	for _, ps := range subs {
		_ = ps.Close()
	}
	c.wg.Wait()
	c.box.set(StateDisconnected)
	return nil
}

func (c *RedisChannel) State() ConnState { return c.box.get() }

func (c *RedisChannel) Watch(fn func(ConnState)) func() { return c.box.watch(fn) }
