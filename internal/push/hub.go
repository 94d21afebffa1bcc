package push

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"takeaway-storefront/internal/domain"
)

// Hub is an in-process broker used by the reference backend.
type Hub struct {
	Logger *zap.Logger

	mu      sync.RWMutex
	subs    map[int64]map[int]Handler
	next    int
	offline atomic.Bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{Logger: logger, subs: map[int64]map[int]Handler{}}
}

// SetOffline makes new connections fail, as if the broker were down.
func (h *Hub) SetOffline(v bool) {
	h.offline.Store(v)
}

func (h *Hub) Publish(ctx context.Context, msg domain.StatusMessage) error {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs[msg.UserID]))
	for _, fn := range h.subs[msg.UserID] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(msg)
	}
	h.Logger.Debug("status published", zap.String("topic", Topic(msg.UserID)), zap.Int64("orderId", msg.OrderID), zap.Int("subscribers", len(handlers)))
	return nil
}

func (h *Hub) subscribe(userID int64, fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	if h.subs[userID] == nil {
		h.subs[userID] = map[int]Handler{}
	}
	h.subs[userID][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[userID], id)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
	}
}

func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// HubChannel is a Channel backed by a Hub.
type HubChannel struct {
	hub *Hub
	box *stateBox

	mu     sync.Mutex
	unsubs map[int]func()
	next   int
}

func NewHubChannel(h *Hub) *HubChannel {
	return &HubChannel{hub: h, box: newStateBox(), unsubs: map[int]func(){}}
}

func (c *HubChannel) Connect(ctx context.Context, userID int64) error {
	c.box.set(StateConnecting)
	if err := ctx.Err(); err != nil {
		c.box.set(StateError)
		return err
	}
	if c.hub.offline.Load() {
		c.box.set(StateError)
		return ErrUnavailable
	}
	c.box.set(StateConnected)
	return nil
}

func (c *HubChannel) Subscribe(userID int64, fn Handler) (func(), error) {
	if c.box.get() != StateConnected {
		return nil, ErrNotConnected
	}
	release := c.hub.subscribe(userID, fn)
	c.mu.Lock()
	id := c.next
	c.next++
	c.unsubs[id] = release
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.unsubs, id)
			c.mu.Unlock()
			release()
		})
	}, nil
}

func (c *HubChannel) Disconnect() error {
	c.mu.Lock()
	fns := c.unsubs
	c.unsubs = map[int]func(){}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	c.box.set(StateDisconnected)
	return nil
}

// Drop simulates a lost connection without releasing hub state held elsewhere.
func (c *HubChannel) Drop() {
	c.mu.Lock()
	fns := c.unsubs
	c.unsubs = map[int]func(){}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	c.box.set(StateError)
}

func (c *HubChannel) State() ConnState { return c.box.get() }

func (c *HubChannel) Watch(fn func(ConnState)) func() { return c.box.watch(fn) }
