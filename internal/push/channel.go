package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"takeaway-storefront/internal/domain"
)

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

var (
	ErrNotConnected = errors.New("push channel not connected")
	ErrUnavailable  = errors.New("push broker unavailable")
)

type Handler func(domain.StatusMessage)

// Channel is a per-view client of the order status feed.
type Channel interface {
	Connect(ctx context.Context, userID int64) error
	Subscribe(userID int64, h Handler) (unsubscribe func(), err error)
	Disconnect() error
	State() ConnState
	// Watch calls fn with the current state and then on every change.
	Watch(fn func(ConnState)) (unwatch func())
}

type Publisher interface {
	Publish(ctx context.Context, msg domain.StatusMessage) error
}

// Topic is the per-user feed name shared by every transport.
func Topic(userID int64) string {
	return fmt.Sprintf("topic:user:%d:orders", userID)
}

type stateBox struct {
	mu       sync.Mutex
	state    ConnState
	watchers map[int]func(ConnState)
	next     int
}

func newStateBox() *stateBox {
	return &stateBox{state: StateDisconnected, watchers: map[int]func(ConnState){}}
}

func (b *stateBox) get() ConnState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *stateBox) set(s ConnState) {
	b.mu.Lock()
	if b.state == s {
		b.mu.Unlock()
		return
	}
	b.state = s
	fns := make([]func(ConnState), 0, len(b.watchers))
	for _, fn := range b.watchers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (b *stateBox) watch(fn func(ConnState)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.watchers[id] = fn
	cur := b.state
	b.mu.Unlock()
	fn(cur)
	return func() {
		b.mu.Lock()
		delete(b.watchers, id)
		b.mu.Unlock()
	}
}
