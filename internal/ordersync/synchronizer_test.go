package ordersync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/push"
)

type fakeFetcher struct {
	mu     sync.Mutex
	status domain.OrderStatus
	err    error
	calls  atomic.Int32
}

func (f *fakeFetcher) set(s domain.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeFetcher) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Order{ID: id, Status: f.status}, nil
}

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()                  { t.stopped.Store(true) }

type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (f *tickers) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.all = append(f.all, t)
	return t
}

func (f *tickers) active() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.all) - 1; i >= 0; i-- {
		if !f.all[i].stopped.Load() {
			return f.all[i]
		}
	}
	return nil
}

func (f *tickers) snapshot() []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTicker(nil), f.all...)
}

func (f *tickers) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.all)
}

type notices struct {
	mu  sync.Mutex
	got []Change
}

func (n *notices) Notify(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, c)
}

func (n *notices) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

func newSync(t *testing.T, f OrderFetcher, ch push.Channel) (*Synchronizer, *tickers, *notices) {
	t.Helper()
	tk := &tickers{}
	n := &notices{}
	s := New(7, 1, f, ch, n, nil)
	s.NewTicker = tk.New
	t.Cleanup(s.Close)
	return s, tk, n
}

func tick(t *testing.T, tk *tickers) {
	t.Helper()
	var cur *fakeTicker
	require.Eventually(t, func() bool {
		cur = tk.active()
		return cur != nil
	}, time.Second, time.Millisecond)
	cur.c <- time.Now()
}

func TestApply_MonotonicSequence(t *testing.T) {
	f := &fakeFetcher{status: domain.OrderPending}
	s, _, n := newSync(t, f, nil)
	require.NoError(t, s.Start(context.Background()))

	s.Apply(Update{Source: SourcePush, OrderID: 7, Status: domain.OrderPending})
	s.Apply(Update{Source: SourcePush, OrderID: 7, Status: domain.OrderPaid})
	s.Apply(Update{Source: SourcePoll, OrderID: 7, Status: domain.OrderPending})

	assert.Equal(t, domain.OrderPaid, s.Status())
	require.Equal(t, 1, n.count())
	assert.Equal(t, domain.OrderPaid, n.got[0].To)
	assert.Contains(t, n.got[0].Notice.Detail, "Paid")
}

func TestApply_IgnoresOtherOrders(t *testing.T) {
	f := &fakeFetcher{status: domain.OrderPending}
	s, _, n := newSync(t, f, nil)
	require.NoError(t, s.Start(context.Background()))

	assert.False(t, s.Apply(Update{Source: SourcePush, OrderID: 8, Status: domain.OrderPaid}))
	assert.Equal(t, domain.OrderPending, s.Status())
	assert.Zero(t, n.count())
}

func TestPush_AppliesMatchingMessages(t *testing.T) {
	hub := push.NewHub(nil)
	ch := push.NewHubChannel(hub)
	f := &fakeFetcher{status: domain.OrderPending}
	s, _, n := newSync(t, f, ch)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return hub.Subscribers(1) == 1 }, time.Second, time.Millisecond)

	_ = hub.Publish(context.Background(), domain.StatusMessage{UserID: 1, OrderID: 99, NewStatus: domain.OrderPaid})
	_ = hub.Publish(context.Background(), domain.StatusMessage{UserID: 1, OrderID: 7, NewStatus: domain.OrderConfirmed, StatusLabel: "Merchant accepted"})

	assert.Equal(t, domain.OrderConfirmed, s.Status())
	require.Equal(t, 1, n.count())
	assert.Equal(t, "Your order is now: Merchant accepted", n.got[0].Notice.Detail)

	s.Close()
	assert.Zero(t, hub.Subscribers(1))
}

func TestPoll_SuppressedWhileConnected(t *testing.T) {
	hub := push.NewHub(nil)
	ch := push.NewHubChannel(hub)
	f := &fakeFetcher{status: domain.OrderPending}
	s, tk, _ := newSync(t, f, ch)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.ConnState() == push.StateConnected }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return tk.active() == nil }, time.Second, time.Millisecond)

	for _, tc := range tk.snapshot() {
		select {
		case tc.c <- time.Now():
		default:
		}
	}
	// initial load plus the resync after subscribing
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), f.calls.Load())

	// losing the connection hands over to polling
	f.set(domain.OrderPaid)
	ch.Drop()
	tick(t, tk)
	require.Eventually(t, func() bool { return s.Status() == domain.OrderPaid }, time.Second, time.Millisecond)
}

// publishingFetcher answers the first load with PENDING and then publishes
// PAID before any subscription exists.
type publishingFetcher struct {
	fakeFetcher
	hub  *push.Hub
	once sync.Once
}

func (f *publishingFetcher) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := f.fakeFetcher.GetOrder(ctx, id)
	f.once.Do(func() {
		f.set(domain.OrderPaid)
		_ = f.hub.Publish(ctx, domain.StatusMessage{UserID: 1, OrderID: id, NewStatus: domain.OrderPaid})
	})
	return o, err
}

func TestPush_ResyncsAfterSubscribing(t *testing.T) {
	hub := push.NewHub(nil)
	ch := push.NewHubChannel(hub)
	f := &publishingFetcher{fakeFetcher: fakeFetcher{status: domain.OrderPending}, hub: hub}
	s, _, n := newSync(t, f, ch)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.Status() == domain.OrderPaid }, time.Second, time.Millisecond)
	assert.Equal(t, push.StateConnected, s.ConnState())
	assert.Equal(t, int32(2), f.calls.Load())
	require.Equal(t, 1, n.count())
	assert.Equal(t, SourceResync, n.got[0].Source)
}

func TestPoll_FallbackWhenPushUnavailable(t *testing.T) {
	hub := push.NewHub(nil)
	hub.SetOffline(true)
	ch := push.NewHubChannel(hub)
	f := &fakeFetcher{status: domain.OrderPending}
	s, tk, n := newSync(t, f, ch)
	require.NoError(t, s.Start(context.Background()))

	f.set(domain.OrderPaid)
	tick(t, tk)
	require.Eventually(t, func() bool { return s.Status() == domain.OrderPaid }, time.Second, time.Millisecond)
	assert.Equal(t, 1, n.count())
}

func TestPoll_VisibilityPause(t *testing.T) {
	f := &fakeFetcher{status: domain.OrderPending}
	s, tk, _ := newSync(t, f, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return tk.active() != nil }, time.Second, time.Millisecond)
	first := tk.active()

	s.SetVisible(false)
	require.Eventually(t, func() bool { return first.stopped.Load() }, time.Second, time.Millisecond)
	first.c <- time.Now()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())

	s.SetVisible(true)
	require.Eventually(t, func() bool { return tk.created() == 2 }, time.Second, time.Millisecond)
	tick(t, tk)
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond)
}

func TestPoll_StopsAtTerminalStatus(t *testing.T) {
	f := &fakeFetcher{status: domain.OrderDelivering}
	s, tk, _ := newSync(t, f, nil)
	require.NoError(t, s.Start(context.Background()))

	f.set(domain.OrderCompleted)
	tick(t, tk)
	require.Eventually(t, func() bool { return s.Status() == domain.OrderCompleted }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return tk.active() == nil }, time.Second, time.Millisecond)
}

func TestPoll_ErrorsAreRetried(t *testing.T) {
	f := &fakeFetcher{status: domain.OrderPending}
	s, tk, _ := newSync(t, f, nil)
	require.NoError(t, s.Start(context.Background()))

	f.mu.Lock()
	f.err = errors.New("network down")
	f.mu.Unlock()
	tick(t, tk)
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.OrderPending, s.Status())

	f.mu.Lock()
	f.err = nil
	f.status = domain.OrderPaid
	f.mu.Unlock()
	tick(t, tk)
	require.Eventually(t, func() bool { return s.Status() == domain.OrderPaid }, time.Second, time.Millisecond)
}

func TestStart_LoadFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("not found")}
	s, tk, _ := newSync(t, f, nil)
	require.Error(t, s.Start(context.Background()))
	assert.Zero(t, tk.created())
}

func TestClose_ReleasesEverything(t *testing.T) {
	hub := push.NewHub(nil)
	ch := push.NewHubChannel(hub)
	f := &fakeFetcher{status: domain.OrderPending}
	s, tk, _ := newSync(t, f, ch)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return hub.Subscribers(1) == 1 }, time.Second, time.Millisecond)

	ch.Drop()
	require.Eventually(t, func() bool { return tk.active() != nil }, time.Second, time.Millisecond)

	s.Close()
	assert.Nil(t, tk.active())
	assert.Zero(t, hub.Subscribers(1))
	s.Close()
}
