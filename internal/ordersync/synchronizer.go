package ordersync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/push"
)

const DefaultPollInterval = 15 * time.Second

type Source string

const (
	SourceInitial Source = "initial"
	SourcePush    Source = "push"
	SourcePoll    Source = "poll"
	// SourceResync is the fetch made once a subscription is live, covering
	// anything published while none was.
	SourceResync Source = "resync"
)

type Update struct {
	Source  Source
	OrderID int64
	Status  domain.OrderStatus
	Label   string
}

type Change struct {
	OrderID int64              `json:"orderId"`
	From    domain.OrderStatus `json:"from"`
	To      domain.OrderStatus `json:"to"`
	Source  Source             `json:"source"`
	Notice  domain.Notice      `json:"notice"`
}

// Notifier receives accepted changes. It is called with the synchronizer
// locked and must not call back into it.
type Notifier interface {
	Notify(Change)
}

type NotifierFunc func(Change)

func (f NotifierFunc) Notify(c Change) { f(c) }

type OrderFetcher interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
}

type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) Chan() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()                  { s.t.Stop() }

func NewStdTicker(d time.Duration) Ticker { return stdTicker{t: time.NewTicker(d)} }

// Synchronizer keeps one displayed order's status converged from push and poll.
type Synchronizer struct {
	OrderID        int64
	UserID         int64
	Orders         OrderFetcher
	Channel        push.Channel
	Notifier       Notifier
	Interval       time.Duration
	ReconnectDelay time.Duration
	NewTicker      func(time.Duration) Ticker
	Logger         *zap.Logger

	mu      sync.Mutex
	status  domain.OrderStatus
	visible bool
	conn    push.ConnState
	unsub   func()
	unwatch func()
	started bool
	closed  bool

	wake      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(orderID, userID int64, orders OrderFetcher, ch push.Channel, n Notifier, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		OrderID:   orderID,
		UserID:    userID,
		Orders:    orders,
		Channel:   ch,
		Notifier:  n,
		Interval:  DefaultPollInterval,
		NewTicker: NewStdTicker,
		Logger:    logger.With(zap.Int64("orderId", orderID)),
		visible:   true,
		conn:      push.StateDisconnected,
		wake:      make(chan struct{}, 1),
	}
}

var ErrStarted = errors.New("synchronizer already started")

// Start loads the order, then attaches push and the poll fallback.
// A failed initial load is returned and nothing is left running.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	o, err := s.Orders.GetOrder(s.ctx, s.OrderID)
	if err != nil {
		s.cancel()
		return err
	}
	s.Apply(Update{Source: SourceInitial, OrderID: o.ID, Status: o.Status})

	if s.Channel != nil {
		unwatch := s.Channel.Watch(s.onConnState)
		s.mu.Lock()
		s.unwatch = unwatch
		s.mu.Unlock()
		s.wg.Add(1)
		go s.connect()
	}
	s.wg.Add(1)
	go s.loop()
	return nil
}

func (s *Synchronizer) Status() domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Synchronizer) ConnState() push.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Apply is the single entry point for every source. It reports whether the
// update was accepted.
func (s *Synchronizer) Apply(u Update) bool {
	s.mu.Lock()
	if u.OrderID != s.OrderID || !domain.Advances(s.status, u.Status) {
		s.mu.Unlock()
		return false
	}
	from := s.status
	s.status = u.Status
	if u.Source != SourceInitial && s.Notifier != nil {
		label := u.Label
		if label == "" {
			label = u.Status.Label()
		}
		s.Notifier.Notify(Change{
			OrderID: s.OrderID,
			From:    from,
			To:      u.Status,
			Source:  u.Source,
			Notice:  domain.Notice{Title: "Order status updated", Detail: "Your order is now: " + label},
		})
	}
	s.mu.Unlock()
	s.Logger.Debug("order status applied", zap.String("source", string(u.Source)), zap.String("from", string(from)), zap.String("to", string(u.Status)))
	s.kick()
	return true
}

// SetVisible pauses or resumes polling; the push subscription is untouched.
func (s *Synchronizer) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
	s.kick()
}

func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsub, unwatch := s.unsub, s.unwatch
		s.unsub, s.unwatch = nil, nil
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if unwatch != nil {
			unwatch()
		}
		if unsub != nil {
			unsub()
		}
		s.wg.Wait()
	})
}

func (s *Synchronizer) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) shouldPoll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.status != "" && !s.status.Terminal() && s.visible && s.conn != push.StateConnected
}

func (s *Synchronizer) connect() {
	defer s.wg.Done()
	for {
		err := s.Channel.Connect(s.ctx, s.UserID)
		if err == nil || s.ctx.Err() != nil {
			return
		}
		s.Logger.Info("push connect failed, polling instead", zap.Error(err))
		if s.ReconnectDelay <= 0 {
			return
		}
		t := time.NewTimer(s.ReconnectDelay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Synchronizer) onConnState(st push.ConnState) {
	s.mu.Lock()
	s.conn = st
	var stale func()
	if st != push.StateConnected {
		stale, s.unsub = s.unsub, nil
	}
	needSub := st == push.StateConnected && s.unsub == nil && !s.closed
	s.mu.Unlock()

	if stale != nil {
		stale()
	}
	if needSub {
		unsub, err := s.Channel.Subscribe(s.UserID, s.onPush)
		if err != nil {
			s.Logger.Info("push subscribe failed", zap.Error(err))
		} else {
			s.mu.Lock()
			if s.closed || s.unsub != nil {
				s.mu.Unlock()
				unsub()
			} else {
				s.unsub = unsub
				s.wg.Add(1)
				s.mu.Unlock()
				go s.resync()
			}
		}
	}
	s.kick()
}

func (s *Synchronizer) resync() {
	defer s.wg.Done()
	o, err := s.Orders.GetOrder(s.ctx, s.OrderID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.Logger.Warn("order resync failed", zap.Error(err))
		}
		return
	}
	s.Apply(Update{Source: SourceResync, OrderID: o.ID, Status: o.Status})
}

func (s *Synchronizer) onPush(m domain.StatusMessage) {
	if m.OrderID != s.OrderID {
		return
	}
	s.Apply(Update{Source: SourcePush, OrderID: m.OrderID, Status: m.NewStatus, Label: m.StatusLabel})
}

func (s *Synchronizer) loop() {
	defer s.wg.Done()
	var t Ticker
	var tc <-chan time.Time
	stop := func() {
		if t != nil {
			t.Stop()
			t, tc = nil, nil
		}
	}
	defer stop()
	for {
		want := s.shouldPoll()
		if want && t == nil {
			t = s.NewTicker(s.Interval)
			tc = t.Chan()
		} else if !want {
			stop()
		}
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-tc:
			s.poll()
		}
	}
}

func (s *Synchronizer) poll() {
	if !s.shouldPoll() {
		return
	}
	o, err := s.Orders.GetOrder(s.ctx, s.OrderID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.Logger.Warn("order poll failed", zap.Error(err))
		}
		return
	}
	s.Apply(Update{Source: SourcePoll, OrderID: o.ID, Status: o.Status})
}
