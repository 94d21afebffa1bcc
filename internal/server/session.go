package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"takeaway-storefront/internal/account"
	"takeaway-storefront/internal/cart"
	"takeaway-storefront/internal/checkout"
	"takeaway-storefront/internal/config"
	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/ordersync"
	"takeaway-storefront/internal/payment"
)

// Backend is everything the storefront asks of the order service for one user.
type Backend interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, page, pageSize int) ([]domain.Order, int, error)
	CancelOrder(ctx context.Context, id int64) (*domain.Order, error)
	ConfirmReceipt(ctx context.Context, id int64) (*domain.Order, error)
	PayOrder(ctx context.Context, id int64, method string) (*domain.Order, error)
	CreatePaymentSession(ctx context.Context, id int64, method string) (*domain.PaymentSession, error)
	QueryPaymentStatus(ctx context.Context, method, orderNo string) (*domain.PaymentStatus, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// BackendFactory returns the backend acting for userID.
type BackendFactory func(userID int64) Backend

// handoff collects what a checkout wants the browser to do next. Callers
// hold Session.submitting while it is in use.
type handoff struct {
	mu       sync.Mutex
	sessions []domain.PaymentSession
	orders   []domain.Order
}

func (h *handoff) Redirect(ctx context.Context, ps domain.PaymentSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append(h.sessions, ps)
	return nil
}

func (h *handoff) ShowOrders(ctx context.Context, orders []domain.Order) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.orders = append([]domain.Order(nil), orders...)
}

func (h *handoff) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = nil
	h.orders = nil
}

func (h *handoff) take() ([]domain.PaymentSession, []domain.Order) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, o := h.sessions, h.orders
	h.sessions, h.orders = nil, nil
	return s, o
}

type loadingFlag struct{ v atomic.Bool }

func (l *loadingFlag) SetLoading(v bool) { l.v.Store(v) }

// Session is one shopper's storefront state: cart, books, wallet and the
// order views currently streaming.
type Session struct {
	UserID   int64
	Backend  Backend
	Cart     *cart.Cart
	Delivery *checkout.DeliveryBook
	Policies *checkout.PolicyBook
	Wallet   *account.Wallet
	Payments *payment.Dispatcher
	Poller   *payment.StatusPoller
	Checkout *checkout.Orchestrator

	handoff    *handoff
	loading    *loadingFlag
	submitting sync.Mutex

	mu      sync.Mutex
	profile domain.Profile
	views   map[string]*ordersync.Synchronizer
}

func newSession(userID int64, be Backend, cfg config.Config, logger *zap.Logger) *Session {
	log := logger.With(zap.Int64("userId", userID))
	s := &Session{
		UserID:   userID,
		Backend:  be,
		Cart:     cart.New(),
		Delivery: checkout.NewDeliveryBook(),
		Policies: checkout.NewPolicyBook(),
		Wallet:   account.NewWallet(be),
		handoff:  &handoff{},
		loading:  &loadingFlag{},
		profile:  domain.Profile{UserID: userID},
		views:    make(map[string]*ordersync.Synchronizer),
	}
	s.Payments = payment.NewDispatcher(log,
		&payment.BalanceProvider{Payer: be, Wallet: s.Wallet, PreCheck: cfg.BalancePreCheck},
		payment.NewWechatProvider(be, cfg.WechatDelay),
		payment.NewAlipayProvider(be, s.handoff),
	)
	s.Poller = payment.NewStatusPoller(be, log)
	if cfg.StatusAttempts > 0 {
		s.Poller.Attempts = cfg.StatusAttempts
	}
	if cfg.StatusInterval > 0 {
		s.Poller.Interval = cfg.StatusInterval
	}
	s.Checkout = &checkout.Orchestrator{
		Cart:       s.Cart,
		Delivery:   s.Delivery,
		Policies:   s.Policies,
		Wallet:     s.Wallet,
		Orders:     be,
		Payments:   s.Payments,
		Navigator:  s.handoff,
		Loading:    s.loading,
		Allocation: checkout.Allocation(cfg.Allocation),
		Logger:     log,
	}
	return s
}

func (s *Session) Profile() domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Session) SetProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UserID = s.UserID
	s.profile = p
}

// Loading reports whether a checkout is being submitted.
func (s *Session) Loading() bool { return s.loading.v.Load() }

func (s *Session) attachView(id string, sy *ordersync.Synchronizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[id] = sy
}

func (s *Session) detachView(id string, sy *ordersync.Synchronizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[id] == sy {
		delete(s.views, id)
	}
}

func (s *Session) view(id string) (*ordersync.Synchronizer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sy, ok := s.views[id]
	return sy, ok
}
