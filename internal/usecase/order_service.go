package usecase

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"takeaway-storefront/internal/domain"
)

type OrderRepo interface {
	NextID() (int64, error)
	Put(*domain.Order) error
	Get(id int64) (*domain.Order, bool)
	GetByNo(orderNo string) (*domain.Order, bool)
	ListByUser(userID int64, page, pageSize int) ([]domain.Order, int)
}

type WalletRepo interface {
	GetBalance(userID int64) (decimal.Decimal, bool)
	PutBalance(userID int64, amount decimal.Decimal) error
}

type Catalog interface {
	Merchant(id int64) (*domain.Merchant, bool)
}

type StatusPublisher interface {
	Publish(ctx context.Context, msg domain.StatusMessage) error
}

const StatusChangedType = "ORDER_STATUS_CHANGED"

// OrderService is the reference order backend: order lifecycle, simulated
// payment channels and stored balances. Every status change is published.
type OrderService struct {
	Repo      OrderRepo
	Wallets   WalletRepo
	Catalog   Catalog
	Publisher StatusPublisher
	Logger    *zap.Logger
	ReturnURL string
	Now       func() time.Time

	mu sync.Mutex
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func newOrderNo(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:4]
	return "ORD" + strconv.FormatInt(t.UnixMilli(), 10) + suffix
}

func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrBadRequest("order has no items")
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Phone) == "" {
		return nil, ErrBadRequest("delivery address and phone are required")
	}
	m, ok := s.Catalog.Merchant(req.RestaurantID)
	if !ok {
		return nil, ErrNotFound("restaurant")
	}
	total := decimal.Zero
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, ErrBadRequest("quantity must be positive")
		}
		mi, ok := m.Item(it.MenuItemID)
		if !ok || !mi.Available {
			return nil, ErrBadRequest(fmt.Sprintf("%s is no longer available", itemName(mi, it.MenuItemID)))
		}
		items = append(items, domain.OrderItem{MenuItemID: mi.ID, MenuItemName: mi.Name, Price: mi.Price, Quantity: it.Quantity})
		total = total.Add(mi.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.Repo.NextID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	o := &domain.Order{
		ID:             id,
		OrderNo:        newOrderNo(now),
		UserID:         req.UserID,
		RestaurantID:   m.ID,
		RestaurantName: m.Name,
		Items:          items,
		TotalAmount:    total,
		DeliveryFee:    m.DeliveryFee,
		DiscountAmount: decimal.Zero,
		Status:         domain.OrderPending,
		Address:        req.Address,
		Phone:          req.Phone,
		Remark:         req.Remark,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.PayAmount = o.TotalAmount.Add(o.DeliveryFee).Sub(o.DiscountAmount)
	if err := s.Repo.Put(o); err != nil {
		return nil, err
	}
	s.log().Info("order created", zap.Int64("orderId", o.ID), zap.String("orderNo", o.OrderNo), zap.Int64("userId", o.UserID), zap.String("payAmount", o.PayAmount.StringFixed(2)))
	cp := *o
	return &cp, nil
}

func itemName(mi domain.MenuItem, id int64) string {
	if mi.Name != "" {
		return mi.Name
	}
	return "menu item " + strconv.FormatInt(id, 10)
}

func (s *OrderService) owned(userID, id int64) (*domain.Order, error) {
	o, ok := s.Repo.Get(id)
	if !ok || o.UserID != userID {
		return nil, ErrNotFound("order")
	}
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, userID, id int64) (*domain.Order, error) {
	o, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID int64, page, pageSize int) ([]domain.Order, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.Repo.ListByUser(userID, page, pageSize)
}

func (s *OrderService) CancelOrder(ctx context.Context, userID, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(o.Status, domain.OrderCancelled) {
		return nil, ErrConflict("only unpaid orders can be cancelled")
	}
	return s.transition(ctx, o, domain.OrderCancelled, "Your order has been cancelled")
}

func (s *OrderService) ConfirmReceipt(ctx context.Context, userID, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(o.Status, domain.OrderCompleted) {
		return nil, ErrConflict("order is not out for delivery")
	}
	now := s.now()
	o.DeliveryTime = &now
	return s.transition(ctx, o, domain.OrderCompleted, "Enjoy your meal")
}

// PayOrder settles in place: the balance debit and PENDING to PAID happen
// together or not at all.
func (s *OrderService) PayOrder(ctx context.Context, userID, id int64, method string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderPending {
		if o.Status == domain.OrderCancelled {
			return nil, ErrConflict("order has been cancelled")
		}
		return nil, ErrConflict("order already paid")
	}
	var refund func()
	switch method {
	case "balance":
		bal, _ := s.Wallets.GetBalance(userID)
		if bal.LessThan(o.PayAmount) {
			return nil, ErrBadRequest("insufficient balance")
		}
		if err := s.Wallets.PutBalance(userID, bal.Sub(o.PayAmount)); err != nil {
			return nil, err
		}
		refund = func() {
			if err := s.Wallets.PutBalance(userID, bal); err != nil {
				s.log().Error("restore balance failed", zap.Int64("userId", userID), zap.Int64("orderId", o.ID), zap.String("balance", bal.String()), zap.Error(err))
			}
		}
	case "wechat", "alipay":
	default:
		return nil, ErrBadRequest("unsupported payment method")
	}
	paid, err := s.markPaid(ctx, o, method)
	if err != nil {
		if refund != nil {
			refund()
		}
		return nil, err
	}
	return paid, nil
}

func (s *OrderService) markPaid(ctx context.Context, o *domain.Order, method string) (*domain.Order, error) {
	now := s.now()
	o.PaymentMethod = method
	o.PaidAt = &now
	return s.transition(ctx, o, domain.OrderPaid, "Payment received")
}

func (s *OrderService) CreatePaymentSession(ctx context.Context, userID, id int64, method string) (*domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderPending {
		return nil, ErrConflict("order is not awaiting payment")
	}
	ps := &domain.PaymentSession{OrderID: o.ID, OrderNo: o.OrderNo, Method: method, ReturnURL: s.ReturnURL}
	switch method {
	case "alipay":
		ps.PayForm = fmt.Sprintf(
			`<form id="alipaysubmit" name="alipaysubmit" action="%s" method="POST"><input type="hidden" name="out_trade_no" value="%s"/><input type="hidden" name="total_amount" value="%s"/><input type="submit" value="ok" style="display:none;"/></form><script>document.forms['alipaysubmit'].submit();</script>`,
			html.EscapeString(s.ReturnURL), html.EscapeString(o.OrderNo), o.PayAmount.StringFixed(2))
	case "wechat":
		ps.CodeURL = "weixin://wxpay/bizpayurl?pr=" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	default:
		return nil, ErrBadRequest("unsupported payment method")
	}
	o.PaymentMethod = method
	o.UpdatedAt = s.now()
	if err := s.Repo.Put(o); err != nil {
		return nil, err
	}
	return ps, nil
}

// QueryPaymentStatus answers in provider trade-status vocabulary.
func (s *OrderService) QueryPaymentStatus(ctx context.Context, userID int64, method, orderNo string) (*domain.PaymentStatus, error) {
	o, ok := s.Repo.GetByNo(orderNo)
	if !ok || o.UserID != userID {
		return nil, ErrNotFound("order")
	}
	st := &domain.PaymentStatus{OrderNo: o.OrderNo}
	switch {
	case o.Status == domain.OrderCancelled:
		st.Status = "TRADE_CLOSED"
	case o.Status == domain.OrderPending:
		st.Status = "WAIT_BUYER_PAY"
	default:
		st.Status = "TRADE_SUCCESS"
		st.Paid = true
	}
	return st, nil
}

// CompletePayment is the provider's asynchronous notification.
func (s *OrderService) CompletePayment(ctx context.Context, orderNo, method string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Repo.GetByNo(orderNo)
	if !ok {
		return nil, ErrNotFound("order")
	}
	if o.Status == domain.OrderPaid {
		cp := *o
		return &cp, nil
	}
	if o.Status != domain.OrderPending {
		return nil, ErrConflict("order is not awaiting payment")
	}
	return s.markPaid(ctx, o, method)
}

// Advance applies a merchant-side transition.
func (s *OrderService) Advance(ctx context.Context, id int64, to domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Repo.Get(id)
	if !ok {
		return nil, ErrNotFound("order")
	}
	if !domain.CanTransition(o.Status, to) {
		return nil, ErrConflict(fmt.Sprintf("cannot move order from %s to %s", o.Status, to))
	}
	if to == domain.OrderCompleted {
		now := s.now()
		o.DeliveryTime = &now
	}
	return s.transition(ctx, o, to, "")
}

func (s *OrderService) transition(ctx context.Context, o *domain.Order, to domain.OrderStatus, note string) (*domain.Order, error) {
	old := o.Status
	o.Status = to
	o.UpdatedAt = s.now()
	if err := s.Repo.Put(o); err != nil {
		o.Status = old
		return nil, err
	}
	s.log().Info("order status changed", zap.Int64("orderId", o.ID), zap.String("from", string(old)), zap.String("to", string(to)))
	if s.Publisher != nil {
		msg := domain.StatusMessage{
			Type:           StatusChangedType,
			OrderID:        o.ID,
			OrderNo:        o.OrderNo,
			UserID:         o.UserID,
			RestaurantID:   o.RestaurantID,
			RestaurantName: o.RestaurantName,
			OldStatus:      old,
			NewStatus:      to,
			StatusLabel:    to.Label(),
			PayAmount:      o.PayAmount,
			UpdatedAt:      o.UpdatedAt,
			Message:        note,
		}
		if err := s.Publisher.Publish(ctx, msg); err != nil {
			s.log().Warn("publish status failed", zap.Int64("orderId", o.ID), zap.Error(err))
		}
	}
	cp := *o
	return &cp, nil
}

func (s *OrderService) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	b, _ := s.Wallets.GetBalance(userID)
	return b, nil
}

func (s *OrderService) Recharge(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrBadRequest("recharge amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, _ := s.Wallets.GetBalance(userID)
	b = b.Add(amount)
	if err := s.Wallets.PutBalance(userID, b); err != nil {
		return decimal.Zero, err
	}
	return b, nil
}
