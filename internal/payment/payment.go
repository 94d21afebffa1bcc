package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"takeaway-storefront/internal/domain"
)

const (
	MethodBalance = "balance"
	MethodWechat  = "wechat"
	MethodAlipay  = "alipay"
)

type Request struct {
	OrderID int64           `json:"orderId"`
	OrderNo string          `json:"orderNo,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
}

// Result is consumed once by the caller and never stored.
type Result struct {
	Success          bool                   `json:"success"`
	TransactionID    string                 `json:"transactionId,omitempty"`
	Message          string                 `json:"message,omitempty"`
	RemainingBalance *decimal.Decimal       `json:"remainingBalance,omitempty"`
	Pending          bool                   `json:"pending,omitempty"`
	Session          *domain.PaymentSession `json:"session,omitempty"`
}

func failure(msg string) Result {
	return Result{Success: false, Message: msg}
}

type Provider interface {
	Method() string
	Pay(ctx context.Context, req Request) Result
}

type OrderPayer interface {
	PayOrder(ctx context.Context, orderID int64, method string) (*domain.Order, error)
}

type SessionCreator interface {
	CreatePaymentSession(ctx context.Context, orderID int64, method string) (*domain.PaymentSession, error)
}

type StatusQuerier interface {
	QueryPaymentStatus(ctx context.Context, method, orderNo string) (*domain.PaymentStatus, error)
}

// Navigator hands a provider session to whatever drives the browser.
type Navigator interface {
	Redirect(ctx context.Context, session domain.PaymentSession) error
}

// Dispatcher routes a request to the provider registered for its method.
// Pay never returns an error; every failure is a Result with Success false.
type Dispatcher struct {
	Logger *zap.Logger

	mu        sync.RWMutex
	providers map[string]Provider
}

func NewDispatcher(logger *zap.Logger, providers ...Provider) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{Logger: logger, providers: map[string]Provider{}}
	for _, p := range providers {
		d.Register(p)
	}
	return d
}

func (d *Dispatcher) Register(p Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.Method()] = p
}

func (d *Dispatcher) Supports(method string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.providers[method]
	return ok
}

func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.providers))
	for m := range d.providers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) Pay(ctx context.Context, req Request) (res Result) {
	d.mu.RLock()
	p, ok := d.providers[req.Method]
	d.mu.RUnlock()
	if !ok {
		return failure(fmt.Sprintf("unsupported payment method %q", req.Method))
	}
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("payment provider panic", zap.String("method", req.Method), zap.Int64("orderId", req.OrderID), zap.Any("panic", r))
			res = failure("payment failed, please try again")
		}
	}()
	res = p.Pay(ctx, req)
	if !res.Success && res.Message == "" {
		res.Message = "payment failed, please try again"
	}
	d.Logger.Info("payment dispatched",
		zap.String("method", req.Method),
		zap.Int64("orderId", req.OrderID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Bool("success", res.Success),
		zap.Bool("pending", res.Pending),
	)
	return res
}

func errMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
