package payment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"takeaway-storefront/internal/account"
	"takeaway-storefront/internal/domain"
)

// BalanceProvider debits the user's stored balance through the order backend.
type BalanceProvider struct {
	Payer  OrderPayer
	Wallet *account.Wallet
	// PreCheck rejects early when the cached balance is already short.
	PreCheck bool
}

func (p *BalanceProvider) Method() string { return MethodBalance }

func (p *BalanceProvider) Pay(ctx context.Context, req Request) Result {
	if p.PreCheck && p.Wallet != nil {
		if b, known := p.Wallet.Balance(); known && b.LessThan(req.Amount) {
			return failure("insufficient balance")
		}
	}
	o, err := p.Payer.PayOrder(ctx, req.OrderID, MethodBalance)
	if err != nil {
		return failure(errMessage(err, "balance payment failed"))
	}
	if o == nil || o.Status != domain.OrderPaid {
		return failure("payment was not confirmed")
	}
	res := Result{Success: true, TransactionID: o.OrderNo, Message: "paid"}
	if p.Wallet != nil {
		if b, err := p.Wallet.Refresh(ctx); err == nil {
			res.RemainingBalance = &b
		}
	}
	return res
}

// ImmediateProvider simulates a branded provider that settles in place.
type ImmediateProvider struct {
	Payer  OrderPayer
	Name   string
	Prefix string
	Delay  time.Duration
}

func NewWechatProvider(payer OrderPayer, delay time.Duration) *ImmediateProvider {
	return &ImmediateProvider{Payer: payer, Name: MethodWechat, Prefix: "WX", Delay: delay}
}

func (p *ImmediateProvider) Method() string { return p.Name }

func (p *ImmediateProvider) Pay(ctx context.Context, req Request) Result {
	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return failure("payment cancelled")
		case <-t.C:
		}
	}
	o, err := p.Payer.PayOrder(ctx, req.OrderID, p.Name)
	if err != nil {
		return failure(errMessage(err, "payment failed"))
	}
	if o == nil || o.Status != domain.OrderPaid {
		return failure("payment was not confirmed")
	}
	txn := p.Prefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return Result{Success: true, TransactionID: txn, Message: "paid"}
}

// RedirectProvider only starts the hand-off; completion arrives out of band.
type RedirectProvider struct {
	Sessions  SessionCreator
	Navigator Navigator
	Name      string
}

func NewAlipayProvider(sessions SessionCreator, nav Navigator) *RedirectProvider {
	return &RedirectProvider{Sessions: sessions, Navigator: nav, Name: MethodAlipay}
}

func (p *RedirectProvider) Method() string { return p.Name }

func (p *RedirectProvider) Pay(ctx context.Context, req Request) Result {
	s, err := p.Sessions.CreatePaymentSession(ctx, req.OrderID, p.Name)
	if err != nil {
		return failure(errMessage(err, "could not start payment"))
	}
	if s == nil || (s.PayForm == "" && s.CodeURL == "") {
		return failure("payment provider returned no session")
	}
	if p.Navigator != nil {
		if err := p.Navigator.Redirect(ctx, *s); err != nil {
			return failure(errMessage(err, "could not open payment page"))
		}
	}
	return Result{Success: true, Pending: true, TransactionID: s.OrderNo, Message: "redirecting to payment provider", Session: s}
}
