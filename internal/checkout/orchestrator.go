package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"takeaway-storefront/internal/account"
	"takeaway-storefront/internal/cart"
	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/payment"
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error)
}

type Payer interface {
	Pay(ctx context.Context, req payment.Request) payment.Result
}

type Navigator interface {
	ShowOrders(ctx context.Context, orders []domain.Order)
}

type LoadingIndicator interface {
	SetLoading(bool)
}

type Allocation string

const (
	// AllocateEven splits the grand total equally across created orders.
	AllocateEven Allocation = "even"
	// AllocateProportional charges each order its merchant subtotal plus fee.
	AllocateProportional Allocation = "proportional"
)

type Result struct {
	Orders     []domain.Order   `json:"orders"`
	Payments   []payment.Result `json:"payments"`
	GrandTotal decimal.Decimal  `json:"grandTotal"`
	// Pending is set when any payment only started a provider hand-off.
	Pending bool `json:"pending"`
}

type Orchestrator struct {
	Cart       *cart.Cart
	Delivery   *DeliveryBook
	Policies   *PolicyBook
	Wallet     *account.Wallet
	Orders     OrderCreator
	Payments   Payer
	Navigator  Navigator
	Loading    LoadingIndicator
	Allocation Allocation
	Logger     *zap.Logger

	busy atomic.Bool
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Orchestrator) setLoading(v bool) {
	if o.Loading != nil {
		o.Loading.SetLoading(v)
	}
}

// GrandTotal is the sum of merchant subtotals and their delivery fees.
func (o *Orchestrator) GrandTotal(groups []cart.MerchantCart) decimal.Decimal {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.Subtotal).Add(o.Policies.Get(g.MerchantID).DeliveryFee)
	}
	return total
}

// Validate checks the preconditions in order and returns the first violation.
func (o *Orchestrator) Validate(method string) error {
	return o.validate(o.Cart.GroupByMerchant(), method)
}

func (o *Orchestrator) validate(groups []cart.MerchantCart, method string) error {
	if len(groups) == 0 {
		return &ValidationError{Kind: KindEmptyCart, Title: "Cart is empty", Detail: "Add something to your cart before checking out."}
	}
	for _, g := range groups {
		info, _ := o.Delivery.Get(g.MerchantID)
		if strings.TrimSpace(info.Address) == "" || strings.TrimSpace(info.Phone) == "" {
			return &ValidationError{
				Kind:         KindMissingDelivery,
				MerchantID:   g.MerchantID,
				MerchantName: g.MerchantName,
				Title:        "Delivery details missing",
				Detail:       fmt.Sprintf("Please enter a delivery address and phone number for %s.", g.MerchantName),
			}
		}
	}
	for _, g := range groups {
		floor := o.Policies.Get(g.MerchantID).MinOrder
		if floor.IsPositive() && g.Subtotal.LessThan(floor) {
			short := floor.Sub(g.Subtotal)
			return &ValidationError{
				Kind:         KindBelowMinimum,
				MerchantID:   g.MerchantID,
				MerchantName: g.MerchantName,
				Shortfall:    short,
				Title:        "Minimum order not reached",
				Detail:       fmt.Sprintf("%s needs another %s to reach its minimum order of %s.", g.MerchantName, short.StringFixed(2), floor.StringFixed(2)),
			}
		}
	}
	if method == payment.MethodBalance {
		total := o.GrandTotal(groups)
		balance := decimal.Zero
		if o.Wallet != nil {
			balance, _ = o.Wallet.Balance()
		}
		if balance.LessThan(total) {
			short := total.Sub(balance)
			return &ValidationError{
				Kind:      KindInsufficientBalance,
				Shortfall: short,
				Title:     "Insufficient balance",
				Detail:    fmt.Sprintf("Your balance is %s but the order total is %s. Top up or choose another payment method.", balance.StringFixed(2), total.StringFixed(2)),
			}
		}
	}
	return nil
}

type created struct {
	group cart.MerchantCart
	order domain.Order
}

// Submit validates, creates one order per merchant and pays each of them.
// Orders created before a failure are not rolled back.
func (o *Orchestrator) Submit(ctx context.Context, method string) (*Result, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer o.busy.Store(false)
	o.setLoading(true)
	defer o.setLoading(false)

	groups := o.Cart.GroupByMerchant()
	if err := o.validate(groups, method); err != nil {
		return nil, err
	}
	grand := o.GrandTotal(groups)
	log := o.logger().With(zap.String("method", method), zap.Int("merchants", len(groups)))

	orders, createErr := o.createAll(ctx, groups, log)
	if len(orders) == 0 {
		detail := "We could not create your order. Please try again."
		if createErr != nil {
			detail = createErr.Error()
		}
		return nil, &SubmitError{Title: "Checkout failed", Detail: detail}
	}

	amounts := o.allocate(orders, grand)
	results := make([]payment.Result, len(orders))
	var g errgroup.Group
	for i, c := range orders {
		g.Go(func() error {
			results[i] = o.Payments.Pay(ctx, payment.Request{
				OrderID: c.order.ID,
				OrderNo: c.order.OrderNo,
				Amount:  amounts[i],
				Method:  method,
			})
			return nil
		})
	}
	_ = g.Wait()

	placed := make([]domain.Order, len(orders))
	for i, c := range orders {
		placed[i] = c.order
	}
	res := &Result{Orders: placed, Payments: results, GrandTotal: grand}
	for i, r := range results {
		if !r.Success {
			log.Warn("checkout payment failed", zap.Int64("orderId", orders[i].order.ID), zap.String("message", r.Message))
			return nil, &SubmitError{Title: "Payment failed", Detail: r.Message, Orders: placed}
		}
		if r.Pending {
			res.Pending = true
		}
	}

	if len(orders) == len(groups) {
		o.Cart.Clear()
	} else {
		for _, c := range orders {
			o.Cart.ClearMerchant(c.group.MerchantID)
		}
	}
	if o.Wallet != nil {
		if _, err := o.Wallet.Refresh(ctx); err != nil {
			log.Warn("refresh balance after checkout", zap.Error(err))
		}
	}
	if o.Navigator != nil {
		o.Navigator.ShowOrders(ctx, placed)
	}
	log.Info("checkout completed", zap.Int("orders", len(placed)), zap.String("grandTotal", grand.StringFixed(2)))
	return res, nil
}

// createAll keeps merchant order in its output and returns the first
// creation error, also in merchant order.
func (o *Orchestrator) createAll(ctx context.Context, groups []cart.MerchantCart, log *zap.Logger) ([]created, error) {
	out := make([]*domain.Order, len(groups))
	errs := make([]error, len(groups))
	var g errgroup.Group
	for i, grp := range groups {
		info, _ := o.Delivery.Get(grp.MerchantID)
		req := domain.CreateOrderRequest{
			RestaurantID: grp.MerchantID,
			Address:      info.Address,
			Phone:        info.Phone,
			Remark:       info.Remark,
		}
		for _, it := range grp.Items {
			req.Items = append(req.Items, domain.CreateOrderItem{MenuItemID: it.CatalogItemID, Quantity: it.Quantity})
		}
		g.Go(func() error {
			ord, err := o.Orders.CreateOrder(ctx, req)
			switch {
			case err != nil:
				errs[i] = err
			case ord == nil || ord.ID <= 0:
				errs[i] = errors.New("order service returned no order id")
			default:
				out[i] = ord
				return nil
			}
			log.Warn("create order failed", zap.Int64("merchantId", grp.MerchantID), zap.Error(errs[i]))
			return nil
		})
	}
	_ = g.Wait()

	var list []created
	var first error
	for i, ord := range out {
		if ord != nil {
			list = append(list, created{group: groups[i], order: *ord})
		} else if first == nil {
			first = errs[i]
		}
	}
	return list, first
}

func (o *Orchestrator) allocate(orders []created, grand decimal.Decimal) []decimal.Decimal {
	amounts := make([]decimal.Decimal, len(orders))
	if o.Allocation == AllocateProportional {
		for i, c := range orders {
			amounts[i] = c.group.Subtotal.Add(o.Policies.Get(c.group.MerchantID).DeliveryFee)
		}
		return amounts
	}
	n := decimal.NewFromInt(int64(len(orders)))
	share := grand.Div(n).Truncate(2)
	rest := grand
	for i := range orders {
		if i == len(orders)-1 {
			amounts[i] = rest
			break
		}
		amounts[i] = share
		rest = rest.Sub(share)
	}
	return amounts
}
