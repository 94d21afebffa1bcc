package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"takeaway-storefront/internal/domain"
)

// UserBackend binds the reference backend to one signed-in user so it can
// stand in for the remote HTTP client.
type UserBackend struct {
	Svc    *OrderService
	UserID int64
}

func (s *OrderService) ForUser(userID int64) *UserBackend {
	return &UserBackend{Svc: s, UserID: userID}
}

func (b *UserBackend) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	req.UserID = b.UserID
	return b.Svc.CreateOrder(ctx, req)
}

func (b *UserBackend) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return b.Svc.GetOrder(ctx, b.UserID, id)
}

func (b *UserBackend) ListOrders(ctx context.Context, page, pageSize int) ([]domain.Order, int, error) {
	list, total := b.Svc.ListOrders(ctx, b.UserID, page, pageSize)
	return list, total, nil
}

func (b *UserBackend) CancelOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return b.Svc.CancelOrder(ctx, b.UserID, id)
}

func (b *UserBackend) ConfirmReceipt(ctx context.Context, id int64) (*domain.Order, error) {
	return b.Svc.ConfirmReceipt(ctx, b.UserID, id)
}

func (b *UserBackend) PayOrder(ctx context.Context, id int64, method string) (*domain.Order, error) {
	return b.Svc.PayOrder(ctx, b.UserID, id, method)
}

func (b *UserBackend) CreatePaymentSession(ctx context.Context, id int64, method string) (*domain.PaymentSession, error) {
	return b.Svc.CreatePaymentSession(ctx, b.UserID, id, method)
}

func (b *UserBackend) QueryPaymentStatus(ctx context.Context, method, orderNo string) (*domain.PaymentStatus, error) {
	return b.Svc.QueryPaymentStatus(ctx, b.UserID, method, orderNo)
}

func (b *UserBackend) Balance(ctx context.Context) (decimal.Decimal, error) {
	return b.Svc.Balance(ctx, b.UserID)
}
