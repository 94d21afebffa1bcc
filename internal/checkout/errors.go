package checkout

import (
	"errors"

	"github.com/shopspring/decimal"

	"takeaway-storefront/internal/domain"
)

var ErrInProgress = errors.New("checkout already in progress")

type Kind string

const (
	KindEmptyCart           Kind = "empty_cart"
	KindMissingDelivery     Kind = "missing_delivery"
	KindBelowMinimum        Kind = "below_minimum"
	KindInsufficientBalance Kind = "insufficient_balance"
)

// ValidationError blocks submission before any backend call is made.
type ValidationError struct {
	Kind         Kind            `json:"kind"`
	MerchantID   int64           `json:"merchantId,omitempty"`
	MerchantName string          `json:"merchantName,omitempty"`
	Shortfall    decimal.Decimal `json:"shortfall"`
	Title        string          `json:"title"`
	Detail       string          `json:"detail"`
}

func (e *ValidationError) Error() string { return e.Title + ": " + e.Detail }

func (e *ValidationError) Notice() domain.Notice {
	return domain.Notice{Title: e.Title, Detail: e.Detail}
}

// SubmitError reports a creation or payment failure. Orders already created
// stay where they are; Orders lists them so the caller can point the user there.
type SubmitError struct {
	Title  string         `json:"title"`
	Detail string         `json:"detail"`
	Orders []domain.Order `json:"orders,omitempty"`
}

func (e *SubmitError) Error() string { return e.Title + ": " + e.Detail }

func (e *SubmitError) Notice() domain.Notice {
	return domain.Notice{Title: e.Title, Detail: e.Detail}
}
