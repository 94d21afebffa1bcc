package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderPaid       OrderStatus = "PAID"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderPreparing  OrderStatus = "PREPARING"
	OrderDelivering OrderStatus = "DELIVERING"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

var statusRank = map[OrderStatus]int{
	OrderPending:    0,
	OrderPaid:       1,
	OrderConfirmed:  2,
	OrderPreparing:  3,
	OrderDelivering: 4,
	OrderCompleted:  5,
	OrderCancelled:  6,
}

var statusLabel = map[OrderStatus]string{
	OrderPending:    "Awaiting payment",
	OrderPaid:       "Paid",
	OrderConfirmed:  "Confirmed",
	OrderPreparing:  "Preparing",
	OrderDelivering: "Out for delivery",
	OrderCompleted:  "Completed",
	OrderCancelled:  "Cancelled",
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank is the lifecycle position; -1 for unknown values.
func (s OrderStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) Label() string {
	if l, ok := statusLabel[s]; ok {
		return l
	}
	return string(s)
}

// Advances reports whether incoming should replace current as seen by a client.
// An empty current status means nothing is known yet.
func Advances(current, incoming OrderStatus) bool {
	if !incoming.Valid() {
		return false
	}
	if current == "" {
		return true
	}
	if current == incoming || current.Terminal() {
		return false
	}
	if incoming == OrderCancelled {
		return true
	}
	return incoming.Rank() > current.Rank()
}

// CanTransition is the server-side lifecycle.
func CanTransition(from, to OrderStatus) bool {
	switch to {
	case OrderCancelled:
		return from == OrderPending
	case OrderPaid:
		return from == OrderPending
	case OrderConfirmed:
		return from == OrderPaid
	case OrderPreparing:
		return from == OrderConfirmed
	case OrderDelivering:
		return from == OrderPreparing
	case OrderCompleted:
		return from == OrderDelivering
	}
	return false
}

type OrderItem struct {
	MenuItemID   int64           `json:"menuItemId"`
	MenuItemName string          `json:"menuItemName"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

type DeliveryInfo struct {
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Remark  string `json:"remark,omitempty"`
}

type Order struct {
	ID             int64           `json:"id"`
	OrderNo        string          `json:"orderNo"`
	UserID         int64           `json:"userId"`
	RestaurantID   int64           `json:"restaurantId"`
	RestaurantName string          `json:"restaurantName"`
	Items          []OrderItem     `json:"items"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	DeliveryFee    decimal.Decimal `json:"deliveryFee"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	PayAmount      decimal.Decimal `json:"payAmount"`
	Status         OrderStatus     `json:"status"`
	Address        string          `json:"address"`
	Phone          string          `json:"phone"`
	Remark         string          `json:"remark,omitempty"`
	PaymentMethod  string          `json:"paymentMethod,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	DeliveryTime   *time.Time      `json:"deliveryTime,omitempty"`
}

type CreateOrderItem struct {
	MenuItemID int64 `json:"menuItemId"`
	Quantity   int   `json:"quantity"`
}

type CreateOrderRequest struct {
	UserID       int64             `json:"-"`
	RestaurantID int64             `json:"restaurantId"`
	Items        []CreateOrderItem `json:"items"`
	Address      string            `json:"address"`
	Phone        string            `json:"phone"`
	Remark       string            `json:"remark,omitempty"`
}

// PaymentSession is what a redirect-style provider hands to the browser.
type PaymentSession struct {
	OrderID   int64  `json:"orderId"`
	OrderNo   string `json:"orderNo"`
	Method    string `json:"method"`
	PayForm   string `json:"payForm,omitempty"`
	CodeURL   string `json:"codeUrl,omitempty"`
	ReturnURL string `json:"returnUrl,omitempty"`
}

type PaymentStatus struct {
	OrderNo string `json:"orderNo"`
	Status  string `json:"status"`
	Paid    bool   `json:"paid"`
}

// StatusMessage is the payload carried by the push channel.
type StatusMessage struct {
	Type           string          `json:"type"`
	OrderID        int64           `json:"orderId"`
	OrderNo        string          `json:"orderNo"`
	UserID         int64           `json:"userId"`
	RestaurantID   int64           `json:"restaurantId"`
	RestaurantName string          `json:"restaurantName"`
	OldStatus      OrderStatus     `json:"oldStatus"`
	NewStatus      OrderStatus     `json:"newStatus"`
	StatusLabel    string          `json:"statusLabel"`
	PayAmount      decimal.Decimal `json:"payAmount"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Message        string          `json:"message,omitempty"`
}
