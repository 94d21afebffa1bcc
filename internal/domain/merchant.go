package domain

import "github.com/shopspring/decimal"

type MenuItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// Merchant is a restaurant together with the policy checkout enforces.
type Merchant struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	MinOrder    decimal.Decimal `json:"minOrder"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Menu        []MenuItem      `json:"menu"`
}

func (m *Merchant) Item(id int64) (MenuItem, bool) {
	for _, it := range m.Menu {
		if it.ID == id {
			return it, true
		}
	}
	return MenuItem{}, false
}
