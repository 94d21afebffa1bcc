package cart

import (
	"sync"

	"github.com/shopspring/decimal"
)

// CatalogItem is the menu entry a shopper picks; only id, name and price matter here.
type CatalogItem struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type LineItem struct {
	CatalogItemID int64           `json:"catalogItemId"`
	Name          string          `json:"name"`
	MerchantID    int64           `json:"merchantId"`
	MerchantName  string          `json:"merchantName"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Quantity      int             `json:"quantity"`
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MerchantCart is a read-only projection; it is rebuilt on every call.
type MerchantCart struct {
	MerchantID   int64           `json:"merchantId"`
	MerchantName string          `json:"merchantName"`
	Items        []LineItem      `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Count        int             `json:"count"`
}

type Cart struct {
	mu    sync.RWMutex
	items []LineItem
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) indexOf(itemID int64) int {
	for i := range c.items {
		if c.items[i].CatalogItemID == itemID {
			return i
		}
	}
	return -1
}

func (c *Cart) AddItem(item CatalogItem, merchantID int64, merchantName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(item.ID); i >= 0 {
		c.items[i].Quantity++
		return
	}
	c.items = append(c.items, LineItem{
		CatalogItemID: item.ID,
		Name:          item.Name,
		MerchantID:    merchantID,
		MerchantName:  merchantName,
		UnitPrice:     item.Price,
		Quantity:      1,
	})
}

// RemoveItem decrements the line and drops it when it would reach zero.
func (c *Cart) RemoveItem(itemID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(itemID)
	if i < 0 {
		return
	}
	if c.items[i].Quantity > 1 {
		c.items[i].Quantity--
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
}

func (c *Cart) DeleteItem(itemID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(itemID); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

func (c *Cart) ClearMerchant(merchantID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0]
	for _, it := range c.items {
		if it.MerchantID != merchantID {
			kept = append(kept, it)
		}
	}
	c.items = kept
}

func (c *Cart) Items() []LineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items) == 0
}

func (c *Cart) ItemQuantity(itemID int64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(itemID); i >= 0 {
		return c.items[i].Quantity
	}
	return 0
}

func (c *Cart) TotalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) TotalPrice() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// GroupByMerchant orders merchants by the position of their earliest line.
func (c *Cart) GroupByMerchant() []MerchantCart {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groups := make([]MerchantCart, 0)
	pos := map[int64]int{}
	for _, it := range c.items {
		i, ok := pos[it.MerchantID]
		if !ok {
			i = len(groups)
			pos[it.MerchantID] = i
			groups = append(groups, MerchantCart{
				MerchantID:   it.MerchantID,
				MerchantName: it.MerchantName,
				Subtotal:     decimal.Zero,
			})
		}
		g := &groups[i]
		g.Items = append(g.Items, it)
		g.Subtotal = g.Subtotal.Add(it.Subtotal())
		g.Count += it.Quantity
	}
	return groups
}

func (c *Cart) MerchantItems(merchantID int64) []LineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []LineItem
	for _, it := range c.items {
		if it.MerchantID == merchantID {
			out = append(out, it)
		}
	}
	return out
}

func (c *Cart) MerchantTotal(merchantID int64) decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.MerchantItems(merchantID) {
		total = total.Add(it.Subtotal())
	}
	return total
}
