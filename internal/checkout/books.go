package checkout

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"takeaway-storefront/internal/cart"
	"takeaway-storefront/internal/domain"
)

// Defaults seed delivery info for merchants seen for the first time.
type Defaults struct {
	Phone           string
	ProfileAddress  string
	LocationAddress string
}

func (d Defaults) address() string {
	if strings.TrimSpace(d.ProfileAddress) != "" {
		return d.ProfileAddress
	}
	return d.LocationAddress
}

// DeliveryBook keeps one DeliveryInfo per merchant in the cart.
type DeliveryBook struct {
	mu      sync.RWMutex
	entries map[int64]domain.DeliveryInfo
}

func NewDeliveryBook() *DeliveryBook {
	return &DeliveryBook{entries: map[int64]domain.DeliveryInfo{}}
}

// Sync adds defaults for new merchants and drops merchants no longer in the cart.
// Existing entries are never overwritten.
func (b *DeliveryBook) Sync(groups []cart.MerchantCart, d Defaults) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[int64]bool, len(groups))
	for _, g := range groups {
		seen[g.MerchantID] = true
		if _, ok := b.entries[g.MerchantID]; ok {
			continue
		}
		b.entries[g.MerchantID] = domain.DeliveryInfo{Address: d.address(), Phone: d.Phone}
	}
	for id := range b.entries {
		if !seen[id] {
			delete(b.entries, id)
		}
	}
}

func (b *DeliveryBook) Set(merchantID int64, info domain.DeliveryInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[merchantID] = info
}

func (b *DeliveryBook) Get(merchantID int64) (domain.DeliveryInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.entries[merchantID]
	return info, ok
}

func (b *DeliveryBook) All() map[int64]domain.DeliveryInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int64]domain.DeliveryInfo, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out
}

func (b *DeliveryBook) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = map[int64]domain.DeliveryInfo{}
}

type Policy struct {
	MinOrder    decimal.Decimal `json:"minOrder"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
}

// PolicyBook holds merchant policies learned while browsing.
type PolicyBook struct {
	mu       sync.RWMutex
	policies map[int64]Policy
}

func NewPolicyBook() *PolicyBook {
	return &PolicyBook{policies: map[int64]Policy{}}
}

func (b *PolicyBook) Set(merchantID int64, p Policy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policies[merchantID] = p
}

// Get returns the zero policy (no minimum, free delivery) for unknown merchants.
func (b *PolicyBook) Get(merchantID int64) Policy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.policies[merchantID]
}
