package repo

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"takeaway-storefront/internal/domain"
)

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}

type MemoryOrderRepo struct {
	mu   sync.RWMutex
	seq  int64
	m    map[int64]*domain.Order
	byNo map[string]int64
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{m: make(map[int64]*domain.Order), byNo: make(map[string]int64)}
}

func (r *MemoryOrderRepo) NextID() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq, nil
}

func (r *MemoryOrderRepo) Put(o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[o.ID] = cloneOrder(o)
	r.byNo[o.OrderNo] = o.ID
	return nil
}

func (r *MemoryOrderRepo) Get(id int64) (*domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return nil, false
	}
	return cloneOrder(o), true
}

func (r *MemoryOrderRepo) GetByNo(orderNo string) (*domain.Order, bool) {
	r.mu.RLock()
	id, ok := r.byNo[orderNo]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// ListByUser returns newest first.
func (r *MemoryOrderRepo) ListByUser(userID int64, page, pageSize int) ([]domain.Order, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]domain.Order, 0)
	for _, o := range r.m {
		if o.UserID == userID {
			all = append(all, *cloneOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}

type MemoryWalletRepo struct {
	mu sync.RWMutex
	m  map[int64]decimal.Decimal
}

func NewMemoryWalletRepo() *MemoryWalletRepo {
	return &MemoryWalletRepo{m: make(map[int64]decimal.Decimal)}
}

func (r *MemoryWalletRepo) GetBalance(userID int64) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.m[userID]
	return b, ok
}

func (r *MemoryWalletRepo) PutBalance(userID int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[userID] = amount
	return nil
}

type MemoryCatalog struct {
	mu sync.RWMutex
	m  map[int64]*domain.Merchant
}

func NewMemoryCatalog(merchants ...domain.Merchant) *MemoryCatalog {
	c := &MemoryCatalog{m: make(map[int64]*domain.Merchant)}
	for _, m := range merchants {
		c.Put(m)
	}
	return c
}

func (c *MemoryCatalog) Put(m domain.Merchant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Menu = append([]domain.MenuItem(nil), m.Menu...)
	c.m[m.ID] = &m
}

func (c *MemoryCatalog) Merchant(id int64) (*domain.Merchant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.m[id]
	return m, ok
}

func (c *MemoryCatalog) List() []domain.Merchant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Merchant, 0, len(c.m))
	for _, m := range c.m {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type MemoryLocationRepo struct {
	mu  sync.RWMutex
	rec *domain.LocationRecord
}

func NewMemoryLocationRepo() *MemoryLocationRepo {
	return &MemoryLocationRepo{}
}

func (r *MemoryLocationRepo) PutLocation(rec *domain.LocationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.rec = &cp
	return nil
}

func (r *MemoryLocationRepo) GetLocation() (*domain.LocationRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.rec == nil {
		return nil, false
	}
	cp := *r.rec
	return &cp, true
}

func (r *MemoryLocationRepo) DeleteLocation() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec = nil
	return nil
}
