package location

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"takeaway-storefront/internal/domain"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultTimeout = 10 * time.Second
)

type Locator interface {
	CurrentCoordinates(ctx context.Context) (lat, lng float64, err error)
}

type Geocoder interface {
	ReverseResolve(ctx context.Context, lat, lng float64) (string, error)
}

type Store interface {
	PutLocation(*domain.LocationRecord) error
	GetLocation() (*domain.LocationRecord, bool)
	DeleteLocation() error
}

type State struct {
	Record   *domain.LocationRecord `json:"record,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Locating bool                   `json:"locating"`
}

// Cache owns the process-wide last known location.
type Cache struct {
	Locator  Locator
	Geocoder Geocoder
	Store    Store
	TTL      time.Duration
	Timeout  time.Duration
	Now      func() time.Time
	Logger   *zap.Logger

	group    singleflight.Group
	mu       sync.RWMutex
	record   *domain.LocationRecord
	lastErr  string
	locating bool
}

func NewCache(locator Locator, geocoder Geocoder, store Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		Locator:  locator,
		Geocoder: geocoder,
		Store:    store,
		TTL:      DefaultTTL,
		Timeout:  DefaultTimeout,
		Now:      time.Now,
		Logger:   logger,
	}
}

// Load restores the persisted record, if any.
func (c *Cache) Load() {
	if c.Store == nil {
		return
	}
	rec, ok := c.Store.GetLocation()
	if !ok {
		return
	}
	c.mu.Lock()
	c.record = rec
	c.mu.Unlock()
}

// Resolve returns a fresh location, sharing one acquisition among concurrent callers.
func (c *Cache) Resolve(ctx context.Context) (domain.LocationRecord, error) {
	if rec, ok := c.fresh(); ok {
		return rec, nil
	}
	ch := c.group.DoChan("current", func() (any, error) {
		return c.resolve(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return domain.LocationRecord{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.LocationRecord{}, res.Err
		}
		return res.Val.(domain.LocationRecord), nil
	}
}

func (c *Cache) fresh() (domain.LocationRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.record == nil {
		return domain.LocationRecord{}, false
	}
	if c.Now().Sub(c.record.ResolvedAt) >= c.TTL {
		return domain.LocationRecord{}, false
	}
	return *c.record, true
}

func (c *Cache) resolve(ctx context.Context) (domain.LocationRecord, error) {
	if rec, ok := c.fresh(); ok {
		return rec, nil
	}
	c.mu.Lock()
	c.locating = true
	c.lastErr = ""
	c.mu.Unlock()

	lat, lng, err := c.acquire(ctx)
	if err != nil {
		c.mu.Lock()
		c.locating = false
		c.lastErr = err.Error()
		c.mu.Unlock()
		c.Logger.Warn("location acquisition failed", zap.Error(err))
		return domain.LocationRecord{}, err
	}

	rec := domain.LocationRecord{Latitude: lat, Longitude: lng, ResolvedAt: c.Now()}
	if c.Geocoder != nil {
		addr, gerr := c.Geocoder.ReverseResolve(ctx, lat, lng)
		switch {
		case gerr != nil:
			c.Logger.Info("reverse geocoding failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(gerr))
		case strings.TrimSpace(addr) != "":
			rec.Address = &addr
		}
	}

	c.mu.Lock()
	c.record = &rec
	c.locating = false
	c.lastErr = ""
	c.mu.Unlock()

	if c.Store != nil {
		cp := rec
		if err := c.Store.PutLocation(&cp); err != nil {
			c.Logger.Warn("persist location failed", zap.Error(err))
		}
	}
	return rec, nil
}

func (c *Cache) acquire(ctx context.Context) (float64, float64, error) {
	if c.Locator == nil {
		return 0, 0, ErrPositionUnavailable
	}
	actx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	lat, lng, err := c.Locator.CurrentCoordinates(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, 0, ErrTimeout
		}
		return 0, 0, err
	}
	return lat, lng, nil
}

func (c *Cache) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := State{Error: c.lastErr, Locating: c.locating}
	if c.record != nil {
		rec := *c.record
		st.Record = &rec
	}
	return st
}

// DefaultAddress is the last resolved address, or "" when none is known.
func (c *Cache) DefaultAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.record == nil || c.record.Address == nil {
		return ""
	}
	return *c.record.Address
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.record = nil
	c.lastErr = ""
	c.locating = false
	c.mu.Unlock()
	if c.Store != nil {
		if err := c.Store.DeleteLocation(); err != nil {
			c.Logger.Warn("delete persisted location failed", zap.Error(err))
		}
	}
}
