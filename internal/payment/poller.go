package payment

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomePaid    Outcome = "paid"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
)

var closedStatuses = map[string]bool{
	"TRADE_CLOSED": true,
	"CLOSED":       true,
	"CANCELLED":    true,
	"FAILED":       true,
}

type PollResult struct {
	Outcome  Outcome `json:"outcome"`
	Status   string  `json:"status,omitempty"`
	Attempts int     `json:"attempts"`
}

// StatusPoller confirms redirect-style payments with a bounded number of queries.
type StatusPoller struct {
	Querier  StatusQuerier
	Attempts int
	Interval time.Duration
	Logger   *zap.Logger
	After    func(time.Duration) <-chan time.Time
}

func NewStatusPoller(q StatusQuerier, logger *zap.Logger) *StatusPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusPoller{Querier: q, Attempts: 5, Interval: 2 * time.Second, Logger: logger, After: time.After}
}

// Await stops at the first conclusive answer. Running out of attempts is
// reported as pending, never as failure; the only error is ctx's.
func (p *StatusPoller) Await(ctx context.Context, method, orderNo string) (PollResult, error) {
	res := PollResult{Outcome: OutcomePending}
	after := p.After
	if after == nil {
		after = time.After
	}
	for i := 0; i < p.Attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-after(p.Interval):
			}
		}
		res.Attempts = i + 1
		st, err := p.Querier.QueryPaymentStatus(ctx, method, orderNo)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.Logger.Debug("payment status query failed", zap.String("orderNo", orderNo), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		res.Status = st.Status
		if st.Paid {
			res.Outcome = OutcomePaid
			return res, nil
		}
		if closedStatuses[strings.ToUpper(st.Status)] {
			res.Outcome = OutcomeFailed
			return res, nil
		}
	}
	return res, nil
}
