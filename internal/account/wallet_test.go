package account

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	amount decimal.Decimal
	err    error
}

func (s *stubSource) Balance(ctx context.Context) (decimal.Decimal, error) {
	return s.amount, s.err
}

func TestWallet_Refresh(t *testing.T) {
	src := &stubSource{amount: decimal.NewFromInt(100)}
	w := NewWallet(src)

	_, known := w.Balance()
	assert.False(t, known)

	b, err := w.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Equal(decimal.NewFromInt(100)))

	src.err = errors.New("boom")
	_, err = w.Refresh(context.Background())
	require.Error(t, err)
	cached, known := w.Balance()
	assert.True(t, known)
	assert.True(t, cached.Equal(decimal.NewFromInt(100)))

	w.Reset()
	_, known = w.Balance()
	assert.False(t, known)
}
