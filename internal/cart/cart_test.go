package cart

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id int64, price string) CatalogItem {
	return CatalogItem{ID: id, Name: "item", Price: decimal.RequireFromString(price)}
}

func TestCart_AddIncrementsExisting(t *testing.T) {
	c := New()
	c.AddItem(item(1, "20"), 10, "Noodle House")
	c.AddItem(item(1, "20"), 10, "Noodle House")
	c.AddItem(item(2, "15"), 11, "Dumpling Bar")

	require.Len(t, c.Items(), 2)
	assert.Equal(t, 2, c.ItemQuantity(1))
	assert.Equal(t, 3, c.TotalCount())
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(55)))
}

func TestCart_RemoveDropsAtZero(t *testing.T) {
	c := New()
	c.AddItem(item(1, "9.5"), 10, "A")
	c.AddItem(item(1, "9.5"), 10, "A")

	c.RemoveItem(1)
	assert.Equal(t, 1, c.ItemQuantity(1))
	c.RemoveItem(1)
	assert.Equal(t, 0, c.ItemQuantity(1))
	assert.True(t, c.Empty())

	// unknown ids are ignored
	c.RemoveItem(42)
	c.DeleteItem(42)
}

func TestCart_DeleteAndClearMerchant(t *testing.T) {
	c := New()
	c.AddItem(item(1, "1"), 10, "A")
	c.AddItem(item(1, "1"), 10, "A")
	c.AddItem(item(2, "2"), 11, "B")
	c.AddItem(item(3, "3"), 10, "A")

	c.DeleteItem(1)
	assert.Equal(t, 0, c.ItemQuantity(1))

	c.ClearMerchant(10)
	groups := c.GroupByMerchant()
	require.Len(t, groups, 1)
	assert.Equal(t, int64(11), groups[0].MerchantID)

	c.Clear()
	assert.True(t, c.Empty())
	assert.Empty(t, c.GroupByMerchant())
}

func TestCart_GroupOrderFollowsFirstInsertion(t *testing.T) {
	c := New()
	c.AddItem(item(1, "5"), 20, "B")
	c.AddItem(item(2, "5"), 10, "A")
	c.AddItem(item(3, "5"), 20, "B")
	c.AddItem(item(4, "5"), 30, "C")

	first := c.GroupByMerchant()
	second := c.GroupByMerchant()
	require.Len(t, first, 3)
	assert.Equal(t, []int64{20, 10, 30}, []int64{first[0].MerchantID, first[1].MerchantID, first[2].MerchantID})
	assert.Equal(t, first, second)
	assert.Len(t, first[0].Items, 2)
	assert.Equal(t, 2, first[0].Count)
}

func TestCart_TotalsAgreeWithGroups(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	c := New()
	prices := []string{"3.5", "12", "0.99", "20", "7.25"}
	for step := 0; step < 500; step++ {
		id := int64(r.Intn(12))
		merchant := id % 4
		switch r.Intn(4) {
		case 0, 1:
			c.AddItem(item(id, prices[id%int64(len(prices))]), merchant, "m")
		case 2:
			c.RemoveItem(id)
		case 3:
			c.DeleteItem(id)
		}

		sum := decimal.Zero
		for _, g := range c.GroupByMerchant() {
			lines := decimal.Zero
			for _, it := range g.Items {
				require.GreaterOrEqual(t, it.Quantity, 1)
				lines = lines.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
			}
			require.True(t, g.Subtotal.Equal(lines))
			require.True(t, c.MerchantTotal(g.MerchantID).Equal(g.Subtotal))
			sum = sum.Add(g.Subtotal)
		}
		require.True(t, c.TotalPrice().Equal(sum), "step %d", step)
	}
}
