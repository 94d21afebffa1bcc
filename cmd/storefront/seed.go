package main

import (
	"github.com/shopspring/decimal"

	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/infrastructure/repo"
)

func yuan(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedCatalog loads a few demo restaurants for the built-in backend.
func seedCatalog(c *repo.MemoryCatalog) {
	c.Put(domain.Merchant{
		ID: 1, Name: "Lanzhou Noodle House", MinOrder: yuan("20"), DeliveryFee: yuan("3"),
		Menu: []domain.MenuItem{
			{ID: 101, Name: "Beef noodle soup", Price: yuan("22"), Available: true},
			{ID: 102, Name: "Cold cucumber salad", Price: yuan("8"), Available: true},
			{ID: 103, Name: "Braised egg", Price: yuan("2.5"), Available: true},
		},
	})
	c.Put(domain.Merchant{
		ID: 2, Name: "Shengjian Corner", MinOrder: yuan("15"), DeliveryFee: yuan("2"),
		Menu: []domain.MenuItem{
			{ID: 201, Name: "Pan-fried pork buns (4)", Price: yuan("12"), Available: true},
			{ID: 202, Name: "Shrimp wontons", Price: yuan("16"), Available: true},
			{ID: 203, Name: "Soy milk", Price: yuan("4"), Available: true},
		},
	})
	c.Put(domain.Merchant{
		ID: 3, Name: "Sichuan Kitchen", MinOrder: yuan("30"), DeliveryFee: yuan("5"),
		Menu: []domain.MenuItem{
			{ID: 301, Name: "Mapo tofu", Price: yuan("26"), Available: true},
			{ID: 302, Name: "Kung pao chicken", Price: yuan("32"), Available: true},
			{ID: 303, Name: "Steamed rice", Price: yuan("2"), Available: true},
			{ID: 304, Name: "Boiled fish", Price: yuan("58")},
		},
	})
}
