package services

import (
	"cmp"
	"slices"

	"anomaly-dashboard/internal/models"
)

// CategoryBreakdown aggregates a scored batch per category, largest sales
// first.
func CategoryBreakdown(scored []models.ScoredTransaction) []models.CategoryBreakdown {
	groups := make(map[string]*models.CategoryBreakdown)
	for _, tx := range scored {
		g := groups[tx.Category]
		if g == nil {
			g = &models.CategoryBreakdown{Category: tx.Category}
			groups[tx.Category] = g
		}
		g.Records++
		g.TotalSales += tx.SalesAmount
		g.QuantitySold += tx.QuantitySold
		if tx.Classification == models.Anomaly {
			g.Anomalies++
		}
	}

	result := make([]models.CategoryBreakdown, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	slices.SortFunc(result, func(a, b models.CategoryBreakdown) int {
		if c := cmp.Compare(b.TotalSales, a.TotalSales); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return result
}
