package reports

import (
	"context"
	"fmt"
	"sort"

	"rakuda/server/storage"
)

// The custom report type runs one of a fixed set of named presets.
// Arbitrary user-supplied queries are deliberately not supported; the
// allow-list below is the whole surface.
const (
	PresetTopProducts     = "top_products"
	PresetRecentOrders    = "recent_orders"
	PresetLowStock        = "low_stock"
	PresetMarketplaceFees = "marketplace_fees"
)

const (
	topProductsLimit  = 20
	recentOrdersLimit = 50
	lowStockThreshold = 10
)

type presetFn func(c *Collector, ctx context.Context, p Params) (*ReportData, error)

var customPresets = map[string]presetFn{
	PresetTopProducts:     (*Collector).collectTopProducts,
	PresetRecentOrders:    (*Collector).collectRecentOrders,
	PresetLowStock:        (*Collector).collectLowStock,
	PresetMarketplaceFees: (*Collector).collectMarketplaceFees,
}

// PresetNames returns the allow-listed preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(customPresets))
	for name := range customPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectCustom dispatches to the named preset. Unknown names fail
// before any query runs.
func (c *Collector) collectCustom(ctx context.Context, p Params) (*ReportData, error) {
	fn, ok := customPresets[p.Preset]
	if !ok {
		return nil, fmt.Errorf("preset not found: %q", p.Preset)
	}
	return fn(c, ctx, p)
}

func (c *Collector) collectTopProducts(ctx context.Context, p Params) (*ReportData, error) {
	products, err := c.store.ListProducts(ctx, storage.ProductFilter{
		Marketplace: p.Marketplace,
		SortBySold:  true,
		Limit:       topProductsLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list top products: %w", err)
	}

	data := newReportData("Top Products")
	data.Headers = []string{"SKU", "Title", "Marketplace", "Units Sold", "Revenue"}
	for _, pr := range products {
		revenue := float64(pr.SoldCount) * pr.Price
		data.Rows = append(data.Rows, []any{pr.SKU, pr.Title, pr.Marketplace, int64(pr.SoldCount), revenue})
		data.Summary["total_units_sold"] += float64(pr.SoldCount)
		data.Summary["total_revenue"] += revenue
	}
	return data, nil
}

func (c *Collector) collectRecentOrders(ctx context.Context, p Params) (*ReportData, error) {
	orders, err := c.store.ListOrders(ctx, storage.OrderFilter{
		Marketplace: p.Marketplace,
		Limit:       recentOrdersLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list recent orders: %w", err)
	}

	data := newReportData("Recent Orders")
	data.Headers = []string{"Order ID", "Date", "Marketplace", "Status", "Revenue"}
	for _, o := range orders {
		data.Rows = append(data.Rows, []any{
			o.OrderID, o.CreatedAt.UTC().Format(dateLayout), o.Marketplace, o.Status, o.Revenue,
		})
		data.Summary["total_orders"]++
		data.Summary["total_revenue"] += o.Revenue
	}
	return data, nil
}

func (c *Collector) collectLowStock(ctx context.Context, p Params) (*ReportData, error) {
	threshold := lowStockThreshold
	products, err := c.store.ListProducts(ctx, storage.ProductFilter{
		Marketplace: p.Marketplace,
		Status:      storage.ProductStatusActive,
		MaxStock:    &threshold,
		Limit:       rowCaps[TypeCustom],
	})
	if err != nil {
		return nil, fmt.Errorf("list low stock products: %w", err)
	}

	data := newReportData("Low Stock")
	data.Headers = []string{"SKU", "Title", "Marketplace", "Stock", "Units Sold"}
	for _, pr := range products {
		data.Rows = append(data.Rows, []any{pr.SKU, pr.Title, pr.Marketplace, int64(pr.Stock), int64(pr.SoldCount)})
		data.Summary["total_skus"]++
		data.Summary["total_stock"] += float64(pr.Stock)
	}
	return data, nil
}

func (c *Collector) collectMarketplaceFees(ctx context.Context, p Params) (*ReportData, error) {
	start, end := p.timeRange()
	markets, err := c.store.AggregateMarketplaces(ctx, storage.OrderFilter{
		Start: start,
		End:   end,
		Limit: rowCaps[TypeCustom],
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate marketplace fees: %w", err)
	}

	data := newReportData("Marketplace Fees")
	data.Headers = []string{"Marketplace", "Orders", "Shipping Fees", "Marketplace Fees", "Fee % of Revenue"}
	for _, m := range markets {
		var feePct any
		if m.Revenue > 0 {
			feePct = (m.ShippingFees + m.MarketplaceFees) / m.Revenue * 100
		}
		data.Rows = append(data.Rows, []any{
			m.Marketplace, int64(m.OrderCount), m.ShippingFees, m.MarketplaceFees, feePct,
		})
		data.Summary["total_shipping_fees"] += m.ShippingFees
		data.Summary["total_marketplace_fees"] += m.MarketplaceFees
	}
	return data, nil
}
