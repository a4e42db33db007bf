package reports

import (
	"context"
	"fmt"
	"time"

	"rakuda/server/storage"
)

// CollectorStore defines the store interface needed by the collectors.
type CollectorStore interface {
	ListProducts(ctx context.Context, f storage.ProductFilter) ([]*storage.Product, error)
	ListOrders(ctx context.Context, f storage.OrderFilter) ([]*storage.Order, error)
	AggregateCustomers(ctx context.Context, f storage.OrderFilter) ([]*storage.CustomerStats, error)
	AggregateMarketplaces(ctx context.Context, f storage.OrderFilter) ([]*storage.MarketplaceStats, error)
	ListSalesSummaries(ctx context.Context, f storage.SalesSummaryFilter) ([]*storage.SalesSummary, error)
	AggregateProfitByPeriod(ctx context.Context, f storage.SalesSummaryFilter) ([]*storage.ProfitPoint, error)
	ListAuditEntries(ctx context.Context, f storage.AuditFilter) ([]*storage.AuditEntry, error)
}

// Collector turns a report type and params into ReportData. Each type
// runs one fixed query shape; the per-type row caps live in rowCaps.
type Collector struct {
	store CollectorStore
}

// NewCollector creates a new data collector.
func NewCollector(store CollectorStore) *Collector {
	return &Collector{store: store}
}

// Collect fetches and shapes the data for one report. Unsupported
// types and unknown presets fail before any query runs.
func (c *Collector) Collect(ctx context.Context, reportType string, p Params) (*ReportData, error) {
	switch reportType {
	case TypeSalesSummary:
		return c.collectSalesSummary(ctx, p)
	case TypeInventoryStatus:
		return c.collectInventoryStatus(ctx, p)
	case TypeProductPerformance:
		return c.collectProductPerformance(ctx, p)
	case TypeOrderDetail:
		return c.collectOrderDetail(ctx, p)
	case TypeCustomerAnalysis:
		return c.collectCustomerAnalysis(ctx, p)
	case TypeProfitAnalysis:
		return c.collectProfitAnalysis(ctx, p)
	case TypeMarketplaceComparison:
		return c.collectMarketplaceComparison(ctx, p)
	case TypeAuditReport:
		return c.collectAuditReport(ctx, p)
	case TypeCustom:
		return c.collectCustom(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported report type: %s", reportType)
	}
}

func newReportData(title string) *ReportData {
	return &ReportData{
		Title:       title,
		GeneratedAt: time.Now().UTC(),
		Summary:     map[string]float64{},
	}
}

func (c *Collector) collectSalesSummary(ctx context.Context, p Params) (*ReportData, error) {
	rows, err := c.store.ListSalesSummaries(ctx, storage.SalesSummaryFilter{
		StartPeriod: p.StartDate,
		EndPeriod:   p.EndDate,
		Marketplace: p.Marketplace,
		Limit:       rowCaps[TypeSalesSummary],
	})
	if err != nil {
		return nil, fmt.Errorf("list sales summaries: %w", err)
	}

	data := newReportData("Sales Summary")
	data.Headers = []string{"Period", "Marketplace", "Orders", "Units", "Revenue", "Cost", "Profit"}
	for _, r := range rows {
		data.Rows = append(data.Rows, []any{
			r.Period, r.Marketplace, int64(r.OrderCount), int64(r.Units),
			r.Revenue, r.Cost, r.Profit,
		})
		data.Summary["total_orders"] += float64(r.OrderCount)
		data.Summary["total_units"] += float64(r.Units)
		data.Summary["total_revenue"] += r.Revenue
		data.Summary["total_cost"] += r.Cost
		data.Summary["total_profit"] += r.Profit
	}

	if labels, series := salesChartSeries(rows); len(labels) > 0 {
		data.Charts = append(data.Charts, Chart{
			Type: "line", Title: "Revenue by day", Labels: labels, Series: series,
		})
	}
	return data, nil
}

// salesChartSeries folds rollup rows into one revenue point per period.
func salesChartSeries(rows []*storage.SalesSummary) ([]string, []float64) {
	var labels []string
	var series []float64
	for _, r := range rows {
		if n := len(labels); n > 0 && labels[n-1] == r.Period {
			series[n-1] += r.Revenue
			continue
		}
		labels = append(labels, r.Period)
		series = append(series, r.Revenue)
	}
	return labels, series
}

func (c *Collector) collectInventoryStatus(ctx context.Context, p Params) (*ReportData, error) {
	products, err := c.store.ListProducts(ctx, storage.ProductFilter{
		Marketplace: p.Marketplace,
		Status:      p.Status,
		Limit:       rowCaps[TypeInventoryStatus],
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	data := newReportData("Inventory Status")
	data.Headers = []string{"SKU", "Title", "Marketplace", "Status", "Stock", "Price", "Stock Value"}
	for _, pr := range products {
		stockValue := float64(pr.Stock) * pr.Cost
		data.Rows = append(data.Rows, []any{
			pr.SKU, pr.Title, pr.Marketplace, pr.Status, int64(pr.Stock), pr.Price, stockValue,
		})
		data.Summary["total_skus"]++
		data.Summary["total_stock"] += float64(pr.Stock)
		data.Summary["total_stock_value"] += stockValue
		if pr.Status == storage.ProductStatusOutOfStock {
			data.Summary["out_of_stock"]++
		}
	}
	return data, nil
}

func (c *Collector) collectProductPerformance(ctx context.Context, p Params) (*ReportData, error) {
	products, err := c.store.ListProducts(ctx, storage.ProductFilter{
		Marketplace: p.Marketplace,
		Status:      p.Status,
		SortBySold:  true,
		Limit:       rowCaps[TypeProductPerformance],
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	data := newReportData("Product Performance")
	data.Headers = []string{"SKU", "Title", "Marketplace", "Units Sold", "Revenue", "Margin %"}
	for _, pr := range products {
		revenue := float64(pr.SoldCount) * pr.Price
		var margin any
		if pr.Price > 0 {
			margin = (pr.Price - pr.Cost) / pr.Price * 100
		}
		data.Rows = append(data.Rows, []any{
			pr.SKU, pr.Title, pr.Marketplace, int64(pr.SoldCount), revenue, margin,
		})
		data.Summary["total_units_sold"] += float64(pr.SoldCount)
		data.Summary["total_revenue"] += revenue
	}
	return data, nil
}

func (c *Collector) collectOrderDetail(ctx context.Context, p Params) (*ReportData, error) {
	start, end := p.timeRange()
	orders, err := c.store.ListOrders(ctx, storage.OrderFilter{
		Start:       start,
		End:         end,
		Marketplace: p.Marketplace,
		Status:      p.Status,
		Limit:       rowCaps[TypeOrderDetail],
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	data := newReportData("Order Detail")
	data.Headers = []string{"Order ID", "Date", "Marketplace", "Customer", "Status", "Items", "Revenue", "Fees"}
	for _, o := range orders {
		fees := o.ShippingFee + o.MarketplaceFee
		data.Rows = append(data.Rows, []any{
			o.OrderID, o.CreatedAt.UTC().Format(dateLayout), o.Marketplace,
			o.CustomerID, o.Status, int64(o.ItemCount), o.Revenue, fees,
		})
		data.Summary["total_orders"]++
		data.Summary["total_items"] += float64(o.ItemCount)
		data.Summary["total_revenue"] += o.Revenue
		data.Summary["total_fees"] += fees
	}
	return data, nil
}

func (c *Collector) collectCustomerAnalysis(ctx context.Context, p Params) (*ReportData, error) {
	start, end := p.timeRange()
	customers, err := c.store.AggregateCustomers(ctx, storage.OrderFilter{
		Start:       start,
		End:         end,
		Marketplace: p.Marketplace,
		Limit:       rowCaps[TypeCustomerAnalysis],
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate customers: %w", err)
	}

	data := newReportData("Customer Analysis")
	data.Headers = []string{"Customer", "Country", "Orders", "Revenue", "Avg Order Value", "Last Order"}
	for _, cu := range customers {
		data.Rows = append(data.Rows, []any{
			cu.CustomerID, cu.Country, int64(cu.OrderCount), cu.Revenue,
			cu.AvgOrderValue, cu.LastOrderAt.UTC().Format(dateLayout),
		})
		data.Summary["total_customers"]++
		data.Summary["total_orders"] += float64(cu.OrderCount)
		data.Summary["total_revenue"] += cu.Revenue
	}
	if data.Summary["total_customers"] > 0 {
		data.Summary["avg_revenue_per_customer"] = data.Summary["total_revenue"] / data.Summary["total_customers"]
	}
	return data, nil
}

func (c *Collector) collectProfitAnalysis(ctx context.Context, p Params) (*ReportData, error) {
	points, err := c.store.AggregateProfitByPeriod(ctx, storage.SalesSummaryFilter{
		StartPeriod: p.StartDate,
		EndPeriod:   p.EndDate,
		Marketplace: p.Marketplace,
		Limit:       rowCaps[TypeProfitAnalysis],
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate profit: %w", err)
	}

	data := newReportData("Profit Analysis")
	data.Headers = []string{"Period", "Revenue", "Cost", "Profit", "Margin %"}
	var labels []string
	var series []float64
	for _, pt := range points {
		data.Rows = append(data.Rows, []any{pt.Period, pt.Revenue, pt.Cost, pt.Profit, pt.Margin})
		data.Summary["total_revenue"] += pt.Revenue
		data.Summary["total_cost"] += pt.Cost
		data.Summary["total_profit"] += pt.Profit
		labels = append(labels, pt.Period)
		series = append(series, pt.Profit)
	}
	if data.Summary["total_revenue"] > 0 {
		data.Summary["overall_margin"] = data.Summary["total_profit"] / data.Summary["total_revenue"] * 100
	}
	if len(labels) > 0 {
		data.Charts = append(data.Charts, Chart{
			Type: "line", Title: "Profit by day", Labels: labels, Series: series,
		})
	}
	return data, nil
}

func (c *Collector) collectMarketplaceComparison(ctx context.Context, p Params) (*ReportData, error) {
	start, end := p.timeRange()
	markets, err := c.store.AggregateMarketplaces(ctx, storage.OrderFilter{
		Start: start,
		End:   end,
		Limit: rowCaps[TypeMarketplaceComparison],
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate marketplaces: %w", err)
	}

	data := newReportData("Marketplace Comparison")
	data.Headers = []string{"Marketplace", "Orders", "Revenue", "Cost", "Shipping", "Fees", "Profit"}
	var labels []string
	var series []float64
	for _, m := range markets {
		data.Rows = append(data.Rows, []any{
			m.Marketplace, int64(m.OrderCount), m.Revenue, m.Cost,
			m.ShippingFees, m.MarketplaceFees, m.Profit,
		})
		data.Summary["total_orders"] += float64(m.OrderCount)
		data.Summary["total_revenue"] += m.Revenue
		data.Summary["total_profit"] += m.Profit
		labels = append(labels, m.Marketplace)
		series = append(series, m.Revenue)
	}
	if len(labels) > 0 {
		data.Charts = append(data.Charts, Chart{
			Type: "bar", Title: "Revenue by marketplace", Labels: labels, Series: series,
		})
	}
	return data, nil
}

func (c *Collector) collectAuditReport(ctx context.Context, p Params) (*ReportData, error) {
	start, end := p.timeRange()
	entries, err := c.store.ListAuditEntries(ctx, storage.AuditFilter{
		Start: start,
		End:   end,
		Actor: p.Actor,
		Limit: rowCaps[TypeAuditReport],
	})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	data := newReportData("Audit Report")
	data.Headers = []string{"Timestamp", "Actor", "Action", "Target", "Details", "IP"}
	for _, e := range entries {
		var target, details, ip any
		if e.Target != "" {
			target = e.Target
		}
		if e.Details != "" {
			details = e.Details
		}
		if e.IPAddress != "" {
			ip = e.IPAddress
		}
		data.Rows = append(data.Rows, []any{
			e.CreatedAt.UTC().Format(time.RFC3339), e.Actor, e.Action, target, details, ip,
		})
		data.Summary["total_entries"]++
	}
	return data, nil
}
