package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UpsertProduct creates or updates a product keyed by (sku, marketplace).
func (s *BaseStore) UpsertProduct(ctx context.Context, p *Product) error {
	if p == nil {
		return fmt.Errorf("product required")
	}
	if p.SKU == "" {
		return fmt.Errorf("sku required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO products (sku, title, marketplace, status, price, cost, stock, sold_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		` + s.dialect.UpsertConflict([]string{"sku", "marketplace"}) + `
			title = excluded.title,
			status = excluded.status,
			price = excluded.price,
			cost = excluded.cost,
			stock = excluded.stock,
			sold_count = excluded.sold_count
	`

	_, err := s.execContext(ctx, query,
		p.SKU, p.Title, p.Marketplace, p.Status, p.Price, p.Cost,
		p.Stock, p.SoldCount, p.CreatedAt)
	return err
}

// ListProducts returns products matching the filter.
func (s *BaseStore) ListProducts(ctx context.Context, f ProductFilter) ([]*Product, error) {
	var where []string
	var args []interface{}

	if f.Marketplace != "" {
		where = append(where, "marketplace = ?")
		args = append(args, f.Marketplace)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.MaxStock != nil {
		where = append(where, "stock <= ?")
		args = append(args, *f.MaxStock)
	}

	query := `
		SELECT id, sku, title, marketplace, status, price, cost, stock, sold_count, created_at
		FROM products
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.SortBySold {
		query += " ORDER BY sold_count DESC, sku ASC"
	} else {
		query += " ORDER BY sku ASC, marketplace ASC"
	}
	query += " " + s.dialect.LimitOffset(f.Limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Title, &p.Marketplace, &p.Status,
			&p.Price, &p.Cost, &p.Stock, &p.SoldCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// InsertOrder stores one ingested order.
func (s *BaseStore) InsertOrder(ctx context.Context, o *Order) error {
	if o == nil {
		return fmt.Errorf("order required")
	}
	if o.OrderID == "" {
		return fmt.Errorf("order id required")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO orders (order_id, marketplace, customer_id, customer_country, status,
			item_count, revenue, cost, shipping_fee, marketplace_fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.execContext(ctx, query,
		o.OrderID, o.Marketplace, o.CustomerID, o.CustomerCountry, o.Status,
		o.ItemCount, o.Revenue, o.Cost, o.ShippingFee, o.MarketplaceFee, o.CreatedAt)
	return err
}

// orderWhere builds the shared WHERE clause for order queries.
func orderWhere(f OrderFilter) (string, []interface{}) {
	var where []string
	var args []interface{}

	if f.Start != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		where = append(where, "created_at <= ?")
		args = append(args, *f.End)
	}
	if f.Marketplace != "" {
		where = append(where, "marketplace = ?")
		args = append(args, f.Marketplace)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListOrders returns orders matching the filter, newest first.
func (s *BaseStore) ListOrders(ctx context.Context, f OrderFilter) ([]*Order, error) {
	whereClause, args := orderWhere(f)

	query := `
		SELECT id, order_id, marketplace, customer_id, customer_country, status,
		       item_count, revenue, cost, shipping_fee, marketplace_fee, created_at
		FROM orders
	` + whereClause + " ORDER BY created_at DESC, order_id DESC " + s.dialect.LimitOffset(f.Limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderID, &o.Marketplace, &o.CustomerID,
			&o.CustomerCountry, &o.Status, &o.ItemCount, &o.Revenue, &o.Cost,
			&o.ShippingFee, &o.MarketplaceFee, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// AggregateCustomers groups orders by customer, highest spend first.
func (s *BaseStore) AggregateCustomers(ctx context.Context, f OrderFilter) ([]*CustomerStats, error) {
	whereClause, args := orderWhere(f)

	query := `
		SELECT customer_id, MAX(customer_country), COUNT(*),
		       COALESCE(SUM(revenue), 0), COALESCE(AVG(revenue), 0), MAX(created_at)
		FROM orders
	` + whereClause + `
		GROUP BY customer_id
		ORDER BY SUM(revenue) DESC, customer_id ASC
	` + s.dialect.LimitOffset(f.Limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*CustomerStats
	for rows.Next() {
		var c CustomerStats
		if err := rows.Scan(&c.CustomerID, &c.Country, &c.OrderCount,
			&c.Revenue, &c.AvgOrderValue, &c.LastOrderAt); err != nil {
			return nil, err
		}
		stats = append(stats, &c)
	}
	return stats, rows.Err()
}

// AggregateMarketplaces groups orders by marketplace, highest revenue first.
// Profit here is revenue minus cost, shipping and marketplace fees.
func (s *BaseStore) AggregateMarketplaces(ctx context.Context, f OrderFilter) ([]*MarketplaceStats, error) {
	whereClause, args := orderWhere(f)

	query := `
		SELECT marketplace, COUNT(*),
		       COALESCE(SUM(revenue), 0), COALESCE(SUM(cost), 0),
		       COALESCE(SUM(shipping_fee), 0), COALESCE(SUM(marketplace_fee), 0),
		       COALESCE(SUM(revenue - cost - shipping_fee - marketplace_fee), 0)
		FROM orders
	` + whereClause + `
		GROUP BY marketplace
		ORDER BY SUM(revenue) DESC, marketplace ASC
	` + s.dialect.LimitOffset(f.Limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*MarketplaceStats
	for rows.Next() {
		var m MarketplaceStats
		if err := rows.Scan(&m.Marketplace, &m.OrderCount, &m.Revenue, &m.Cost,
			&m.ShippingFees, &m.MarketplaceFees, &m.Profit); err != nil {
			return nil, err
		}
		stats = append(stats, &m)
	}
	return stats, rows.Err()
}

// UpsertSalesSummary creates or replaces one daily rollup row.
func (s *BaseStore) UpsertSalesSummary(ctx context.Context, sum *SalesSummary) error {
	if sum == nil {
		return fmt.Errorf("summary required")
	}
	if sum.Period == "" {
		return fmt.Errorf("period required")
	}

	query := `
		INSERT INTO sales_summaries (period, marketplace, order_count, units, revenue, cost, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		` + s.dialect.UpsertConflict([]string{"period", "marketplace"}) + `
			order_count = excluded.order_count,
			units = excluded.units,
			revenue = excluded.revenue,
			cost = excluded.cost,
			profit = excluded.profit
	`

	_, err := s.execContext(ctx, query,
		sum.Period, sum.Marketplace, sum.OrderCount, sum.Units,
		sum.Revenue, sum.Cost, sum.Profit)
	return err
}

// summaryWhere builds the shared WHERE clause for rollup queries.
func summaryWhere(f SalesSummaryFilter) (string, []interface{}) {
	var where []string
	var args []interface{}

	if f.StartPeriod != "" {
		where = append(where, "period >= ?")
		args = append(args, f.StartPeriod)
	}
	if f.EndPeriod != "" {
		where = append(where, "period <= ?")
		args = append(args, f.EndPeriod)
	}
	if f.Marketplace != "" {
		where = append(where, "marketplace = ?")
		args = append(args, f.Marketplace)
	}

	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListSalesSummaries returns daily rollups in period order.
func (s *BaseStore) ListSalesSummaries(ctx context.Context, f SalesSummaryFilter) ([]*SalesSummary, error) {
	whereClause, args := summaryWhere(f)

	query := `
		SELECT id, period, marketplace, order_count, units, revenue, cost, profit
		FROM sales_summaries
	` + whereClause + " ORDER BY period ASC, marketplace ASC " + s.dialect.LimitOffset(f.Limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*SalesSummary
	for rows.Next() {
		var sum SalesSummary
		if err := rows.Scan(&sum.ID, &sum.Period, &sum.Marketplace, &sum.OrderCount,
			&sum.Units, &sum.Revenue, &sum.Cost, &sum.Profit); err != nil {
			return nil, err
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// AggregateProfitByPeriod sums rollups across marketplaces per day.
// Margin is computed here so every renderer shows the same number.
func (s *BaseStore) AggregateProfitByPeriod(ctx context.Context, f SalesSummaryFilter) ([]*ProfitPoint, error) {
	whereClause, args := summaryWhere(f)

	query := `
		SELECT period,
		       COALESCE(SUM(revenue), 0), COALESCE(SUM(cost), 0), COALESCE(SUM(profit), 0)
		FROM sales_summaries
	` + whereClause + `
		GROUP BY period
		ORDER BY period ASC
	` + s.dialect.LimitOffset(f.Limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []*ProfitPoint
	for rows.Next() {
		var p ProfitPoint
		if err := rows.Scan(&p.Period, &p.Revenue, &p.Cost, &p.Profit); err != nil {
			return nil, err
		}
		if p.Revenue != 0 {
			p.Margin = p.Profit / p.Revenue * 100
		}
		points = append(points, &p)
	}
	return points, rows.Err()
}

// SaveAuditEntry appends one audit log row.
func (s *BaseStore) SaveAuditEntry(ctx context.Context, e *AuditEntry) error {
	if e == nil {
		return fmt.Errorf("entry required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (actor, action, target, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := s.execContext(ctx, query,
		e.Actor, e.Action, e.Target, e.Details, e.IPAddress, e.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ListAuditEntries returns audit rows matching the filter, newest first.
func (s *BaseStore) ListAuditEntries(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	var where []string
	var args []interface{}

	if f.Start != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		where = append(where, "created_at <= ?")
		args = append(args, *f.End)
	}
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}

	query := `
		SELECT id, actor, action, target, details, ip_address, created_at
		FROM audit_logs
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC " + s.dialect.LimitOffset(f.Limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target,
			&e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
