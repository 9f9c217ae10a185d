// Package report runs post-load analytics against the DuckDB
// destination. Records are stored as JSON payloads, so every query
// reads fields through DuckDB's JSON functions instead of assuming a
// relational schema.
package report

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jaffleworks/shop-etl/pkg/source"
)

// TableCount is the loaded row count for one endpoint.
type TableCount struct {
	Endpoint string
	Rows     int64
}

// ProductStat is one row of the top-products analysis.
type ProductStat struct {
	Product           string
	SKU               string
	TotalSales        int64
	UniqueCustomers   int64
	StoresSoldIn      int64
	TotalRevenue      float64
	AvgRevenuePerSale float64
	SupplyCost        float64
	GrossProfit       float64
	GrossMarginPct    float64
}

// CategoryStat is one row of the by-category rollup. Categories are the
// three-letter SKU prefix (e.g. JAF).
type CategoryStat struct {
	Category       string
	UniqueProducts int64
	TotalSales     int64
	TotalRevenue   float64
}

// SupplyStat is one row of the supply-chain analysis.
type SupplyStat struct {
	Name             string
	SKU              string
	UnitCost         float64
	Perishable       bool
	UnitsSold        int64
	CustomersReached int64
}

// Reporter executes reporting queries against the destination database.
type Reporter struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New creates a reporter over the destination handle.
func New(db *sql.DB) (*Reporter, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &Reporter{
		db:     db,
		logger: log.With().Str("component", "report").Logger(),
	}, nil
}

// Summarize counts loaded rows per endpoint. Endpoints whose table does
// not exist (nothing was ever loaded) are reported with zero rows.
func (r *Reporter) Summarize(ctx context.Context, endpoints []source.Endpoint) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(endpoints))
	var total int64

	for _, ep := range endpoints {
		var rows int64
		err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ep.Name).Scan(&rows)
		if err != nil {
			r.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Row count unavailable")
			counts = append(counts, TableCount{Endpoint: ep.Name})
			continue
		}
		counts = append(counts, TableCount{Endpoint: ep.Name, Rows: rows})
		total += rows

		r.logger.Info().
			Str("endpoint", ep.Name).
			Int64("rows", rows).
			Msg("Loaded rows")
	}

	r.logger.Info().Int64("total_rows", total).Msg("Load summary")

	return counts, nil
}

// topProductsQuery joins items to orders by order id and enriches with
// supply costs, all through JSON payload fields. Money fields arrive as
// strings like "$12,345.67".
const topProductsQuery = `
WITH product_sales AS (
    SELECT json_extract_string(i.payload, '$.sku') AS sku,
           COUNT(*) AS total_sales,
           COUNT(DISTINCT json_extract_string(o.payload, '$.customer_id')) AS unique_customers,
           COUNT(DISTINCT json_extract_string(o.payload, '$.store_id')) AS stores_sold_in,
           SUM(TRY_CAST(replace(replace(json_extract_string(o.payload, '$.order_total'), '$', ''), ',', '') AS DOUBLE)) AS total_revenue
    FROM items i
    JOIN orders o ON json_extract_string(i.payload, '$.order_id') = o.id
    GROUP BY 1
),
product_info AS (
    SELECT ps.*,
           json_extract_string(s.payload, '$.name') AS product_name,
           TRY_CAST(replace(replace(json_extract_string(s.payload, '$.cost'), '$', ''), ',', '') AS DOUBLE) AS supply_cost
    FROM product_sales ps
    LEFT JOIN supplies s ON ps.sku = json_extract_string(s.payload, '$.sku')
)
SELECT COALESCE(product_name, sku) AS product,
       sku,
       total_sales,
       unique_customers,
       stores_sold_in,
       COALESCE(total_revenue, 0) AS total_revenue,
       ROUND(COALESCE(total_revenue, 0) / total_sales, 2) AS avg_revenue_per_sale,
       COALESCE(supply_cost, 0) AS supply_cost,
       ROUND(COALESCE(total_revenue, 0) - total_sales * COALESCE(supply_cost, 0), 2) AS gross_profit,
       CASE WHEN COALESCE(total_revenue, 0) > 0
            THEN ROUND((COALESCE(total_revenue, 0) - total_sales * COALESCE(supply_cost, 0)) / total_revenue * 100, 2)
            ELSE 0 END AS gross_margin_pct
FROM product_info
ORDER BY total_sales DESC
LIMIT ?`

// TopProducts returns the most purchased products with revenue and
// profit figures.
func (r *Reporter) TopProducts(ctx context.Context, limit int) ([]ProductStat, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, topProductsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("top products query: %w", err)
	}
	defer rows.Close()

	var stats []ProductStat
	for rows.Next() {
		var ps ProductStat
		if err := rows.Scan(&ps.Product, &ps.SKU, &ps.TotalSales, &ps.UniqueCustomers,
			&ps.StoresSoldIn, &ps.TotalRevenue, &ps.AvgRevenuePerSale,
			&ps.SupplyCost, &ps.GrossProfit, &ps.GrossMarginPct); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		stats = append(stats, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top products rows: %w", err)
	}

	for _, ps := range stats {
		r.logger.Info().
			Str("product", ps.Product).
			Str("sku", ps.SKU).
			Int64("total_sales", ps.TotalSales).
			Int64("unique_customers", ps.UniqueCustomers).
			Int64("stores_sold_in", ps.StoresSoldIn).
			Float64("total_revenue", ps.TotalRevenue).
			Float64("avg_revenue_per_sale", ps.AvgRevenuePerSale).
			Float64("gross_profit", ps.GrossProfit).
			Float64("gross_margin_pct", ps.GrossMarginPct).
			Msg("Top product")
	}

	return stats, nil
}

const supplyChainQuery = `
WITH sku_performance AS (
    SELECT json_extract_string(i.payload, '$.sku') AS sku,
           COUNT(*) AS units_sold,
           COUNT(DISTINCT json_extract_string(o.payload, '$.customer_id')) AS customers_reached
    FROM items i
    JOIN orders o ON json_extract_string(i.payload, '$.order_id') = o.id
    GROUP BY 1
)
SELECT COALESCE(json_extract_string(s.payload, '$.name'), '') AS supply_name,
       COALESCE(json_extract_string(s.payload, '$.sku'), '') AS sku,
       COALESCE(TRY_CAST(replace(json_extract_string(s.payload, '$.cost'), '$', '') AS DOUBLE), 0) AS unit_cost,
       COALESCE(TRY_CAST(json_extract_string(s.payload, '$.perishable') AS BOOLEAN), false) AS perishable,
       COALESCE(sp.units_sold, 0) AS units_sold,
       COALESCE(sp.customers_reached, 0) AS customers_reached
FROM supplies s
LEFT JOIN sku_performance sp ON json_extract_string(s.payload, '$.sku') = sp.sku
ORDER BY units_sold DESC
LIMIT ?`

// SupplyChain returns supply performance joined against item sales.
func (r *Reporter) SupplyChain(ctx context.Context, limit int) ([]SupplyStat, error) {
	if limit <= 0 {
		limit = 15
	}

	rows, err := r.db.QueryContext(ctx, supplyChainQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("supply chain query: %w", err)
	}
	defer rows.Close()

	var stats []SupplyStat
	for rows.Next() {
		var ss SupplyStat
		if err := rows.Scan(&ss.Name, &ss.SKU, &ss.UnitCost, &ss.Perishable,
			&ss.UnitsSold, &ss.CustomersReached); err != nil {
			return nil, fmt.Errorf("scan supply row: %w", err)
		}
		stats = append(stats, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("supply chain rows: %w", err)
	}

	for _, ss := range stats {
		r.logger.Info().
			Str("supply", ss.Name).
			Str("sku", ss.SKU).
			Float64("unit_cost", ss.UnitCost).
			Bool("perishable", ss.Perishable).
			Int64("units_sold", ss.UnitsSold).
			Msg("Supply performance")
	}

	return stats, nil
}

const categoriesQuery = `
SELECT substr(sku, 1, 3) AS category,
       COUNT(DISTINCT sku) AS unique_products,
       SUM(total_sales) AS total_category_sales,
       COALESCE(SUM(total_revenue), 0) AS total_category_revenue
FROM (
    SELECT json_extract_string(i.payload, '$.sku') AS sku,
           COUNT(*) AS total_sales,
           SUM(TRY_CAST(replace(replace(json_extract_string(o.payload, '$.order_total'), '$', ''), ',', '') AS DOUBLE)) AS total_revenue
    FROM items i
    JOIN orders o ON json_extract_string(i.payload, '$.order_id') = o.id
    GROUP BY 1
) sku_sales
GROUP BY 1
ORDER BY total_category_sales DESC`

// Categories rolls product sales up by SKU-prefix category.
func (r *Reporter) Categories(ctx context.Context) ([]CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx, categoriesQuery)
	if err != nil {
		return nil, fmt.Errorf("category rollup query: %w", err)
	}
	defer rows.Close()

	var stats []CategoryStat
	for rows.Next() {
		var cs CategoryStat
		if err := rows.Scan(&cs.Category, &cs.UniqueProducts, &cs.TotalSales, &cs.TotalRevenue); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		stats = append(stats, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("category rollup rows: %w", err)
	}

	for _, cs := range stats {
		r.logger.Info().
			Str("category", cs.Category).
			Int64("unique_products", cs.UniqueProducts).
			Int64("total_sales", cs.TotalSales).
			Float64("total_revenue", cs.TotalRevenue).
			Msg("Category performance")
	}

	return stats, nil
}
