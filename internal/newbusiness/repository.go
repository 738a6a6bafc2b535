package newbusiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDataContract signals that the warehouse view no longer matches the
// column contract this core depends on. It is a deployment defect, not a
// condition to recover from.
var ErrDataContract = errors.New("newbusiness: warehouse data contract violation")

// LoadParams scope one transaction-log load.
type LoadParams struct {
	// AsOf is the reporting period end date; the load covers the lookback
	// window ending here.
	AsOf time.Time
	// LookbackYears is the history depth to pull, default 5 upstream.
	LookbackYears int
	// IncludeServices keeps service-type products in the load. Dashboards
	// exclude them so service renewals do not count as new product wins.
	IncludeServices bool
}

// Repository loads the unified sales transaction log from the warehouse.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the warehouse pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const transactionQuery = `
SELECT
    invoice_date,
    invoice_id,
    salesperson_id,
    salesperson_name,
    split_rate_percent,
    customer_id,
    customer_name,
    customer_code,
    customer_type,
    product_id,
    legacy_product_code,
    product_name,
    package_size,
    brand,
    revenue_usd,
    gross_profit_usd,
    gp1_usd
FROM unified_sales_by_salesperson_view
WHERE invoice_date > $1::date - make_interval(years => $2)
  AND invoice_date <= $1::date
  AND ($3::boolean OR COALESCE(is_service, FALSE) = FALSE)
ORDER BY invoice_date, invoice_id`

// LoadTransactions pulls every split-adjusted invoice line in the lookback
// window ending at params.AsOf. Rows arrive ordered by date so downstream
// results are stable across reloads.
func (r *Repository) LoadTransactions(ctx context.Context, params LoadParams) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, transactionQuery, params.AsOf, params.LookbackYears, params.IncludeServices)
	if err != nil {
		return nil, wrapContractErr("query unified sales view", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, 4096)
	for rows.Next() {
		var (
			invoiceDate pgtype.Date
			invoiceID   pgtype.Text
			repID       pgtype.Int8
			repName     pgtype.Text
			split       pgtype.Float8
			custID      pgtype.Int8
			custName    pgtype.Text
			custCode    pgtype.Text
			custType    pgtype.Text
			productID   pgtype.Int8
			legacyCode  pgtype.Text
			productName pgtype.Text
			packageSize pgtype.Text
			brand       pgtype.Text
			revenue     pgtype.Float8
			gp          pgtype.Float8
			gp1         pgtype.Float8
		)
		if err := rows.Scan(
			&invoiceDate, &invoiceID, &repID, &repName, &split,
			&custID, &custName, &custCode, &custType,
			&productID, &legacyCode, &productName, &packageSize, &brand,
			&revenue, &gp, &gp1,
		); err != nil {
			return nil, wrapContractErr("scan unified sales row", err)
		}
		tx := Transaction{
			InvoiceID:         invoiceID.String,
			SalespersonID:     repID.Int64,
			SalespersonName:   repName.String,
			SplitRatePercent:  split.Float64,
			CustomerID:        custID.Int64,
			CustomerName:      custName.String,
			CustomerCode:      custCode.String,
			CustomerType:      custType.String,
			LegacyProductCode: legacyCode.String,
			ProductName:       productName.String,
			PackageSize:       packageSize.String,
			Brand:             brand.String,
			RevenueUSD:        revenue.Float64,
			GrossProfitUSD:    gp.Float64,
			GP1USD:            gp1.Float64,
		}
		if invoiceDate.Valid {
			tx.InvoiceDate = invoiceDate.Time
		}
		if productID.Valid {
			id := productID.Int64
			tx.ProductID = &id
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("newbusiness: read unified sales view: %w", err)
	}
	return out, nil
}

// wrapContractErr folds schema-level Postgres failures into ErrDataContract
// so callers can distinguish a broken view from a transient outage.
func wrapContractErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "42703", "42804": // undefined table, undefined column, datatype mismatch
			return fmt.Errorf("%w: %s: %s", ErrDataContract, op, pgErr.Message)
		}
	}
	return fmt.Errorf("newbusiness: %s: %w", op, err)
}
