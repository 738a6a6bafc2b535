// Package newbusiness computes first-occurrence ("new business") analytics
// over the unified sales transaction log: which customers, products and
// customer-product combinations were won for the first time inside a
// reporting window, who gets credit, and what revenue resulted.
package newbusiness

import (
	"strconv"
	"strings"
	"time"
)

// Transaction is one split-adjusted invoice line from the unified sales view.
// Monetary values arrive pre-multiplied by SplitRatePercent; the same invoice
// line may appear once per crediting salesperson with different splits.
type Transaction struct {
	InvoiceDate       time.Time
	InvoiceID         string
	SalespersonID     int64
	SalespersonName   string
	SplitRatePercent  float64
	CustomerID        int64
	CustomerName      string
	CustomerCode      string
	CustomerType      string
	ProductID         *int64
	LegacyProductCode string
	ProductName       string
	PackageSize       string
	Brand             string
	RevenueUSD        float64
	GrossProfitUSD    float64
	GP1USD            float64
}

// productKey coalesces ProductID and LegacyProductCode into a stable product
// identity. Empty means the row cannot participate in product or combo
// analysis.
func (t Transaction) productKey() string {
	if t.ProductID != nil {
		return strconv.FormatInt(*t.ProductID, 10)
	}
	return strings.TrimSpace(t.LegacyProductCode)
}

// comboKey identifies a customer-product relationship.
type comboKey struct {
	customer int64
	product  string
}

// Window is an inclusive reporting date range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether d falls inside the window, boundaries included.
func (w Window) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Options control calculator construction.
type Options struct {
	// ExcludeInternal drops rows whose customer type is "internal"
	// (case-insensitive) before any index is built.
	ExcludeInternal bool
	// LookbackYears records the history depth the transaction log covers.
	// Informational; the calculator indexes whatever it is given.
	LookbackYears int
}

// CustomerCredit credits one salesperson for a customer's first-ever invoice
// day. Credit is not divided further; callers aggregate fractionally using
// SplitRatePercent.
type CustomerCredit struct {
	CustomerID       int64     `json:"customer_id"`
	CustomerName     string    `json:"customer_name"`
	CustomerCode     string    `json:"customer_code"`
	FirstInvoiceDate time.Time `json:"first_invoice_date"`
	SalespersonID    int64     `json:"salesperson_id"`
	SalespersonName  string    `json:"salesperson_name"`
	SplitRatePercent float64   `json:"split_rate_percent"`
}

// ProductCredit credits one salesperson for a product's first-ever sale day.
type ProductCredit struct {
	ProductKey       string    `json:"product_key"`
	ProductName      string    `json:"product_name"`
	Brand            string    `json:"brand"`
	PackageSize      string    `json:"package_size"`
	FirstSaleDate    time.Time `json:"first_sale_date"`
	SalespersonID    int64     `json:"salesperson_id"`
	SalespersonName  string    `json:"salesperson_name"`
	SplitRatePercent float64   `json:"split_rate_percent"`
}

// ComboCredit is one first-day line of a newly won customer-product pair.
type ComboCredit struct {
	CustomerID       int64     `json:"customer_id"`
	CustomerName     string    `json:"customer_name"`
	ProductKey       string    `json:"product_key"`
	ProductName      string    `json:"product_name"`
	FirstComboDate   time.Time `json:"first_combo_date"`
	SalespersonID    int64     `json:"salesperson_id"`
	SalespersonName  string    `json:"salesperson_name"`
	SplitRatePercent float64   `json:"split_rate_percent"`
	RevenueUSD       float64   `json:"revenue_usd"`
	GrossProfitUSD   float64   `json:"gross_profit_usd"`
	GP1USD           float64   `json:"gp1_usd"`
}

// RevenueSummary aggregates all in-window revenue from new combos for one
// salesperson, repeat orders included.
type RevenueSummary struct {
	SalespersonID   int64   `json:"salesperson_id"`
	SalespersonName string  `json:"salesperson_name"`
	RevenueUSD      float64 `json:"revenue_usd"`
	GrossProfitUSD  float64 `json:"gross_profit_usd"`
	GP1USD          float64 `json:"gp1_usd"`
	ComboCount      int     `json:"combo_count"`
}

// RevenueLine is the per-combo detail behind RevenueSummary.
type RevenueLine struct {
	CustomerID      int64     `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	ProductKey      string    `json:"product_key"`
	ProductName     string    `json:"product_name"`
	SalespersonID   int64     `json:"salesperson_id"`
	SalespersonName string    `json:"salesperson_name"`
	FirstComboDate  time.Time `json:"first_combo_date"`
	Orders          int       `json:"orders"`
	RevenueUSD      float64   `json:"revenue_usd"`
	GrossProfitUSD  float64   `json:"gross_profit_usd"`
	GP1USD          float64   `json:"gp1_usd"`
}

// Summary is the metric-card reduction over one reporting window.
//
// Customer and product counts are fractional: each crediting salesperson
// contributes their split percentage, so a customer shared 60/40 across two
// reps totals 1.0 but shows 0.6 and 0.4 on the respective dashboards. Combo
// wins are discrete events and counted whole. The asymmetry is a business
// definition, not an accident.
type Summary struct {
	NewCustomerCount   float64 `json:"new_customer_count"`
	NewProductCount    float64 `json:"new_product_count"`
	NewComboCount      int     `json:"new_combo_count"`
	NewBusinessRevenue float64 `json:"new_business_revenue"`
	NewBusinessGP      float64 `json:"new_business_gp"`
}
