package newbusiness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func pid(id int64) *int64 { return &id }

type txSpec struct {
	date    string
	invoice string
	rep     int64
	repName string
	split   float64
	cust    int64
	prod    int64
	revenue float64
	gp      float64
}

func tx(spec txSpec) Transaction {
	t := Transaction{
		InvoiceDate:      d(spec.date),
		InvoiceID:        spec.invoice,
		SalespersonID:    spec.rep,
		SalespersonName:  spec.repName,
		SplitRatePercent: spec.split,
		CustomerID:       spec.cust,
		RevenueUSD:       spec.revenue,
		GrossProfitUSD:   spec.gp,
	}
	if spec.prod != 0 {
		t.ProductID = pid(spec.prod)
	}
	if t.SplitRatePercent == 0 {
		t.SplitRatePercent = 100
	}
	return t
}

func TestNewCustomersDeterministic(t *testing.T) {
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2024-03-01", invoice: "I1", rep: 1, cust: 10, prod: 100, revenue: 50}),
		tx(txSpec{date: "2024-03-05", invoice: "I2", rep: 2, cust: 11, prod: 100, revenue: 75}),
		tx(txSpec{date: "2024-03-05", invoice: "I3", rep: 1, cust: 12, prod: 101, revenue: 20}),
	}, Options{ExcludeInternal: true})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	first := calc.NewCustomers(win, nil)
	second := calc.NewCustomers(win, nil)
	require.Equal(t, first, second)
	require.Len(t, first, 3)
	// Most recent first dates first.
	assert.Equal(t, d("2024-03-05"), first[0].FirstInvoiceDate)
	assert.Equal(t, d("2024-03-01"), first[2].FirstInvoiceDate)
}

func TestNewCustomersUsesGlobalFirstDate(t *testing.T) {
	// Customer 10 transacted with rep 2 two years before rep 1 ever saw them.
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2022-05-01", invoice: "OLD", rep: 2, cust: 10, prod: 100, revenue: 10}),
		tx(txSpec{date: "2024-05-01", invoice: "NEW", rep: 1, cust: 10, prod: 100, revenue: 90}),
	}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	require.Empty(t, calc.NewCustomers(win, nil))
	require.Empty(t, calc.NewCustomers(win, []int64{1}))
}

func TestSplitCreditOnSharedFirstInvoice(t *testing.T) {
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2024-06-15", invoice: "I9", rep: 1, repName: "Mora", split: 60, cust: 10, prod: 100, revenue: 600}),
		tx(txSpec{date: "2024-06-15", invoice: "I9", rep: 2, repName: "Silva", split: 40, cust: 10, prod: 100, revenue: 400}),
	}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	rows := calc.NewCustomers(win, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, 60.0, rows[0].SplitRatePercent)
	assert.Equal(t, 40.0, rows[1].SplitRatePercent)

	summary := calc.Summarize(win, nil)
	assert.InDelta(t, 1.0, summary.NewCustomerCount, 1e-9)
}

func TestSalespersonDedupOnFirstInvoiceLines(t *testing.T) {
	// Same rep on two product lines of the same first-day invoice counts once.
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2024-06-15", invoice: "I9", rep: 1, cust: 10, prod: 100, revenue: 10}),
		tx(txSpec{date: "2024-06-15", invoice: "I9", rep: 1, cust: 10, prod: 101, revenue: 20}),
	}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	require.Len(t, calc.NewCustomers(win, nil), 1)
}

func TestNewComboIndependentOfNewCustomer(t *testing.T) {
	// Customer 10 is old news; product 200 is brand new to everyone.
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2022-01-10", invoice: "I1", rep: 1, cust: 10, prod: 100, revenue: 10}),
		tx(txSpec{date: "2024-04-02", invoice: "I2", rep: 1, cust: 10, prod: 200, revenue: 55}),
	}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	require.Empty(t, calc.NewCustomers(win, nil))

	products := calc.NewProducts(win, nil)
	require.Len(t, products, 1)
	assert.Equal(t, "200", products[0].ProductKey)

	combos := calc.NewCombos(win, nil)
	require.Len(t, combos, 1)
	assert.Equal(t, int64(10), combos[0].CustomerID)
	assert.Equal(t, "200", combos[0].ProductKey)
}

func TestRevenueIncludesRepeatOrders(t *testing.T) {
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2024-07-01", invoice: "I1", rep: 1, cust: 10, prod: 100, revenue: 100, gp: 40}),
		tx(txSpec{date: "2024-07-05", invoice: "I2", rep: 1, cust: 10, prod: 100, revenue: 150, gp: 60}),
		tx(txSpec{date: "2024-07-10", invoice: "I3", rep: 1, cust: 10, prod: 100, revenue: 250, gp: 90}),
	}, Options{})

	win := Window{Start: d("2024-07-01"), End: d("2024-07-31")}

	combos := calc.NewCombos(win, nil)
	require.Len(t, combos, 1)
	assert.Equal(t, d("2024-07-01"), combos[0].FirstComboDate)

	revenue := calc.RevenueBySalesperson(win, nil)
	require.Len(t, revenue, 1)
	assert.InDelta(t, 500.0, revenue[0].RevenueUSD, 1e-9)
	assert.InDelta(t, 190.0, revenue[0].GrossProfitUSD, 1e-9)
	assert.Equal(t, 1, revenue[0].ComboCount)

	detail := calc.RevenueDetail(win, nil)
	require.Len(t, detail, 1)
	assert.Equal(t, 3, detail[0].Orders)
	assert.InDelta(t, 500.0, detail[0].RevenueUSD, 1e-9)
	assert.Equal(t, d("2024-07-01"), detail[0].FirstComboDate)
}

func TestRepeatOrdersOutsideWindowExcluded(t *testing.T) {
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2024-07-01", invoice: "I1", rep: 1, cust: 10, prod: 100, revenue: 100}),
		tx(txSpec{date: "2024-09-05", invoice: "I2", rep: 1, cust: 10, prod: 100, revenue: 999}),
	}, Options{})

	win := Window{Start: d("2024-07-01"), End: d("2024-07-31")}
	revenue := calc.RevenueBySalesperson(win, nil)
	require.Len(t, revenue, 1)
	assert.InDelta(t, 100.0, revenue[0].RevenueUSD, 1e-9)
}

func TestInternalCustomerExclusion(t *testing.T) {
	internal := tx(txSpec{date: "2024-02-01", invoice: "I1", rep: 1, cust: 10, prod: 100, revenue: 10})
	internal.CustomerType = "Internal"
	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}

	excluded := NewCalculator([]Transaction{internal}, Options{ExcludeInternal: true})
	require.Empty(t, excluded.NewCustomers(win, nil))
	require.Empty(t, excluded.NewProducts(win, nil))
	require.Empty(t, excluded.NewCombos(win, nil))
	assert.Zero(t, excluded.Summarize(win, nil).NewBusinessRevenue)

	included := NewCalculator([]Transaction{internal}, Options{ExcludeInternal: false})
	require.Len(t, included.NewCustomers(win, nil), 1)
}

func TestWindowBoundariesInclusive(t *testing.T) {
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2024-01-01", invoice: "I1", rep: 1, cust: 10, prod: 100, revenue: 10}),
		tx(txSpec{date: "2024-12-31", invoice: "I2", rep: 1, cust: 11, prod: 101, revenue: 20}),
		tx(txSpec{date: "2023-12-31", invoice: "I3", rep: 1, cust: 12, prod: 102, revenue: 30}),
		tx(txSpec{date: "2025-01-01", invoice: "I4", rep: 1, cust: 13, prod: 103, revenue: 40}),
	}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	rows := calc.NewCustomers(win, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(11), rows[0].CustomerID)
	assert.Equal(t, int64(10), rows[1].CustomerID)
}

func TestSalespersonFilter(t *testing.T) {
	calc := NewCalculator([]Transaction{
		tx(txSpec{date: "2024-03-01", invoice: "I1", rep: 1, cust: 10, prod: 100, revenue: 10}),
		tx(txSpec{date: "2024-03-02", invoice: "I2", rep: 2, cust: 11, prod: 101, revenue: 20}),
	}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	rows := calc.NewCustomers(win, []int64{2})
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].SalespersonID)
}

func TestMissingProductKeyRetainedForCustomers(t *testing.T) {
	noKey := tx(txSpec{date: "2024-03-01", invoice: "I1", rep: 1, cust: 10, revenue: 10})
	calc := NewCalculator([]Transaction{noKey}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	require.Len(t, calc.NewCustomers(win, nil), 1)
	require.Empty(t, calc.NewProducts(win, nil))
	require.Empty(t, calc.NewCombos(win, nil))
}

func TestLegacyProductCodeFallback(t *testing.T) {
	legacy := tx(txSpec{date: "2024-03-01", invoice: "I1", rep: 1, cust: 10, revenue: 10})
	legacy.LegacyProductCode = "LGC-7"
	calc := NewCalculator([]Transaction{legacy}, Options{})

	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}
	products := calc.NewProducts(win, nil)
	require.Len(t, products, 1)
	assert.Equal(t, "LGC-7", products[0].ProductKey)
}

func TestEmptyInput(t *testing.T) {
	calc := NewCalculator(nil, Options{ExcludeInternal: true})
	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}

	assert.Empty(t, calc.NewCustomers(win, nil))
	assert.Empty(t, calc.NewProducts(win, nil))
	assert.Empty(t, calc.NewCombos(win, nil))
	assert.Empty(t, calc.RevenueBySalesperson(win, nil))
	assert.Empty(t, calc.RevenueDetail(win, nil))
	assert.Equal(t, Summary{}, calc.Summarize(win, nil))
}

func TestEndToEndScenario(t *testing.T) {
	rows := []Transaction{
		tx(txSpec{date: "2023-01-01", invoice: "I1", rep: 1, repName: "S1", split: 100, cust: 1, prod: 10, revenue: 100}),
		tx(txSpec{date: "2024-06-15", invoice: "I2", rep: 1, repName: "S1", split: 70, cust: 1, prod: 11, revenue: 70}),
		tx(txSpec{date: "2024-06-15", invoice: "I2", rep: 2, repName: "S2", split: 30, cust: 1, prod: 11, revenue: 30}),
	}
	calc := NewCalculator(rows, Options{ExcludeInternal: true})
	win := Window{Start: d("2024-01-01"), End: d("2024-12-31")}

	combos := calc.NewCombos(win, nil)
	require.Len(t, combos, 2)
	for _, combo := range combos {
		assert.Equal(t, int64(1), combo.CustomerID)
		assert.Equal(t, "11", combo.ProductKey)
		assert.Equal(t, d("2024-06-15"), combo.FirstComboDate)
	}
	assert.Equal(t, 70.0, combos[0].SplitRatePercent)
	assert.Equal(t, 30.0, combos[1].SplitRatePercent)

	require.Empty(t, calc.NewCustomers(win, nil), "customer existed since 2023")

	products := calc.NewProducts(win, nil)
	require.Len(t, products, 2)
	assert.Equal(t, "11", products[0].ProductKey)

	summary := calc.Summarize(win, nil)
	assert.Equal(t, 1, summary.NewComboCount)
	assert.InDelta(t, 100.0, summary.NewBusinessRevenue, 1e-9)
}
