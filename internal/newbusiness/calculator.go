package newbusiness

import (
	"sort"
	"time"
)

// Calculator answers new-business queries against a transaction log loaded
// once per reporting session. Construction preprocesses the log and builds
// the first-occurrence indexes; every query afterwards is a filter and join
// against those indexes, never a rescan of raw history. The calculator holds
// no global state, performs no I/O and is safe for concurrent readers once
// built.
type Calculator struct {
	rows    []record
	idx     *FirstOccurrenceIndex
	dropped int
	opts    Options
}

// NewCalculator preprocesses raw transactions and precomputes the
// first-occurrence indexes. The raw slice is not retained.
func NewCalculator(raw []Transaction, opts Options) *Calculator {
	rows, dropped := preprocess(raw, opts.ExcludeInternal)
	return &Calculator{
		rows:    rows,
		idx:     buildIndex(rows),
		dropped: dropped,
		opts:    opts,
	}
}

// DroppedRows reports how many rows were discarded during preprocessing for
// unusable invoice dates.
func (c *Calculator) DroppedRows() int {
	return c.dropped
}

// Rows reports the size of the cleaned transaction log.
func (c *Calculator) Rows() int {
	return len(c.rows)
}

// Index exposes the read-only first-occurrence index.
func (c *Calculator) Index() *FirstOccurrenceIndex {
	return c.idx
}

// NewCustomers lists every salesperson credited on the first-ever invoice
// day of customers whose global first invoice falls inside the window.
// One row per (customer, salesperson), most recent first dates first.
func (c *Calculator) NewCustomers(win Window, salespersonIDs []int64) []CustomerCredit {
	fresh := make(map[int64]time.Time)
	for id, first := range c.idx.customerFirst {
		if win.Contains(first) {
			fresh[id] = first
		}
	}

	reps := idSet(salespersonIDs)
	seen := make(map[[2]int64]struct{})
	out := make([]CustomerCredit, 0)
	for _, row := range c.rows {
		first, ok := fresh[row.CustomerID]
		if !ok || !row.InvoiceDate.Equal(first) {
			continue
		}
		if !reps.allows(row.SalespersonID) {
			continue
		}
		key := [2]int64{row.CustomerID, row.SalespersonID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, CustomerCredit{
			CustomerID:       row.CustomerID,
			CustomerName:     row.CustomerName,
			CustomerCode:     row.CustomerCode,
			FirstInvoiceDate: first,
			SalespersonID:    row.SalespersonID,
			SalespersonName:  row.SalespersonName,
			SplitRatePercent: row.SplitRatePercent,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstInvoiceDate.Equal(out[j].FirstInvoiceDate) {
			return out[i].FirstInvoiceDate.After(out[j].FirstInvoiceDate)
		}
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		return out[i].SalespersonID < out[j].SalespersonID
	})
	return out
}

// NewProducts lists every salesperson credited on the first-ever sale day of
// products whose global first sale falls inside the window. Service-type
// products must be excluded upstream when desired; the index is agnostic and
// works off whatever transaction set it was built from.
func (c *Calculator) NewProducts(win Window, salespersonIDs []int64) []ProductCredit {
	fresh := make(map[string]time.Time)
	for key, first := range c.idx.productFirst {
		if win.Contains(first) {
			fresh[key] = first
		}
	}

	reps := idSet(salespersonIDs)
	type dedupKey struct {
		product     string
		salesperson int64
	}
	seen := make(map[dedupKey]struct{})
	out := make([]ProductCredit, 0)
	for _, row := range c.rows {
		if row.product == "" {
			continue
		}
		first, ok := fresh[row.product]
		if !ok || !row.InvoiceDate.Equal(first) {
			continue
		}
		if !reps.allows(row.SalespersonID) {
			continue
		}
		key := dedupKey{product: row.product, salesperson: row.SalespersonID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ProductCredit{
			ProductKey:       row.product,
			ProductName:      row.ProductName,
			Brand:            row.Brand,
			PackageSize:      row.PackageSize,
			FirstSaleDate:    first,
			SalespersonID:    row.SalespersonID,
			SalespersonName:  row.SalespersonName,
			SplitRatePercent: row.SplitRatePercent,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstSaleDate.Equal(out[j].FirstSaleDate) {
			return out[i].FirstSaleDate.After(out[j].FirstSaleDate)
		}
		if out[i].ProductKey != out[j].ProductKey {
			return out[i].ProductKey < out[j].ProductKey
		}
		return out[i].SalespersonID < out[j].SalespersonID
	})
	return out
}

// NewCombos lists the first-day occurrences of customer-product pairs whose
// global first co-occurrence falls inside the window. Only first-day lines
// appear here; RevenueBySalesperson covers repeat orders.
func (c *Calculator) NewCombos(win Window, salespersonIDs []int64) []ComboCredit {
	fresh := c.freshCombos(win)

	reps := idSet(salespersonIDs)
	type dedupKey struct {
		combo       comboKey
		salesperson int64
	}
	seen := make(map[dedupKey]struct{})
	out := make([]ComboCredit, 0)
	for _, row := range c.rows {
		if row.product == "" || !win.Contains(row.InvoiceDate) {
			continue
		}
		first, ok := fresh[row.combo()]
		if !ok || !row.InvoiceDate.Equal(first) {
			continue
		}
		if !reps.allows(row.SalespersonID) {
			continue
		}
		key := dedupKey{combo: row.combo(), salesperson: row.SalespersonID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ComboCredit{
			CustomerID:       row.CustomerID,
			CustomerName:     row.CustomerName,
			ProductKey:       row.product,
			ProductName:      row.ProductName,
			FirstComboDate:   first,
			SalespersonID:    row.SalespersonID,
			SalespersonName:  row.SalespersonName,
			SplitRatePercent: row.SplitRatePercent,
			RevenueUSD:       row.RevenueUSD,
			GrossProfitUSD:   row.GrossProfitUSD,
			GP1USD:           row.GP1USD,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstComboDate.Equal(out[j].FirstComboDate) {
			return out[i].FirstComboDate.After(out[j].FirstComboDate)
		}
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		if out[i].ProductKey != out[j].ProductKey {
			return out[i].ProductKey < out[j].ProductKey
		}
		return out[i].SalespersonID < out[j].SalespersonID
	})
	return out
}

// RevenueBySalesperson aggregates ALL in-window revenue generated by combos
// that are new in the window. A new pair that reorders within the same
// period contributes every order, not just the first.
func (c *Calculator) RevenueBySalesperson(win Window, salespersonIDs []int64) []RevenueSummary {
	fresh := c.freshCombos(win)
	reps := idSet(salespersonIDs)

	totals := make(map[int64]*RevenueSummary)
	combosPerRep := make(map[int64]map[comboKey]struct{})
	order := make([]int64, 0)
	for _, row := range c.rows {
		if row.product == "" || !win.Contains(row.InvoiceDate) {
			continue
		}
		if _, ok := fresh[row.combo()]; !ok {
			continue
		}
		if !reps.allows(row.SalespersonID) {
			continue
		}
		sum, ok := totals[row.SalespersonID]
		if !ok {
			sum = &RevenueSummary{SalespersonID: row.SalespersonID, SalespersonName: row.SalespersonName}
			totals[row.SalespersonID] = sum
			combosPerRep[row.SalespersonID] = make(map[comboKey]struct{})
			order = append(order, row.SalespersonID)
		}
		sum.RevenueUSD += row.RevenueUSD
		sum.GrossProfitUSD += row.GrossProfitUSD
		sum.GP1USD += row.GP1USD
		combosPerRep[row.SalespersonID][row.combo()] = struct{}{}
	}

	out := make([]RevenueSummary, 0, len(order))
	for _, id := range order {
		sum := totals[id]
		sum.ComboCount = len(combosPerRep[id])
		out = append(out, *sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RevenueUSD != out[j].RevenueUSD {
			return out[i].RevenueUSD > out[j].RevenueUSD
		}
		return out[i].SalespersonID < out[j].SalespersonID
	})
	return out
}

// RevenueDetail breaks RevenueBySalesperson down to one line per
// (customer, product, salesperson) with per-combo sums, the first
// co-occurrence date and the number of contributing orders.
func (c *Calculator) RevenueDetail(win Window, salespersonIDs []int64) []RevenueLine {
	fresh := c.freshCombos(win)
	reps := idSet(salespersonIDs)

	type lineKey struct {
		combo       comboKey
		salesperson int64
	}
	lines := make(map[lineKey]*RevenueLine)
	invoices := make(map[lineKey]map[string]struct{})
	order := make([]lineKey, 0)
	for _, row := range c.rows {
		if row.product == "" || !win.Contains(row.InvoiceDate) {
			continue
		}
		first, ok := fresh[row.combo()]
		if !ok {
			continue
		}
		if !reps.allows(row.SalespersonID) {
			continue
		}
		key := lineKey{combo: row.combo(), salesperson: row.SalespersonID}
		line, ok := lines[key]
		if !ok {
			line = &RevenueLine{
				CustomerID:      row.CustomerID,
				CustomerName:    row.CustomerName,
				ProductKey:      row.product,
				ProductName:     row.ProductName,
				SalespersonID:   row.SalespersonID,
				SalespersonName: row.SalespersonName,
				FirstComboDate:  first,
			}
			lines[key] = line
			invoices[key] = make(map[string]struct{})
			order = append(order, key)
		}
		line.RevenueUSD += row.RevenueUSD
		line.GrossProfitUSD += row.GrossProfitUSD
		line.GP1USD += row.GP1USD
		invoices[key][row.InvoiceID] = struct{}{}
	}

	out := make([]RevenueLine, 0, len(order))
	for _, key := range order {
		line := lines[key]
		line.Orders = len(invoices[key])
		out = append(out, *line)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RevenueUSD != out[j].RevenueUSD {
			return out[i].RevenueUSD > out[j].RevenueUSD
		}
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		if out[i].ProductKey != out[j].ProductKey {
			return out[i].ProductKey < out[j].ProductKey
		}
		return out[i].SalespersonID < out[j].SalespersonID
	})
	return out
}

// Summarize reduces the window to the five metric-card values. Customer and
// product counts weight each credit by its split percentage; the combo count
// is a plain distinct count of new pairs.
func (c *Calculator) Summarize(win Window, salespersonIDs []int64) Summary {
	var s Summary
	for _, credit := range c.NewCustomers(win, salespersonIDs) {
		s.NewCustomerCount += credit.SplitRatePercent / 100
	}
	for _, credit := range c.NewProducts(win, salespersonIDs) {
		s.NewProductCount += credit.SplitRatePercent / 100
	}
	combos := make(map[comboKey]struct{})
	for _, credit := range c.NewCombos(win, salespersonIDs) {
		combos[comboKey{customer: credit.CustomerID, product: credit.ProductKey}] = struct{}{}
	}
	s.NewComboCount = len(combos)
	for _, rev := range c.RevenueBySalesperson(win, salespersonIDs) {
		s.NewBusinessRevenue += rev.RevenueUSD
		s.NewBusinessGP += rev.GrossProfitUSD
	}
	return s
}

// freshCombos filters the combo index down to pairs first seen inside the
// window.
func (c *Calculator) freshCombos(win Window) map[comboKey]time.Time {
	fresh := make(map[comboKey]time.Time)
	for key, first := range c.idx.comboFirst {
		if win.Contains(first) {
			fresh[key] = first
		}
	}
	return fresh
}

// repFilter is an optional salesperson allow set; nil admits everyone.
type repFilter map[int64]struct{}

func idSet(ids []int64) repFilter {
	if len(ids) == 0 {
		return nil
	}
	set := make(repFilter, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (f repFilter) allows(id int64) bool {
	if f == nil {
		return true
	}
	_, ok := f[id]
	return ok
}
