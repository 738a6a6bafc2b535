package newbusiness

import "time"

// FirstOccurrenceIndex holds the globally earliest invoice date of every
// customer, product and customer-product pair across the full lookback
// window. It is built once per load and never mutated afterwards, so a "new"
// determination is always relative to complete history, never to whatever
// subset a later query filters down to.
type FirstOccurrenceIndex struct {
	customerFirst map[int64]time.Time
	productFirst  map[string]time.Time
	comboFirst    map[comboKey]time.Time
}

// buildIndex computes the three first-occurrence tables in a single O(n)
// pass. Rows without a product key contribute to the customer table only.
func buildIndex(rows []record) *FirstOccurrenceIndex {
	idx := &FirstOccurrenceIndex{
		customerFirst: make(map[int64]time.Time),
		productFirst:  make(map[string]time.Time),
		comboFirst:    make(map[comboKey]time.Time),
	}
	for _, row := range rows {
		keepEarliest64(idx.customerFirst, row.CustomerID, row.InvoiceDate)
		if row.product == "" {
			continue
		}
		keepEarliest(idx.productFirst, row.product, row.InvoiceDate)
		keepEarliestCombo(idx.comboFirst, row.combo(), row.InvoiceDate)
	}
	return idx
}

// CustomerFirstDate returns the earliest invoice date recorded for the
// customer, if any.
func (idx *FirstOccurrenceIndex) CustomerFirstDate(customerID int64) (time.Time, bool) {
	d, ok := idx.customerFirst[customerID]
	return d, ok
}

// ProductFirstDate returns the earliest sale date recorded for the product
// key, if any.
func (idx *FirstOccurrenceIndex) ProductFirstDate(productKey string) (time.Time, bool) {
	d, ok := idx.productFirst[productKey]
	return d, ok
}

// ComboFirstDate returns the earliest co-occurrence date of the customer and
// product key, if any.
func (idx *FirstOccurrenceIndex) ComboFirstDate(customerID int64, productKey string) (time.Time, bool) {
	d, ok := idx.comboFirst[comboKey{customer: customerID, product: productKey}]
	return d, ok
}

func keepEarliest64(m map[int64]time.Time, key int64, d time.Time) {
	if cur, ok := m[key]; !ok || d.Before(cur) {
		m[key] = d
	}
}

func keepEarliest(m map[string]time.Time, key string, d time.Time) {
	if cur, ok := m[key]; !ok || d.Before(cur) {
		m[key] = d
	}
}

func keepEarliestCombo(m map[comboKey]time.Time, key comboKey, d time.Time) {
	if cur, ok := m[key]; !ok || d.Before(cur) {
		m[key] = d
	}
}
