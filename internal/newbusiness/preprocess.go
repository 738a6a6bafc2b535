package newbusiness

import (
	"strings"
	"time"
)

const internalCustomerType = "internal"

// record is a cleaned transaction with its derived product identity attached.
type record struct {
	Transaction
	product string
}

func (r record) combo() comboKey {
	return comboKey{customer: r.CustomerID, product: r.product}
}

// preprocess filters and normalises the raw transaction log. Rows with
// unusable invoice dates are dropped and counted rather than failing the
// load; rows without a derivable product key are retained for customer-level
// analysis only. The input is never mutated.
func preprocess(raw []Transaction, excludeInternal bool) ([]record, int) {
	rows := make([]record, 0, len(raw))
	dropped := 0
	for _, tx := range raw {
		if tx.InvoiceDate.IsZero() {
			dropped++
			continue
		}
		if excludeInternal && strings.EqualFold(strings.TrimSpace(tx.CustomerType), internalCustomerType) {
			continue
		}
		tx.InvoiceDate = normalizeDate(tx.InvoiceDate)
		rows = append(rows, record{Transaction: tx, product: tx.productKey()})
	}
	return rows, dropped
}

// normalizeDate strips the time-of-day component so first-day equality
// comparisons are exact regardless of how the warehouse delivered the value.
func normalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseInvoiceDate parses warehouse date strings in the formats the unified
// view is known to emit. The zero time signals an unparseable value, which
// preprocess later drops.
func ParseInvoiceDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return normalizeDate(t)
		}
	}
	return time.Time{}
}
