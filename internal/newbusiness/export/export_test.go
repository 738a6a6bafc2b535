package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage/internal/newbusiness"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSummaryCSV(&buf, newbusiness.Summary{
		NewCustomerCount:   1.4,
		NewProductCount:    2,
		NewComboCount:      3,
		NewBusinessRevenue: 1234567.891,
		NewBusinessGP:      54321.5,
	}, newbusiness.Window{Start: day("2024-01-01"), End: day("2024-12-31")})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Metric,Value", lines[0])
	assert.Contains(t, buf.String(), "New Customers,1.40")
	assert.Contains(t, buf.String(), `New Business Revenue,"1,234,567.89"`)
}

func TestWriteNewCustomersCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteNewCustomersCSV(&buf, []newbusiness.CustomerCredit{
		{
			CustomerName:     "Acme Foods",
			CustomerCode:     "AC-100",
			FirstInvoiceDate: day("2024-06-15"),
			SalespersonName:  "Mora",
			SplitRatePercent: 60,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Acme Foods,AC-100,2024-06-15,Mora,60")
}

func TestWriteRevenueCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRevenueCSV(&buf, nil))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "header only for empty table")
}

func TestWriteRevenueDetailCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRevenueDetailCSV(&buf, []newbusiness.RevenueLine{
		{
			CustomerName:    "Acme Foods",
			ProductName:     "Widget",
			SalespersonName: "Silva",
			FirstComboDate:  day("2024-07-01"),
			Orders:          3,
			RevenueUSD:      500,
			GrossProfitUSD:  190,
			GP1USD:          120,
		},
	}))
	assert.Contains(t, buf.String(), "Acme Foods,Widget,Silva,2024-07-01,3,500.00,190.00,120.00")
}
