// Package export serialises new-business result tables for download. The
// core produces plain tables; everything about presentation lives here.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/vantage-erp/vantage/internal/newbusiness"
)

var amounts = message.NewPrinter(language.English)

func formatAmount(v float64) string {
	return amounts.Sprintf("%.2f", v)
}

func formatSplit(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}

const dateLayout = "2006-01-02"

// WriteSummaryCSV serialises the metric-card values to CSV.
func WriteSummaryCSV(w io.Writer, summary newbusiness.Summary, win newbusiness.Window) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"Window Start", win.Start.Format(dateLayout)},
		{"Window End", win.End.Format(dateLayout)},
		{"New Customers", strconv.FormatFloat(summary.NewCustomerCount, 'f', 2, 64)},
		{"New Products", strconv.FormatFloat(summary.NewProductCount, 'f', 2, 64)},
		{"New Combos", strconv.Itoa(summary.NewComboCount)},
		{"New Business Revenue", formatAmount(summary.NewBusinessRevenue)},
		{"New Business GP", formatAmount(summary.NewBusinessGP)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteNewCustomersCSV emits the new-customer credit table.
func WriteNewCustomersCSV(w io.Writer, rows []newbusiness.CustomerCredit) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Customer", "Code", "First Invoice", "Salesperson", "Split %"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.CustomerName,
			row.CustomerCode,
			row.FirstInvoiceDate.Format(dateLayout),
			row.SalespersonName,
			formatSplit(row.SplitRatePercent),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteNewProductsCSV emits the new-product credit table.
func WriteNewProductsCSV(w io.Writer, rows []newbusiness.ProductCredit) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Product", "Brand", "Package", "First Sale", "Salesperson", "Split %"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.ProductName,
			row.Brand,
			row.PackageSize,
			row.FirstSaleDate.Format(dateLayout),
			row.SalespersonName,
			formatSplit(row.SplitRatePercent),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteNewCombosCSV emits the first-day combo detail table.
func WriteNewCombosCSV(w io.Writer, rows []newbusiness.ComboCredit) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Customer", "Product", "First Combo", "Salesperson", "Split %", "Revenue", "GP"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.CustomerName,
			row.ProductName,
			row.FirstComboDate.Format(dateLayout),
			row.SalespersonName,
			formatSplit(row.SplitRatePercent),
			formatAmount(row.RevenueUSD),
			formatAmount(row.GrossProfitUSD),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRevenueCSV emits the per-salesperson revenue aggregate.
func WriteRevenueCSV(w io.Writer, rows []newbusiness.RevenueSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Salesperson ID", "Salesperson", "Revenue", "GP", "GP1", "Combos"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			formatID(row.SalespersonID),
			row.SalespersonName,
			formatAmount(row.RevenueUSD),
			formatAmount(row.GrossProfitUSD),
			formatAmount(row.GP1USD),
			strconv.Itoa(row.ComboCount),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRevenueDetailCSV emits the per-combo line items.
func WriteRevenueDetailCSV(w io.Writer, rows []newbusiness.RevenueLine) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Customer", "Product", "Salesperson", "First Combo", "Orders", "Revenue", "GP", "GP1"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.CustomerName,
			row.ProductName,
			row.SalespersonName,
			row.FirstComboDate.Format(dateLayout),
			strconv.Itoa(row.Orders),
			formatAmount(row.RevenueUSD),
			formatAmount(row.GrossProfitUSD),
			formatAmount(row.GP1USD),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
