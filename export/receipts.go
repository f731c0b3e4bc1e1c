// Package export renders engine listings as spreadsheets.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commissions"
	"github.com/xuri/excelize/v2"
)

// ReceiptsSheet is the sheet name of the receipts workbook.
const ReceiptsSheet = "Recibos"

var receiptHeader = []any{
	"Comercial ID", "Comercial", "Fecha de pago", "Comisiones", "Total ventas", "Total comisión", "Pagado por",
}

// moneyFormat is the built-in "#,##0.00" number format.
const moneyFormat = 4

// ReceiptsWorkbook builds a workbook with one row per receipt and a totals
// row. The caller closes the file.
func ReceiptsWorkbook(receipts []commissions.Receipt) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), ReceiptsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeReceipts(f, receipts); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteReceipts writes the receipts workbook as XLSX to w.
func WriteReceipts(w io.Writer, receipts []commissions.Receipt) error {
	f, err := ReceiptsWorkbook(receipts)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeReceipts(f *excelize.File, receipts []commissions.Receipt) error {
	sheet := ReceiptsSheet
	if err := f.SetSheetRow(sheet, "A1", &receiptHeader); err != nil {
		return err
	}

	var sales, commission decimal.Decimal
	count := 0
	for i, r := range receipts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			int64(r.SalespersonID), r.SalespersonName, r.PaymentDate, r.Commissions,
			r.TotalSales.InexactFloat64(), r.TotalCommission.InexactFloat64(), strings.Join(r.PaidBy, ", "),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		sales = sales.Add(r.TotalSales)
		commission = commission.Add(r.TotalCommission)
		count += r.Commissions
	}

	last := len(receipts) + 2
	totals := []any{"", "Total", "", count, sales.InexactFloat64(), commission.InexactFloat64(), ""}
	if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", last), &totals); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: moneyFormat})
	if err != nil {
		return err
	}
	boldMoney, err := f.NewStyle(&excelize.Style{NumFmt: moneyFormat, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for _, s := range []struct {
		from, to string
		style    int
	}{
		{"A1", "G1", bold},
		{"E2", fmt.Sprintf("F%d", last), money},
		{fmt.Sprintf("A%d", last), fmt.Sprintf("D%d", last), bold},
		{fmt.Sprintf("E%d", last), fmt.Sprintf("F%d", last), boldMoney},
	} {
		if err := f.SetCellStyle(sheet, s.from, s.to, s.style); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheet, "B", "B", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "C", "F", 16); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "G", "G", 30); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
