package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	SheetInvoices    = "Statement"
	SheetPayments    = "Payments"
	SheetCreditNotes = "Credit Notes"

	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout = "2006-01-02"
)

func money(d decimal.Decimal) float64 {
	return utils.RoundMoney(d).InexactFloat64()
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	err   error
}

func (w *sheetWriter) write(values ...interface{}) {
	if w.err != nil {
		return
	}
	w.row++
	w.err = w.f.SetSheetRow(w.sheet, fmt.Sprintf("A%d", w.row), &values)
}

func (w *sheetWriter) style(styleId int, lastCol string) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellStyle(w.sheet, fmt.Sprintf("A%d", w.row), fmt.Sprintf("%s%d", lastCol, w.row), styleId)
}

// WriteStatementXLSX renders the statement as a workbook with one sheet for
// invoices and the summary, and one each for payments and credit notes.
func WriteStatementXLSX(out io.Writer, st *Statement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetInvoices); err != nil {
		return err
	}
	for _, name := range []string{SheetPayments, SheetCreditNotes} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	w := &sheetWriter{f: f, sheet: SheetInvoices}
	w.write("Customer", st.CustomerName)
	w.write("Customer Id", st.CustomerId)
	w.write("Generated", st.GeneratedAt.Format(time.RFC3339))
	w.write()
	w.write("Number", "Date", "Due", "Status", "Total", "Paid", "Credited", "Outstanding")
	w.style(bold, "H")
	for _, inv := range st.Invoices {
		w.write(inv.Number, formatDate(&inv.Date), formatDate(inv.DueDate), string(inv.Status),
			money(inv.Grand), money(inv.Paid), money(inv.Credited), money(inv.Outstanding))
	}
	w.write()
	w.write("Outstanding", money(st.Outstanding))
	w.style(bold, "B")
	w.write("Unapplied payments", money(st.UnappliedPayments))
	w.write("Deposits on quotations", money(st.Deposits))
	w.write("Unapplied credit", money(st.UnappliedCredit))
	if w.err != nil {
		return w.err
	}

	p := &sheetWriter{f: f, sheet: SheetPayments}
	p.write("Date", "Method", "Reference", "Applied To", "Amount")
	p.style(bold, "E")
	for _, pay := range st.Payments {
		target := "unapplied"
		switch {
		case pay.InvoiceId != nil:
			target = "invoice " + *pay.InvoiceId
		case pay.QuoteId != nil:
			target = "quotation " + *pay.QuoteId
		}
		p.write(formatDate(&pay.Date), string(pay.Method), utils.DereferencePtr(pay.Reference), target, money(pay.Amount))
	}
	if p.err != nil {
		return p.err
	}

	c := &sheetWriter{f: f, sheet: SheetCreditNotes}
	c.write("Number", "Date", "Reason", "Amount", "Applied", "Remaining")
	c.style(bold, "F")
	for _, cn := range st.CreditNotes {
		c.write(cn.Number, formatDate(&cn.Date), cn.Reason, money(cn.Amount), money(cn.AppliedTotal()), money(cn.Remaining()))
	}
	if c.err != nil {
		return c.err
	}

	for sheet, width := range map[string]float64{SheetInvoices: 16, SheetPayments: 18, SheetCreditNotes: 16} {
		if err := f.SetColWidth(sheet, "A", "H", width); err != nil {
			return err
		}
	}
	return f.Write(out)
}
