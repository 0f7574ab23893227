package invoice

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

// Document is everything printed on an invoice.
type Document struct {
	Invoice        Invoice
	OriginalNumber string // rectifications only
	Seller         string
	CustomerName   string
	CustomerEmail  string
	Address        []string
	Lines          []DocumentLine
	DiscountCode   string
	DiscountCents  money.Cents
	Currency       string
}

type DocumentLine struct {
	Name      string
	Size      string
	Quantity  int
	UnitCents money.Cents
}

// Render lays out doc as an A4 PDF.
func Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.Invoice.Number, true)
	pdf.AddPage()

	title := "INVOICE"
	if doc.Invoice.Type == TypeRectification {
		title = "CORRECTIVE INVOICE"
	}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	header := [][2]string{
		{"Number", doc.Invoice.Number},
		{"Date", doc.Invoice.CreatedAt.Format("2006-01-02")},
		{"Order", doc.Invoice.OrderID},
	}
	if doc.OriginalNumber != "" {
		header = append(header, [2]string{"Corrects", doc.OriginalNumber})
	}
	for _, h := range header {
		pdf.CellFormat(30, 6, h[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(h[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(95, 6, tr(doc.Seller), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	billTo := append([]string{doc.CustomerName, doc.CustomerEmail}, doc.Address...)
	for _, l := range billTo {
		if l == "" {
			continue
		}
		pdf.CellFormat(95, 5, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, tr(l), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	sign := money.Cents(1)
	if doc.Invoice.AmountCents < 0 {
		sign = -1
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for _, c := range []struct {
		w     float64
		label string
		align string
	}{{90, "Item", "L"}, {20, "Size", "C"}, {20, "Qty", "C"}, {30, "Unit", "R"}, {30, "Total", "R"}} {
		pdf.CellFormat(c.w, 7, c.label, "B", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	var subtotal money.Cents
	for _, l := range doc.Lines {
		line := l.UnitCents * money.Cents(l.Quantity) * sign
		subtotal += line
		pdf.CellFormat(90, 6, tr(l.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, l.Size, "", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, strconv.Itoa(l.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, (l.UnitCents * sign).String(), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, line.String(), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	totals := [][2]string{{"Subtotal", subtotal.String()}}
	if doc.DiscountCents != 0 {
		totals = append(totals, [2]string{
			fmt.Sprintf("Discount %s", doc.DiscountCode),
			(-doc.DiscountCents * sign).String(),
		})
	}
	totals = append(totals, [2]string{"Total", doc.Invoice.AmountCents.Format(doc.Currency)})
	for i, t := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Helvetica", "B", 11)
		}
		pdf.CellFormat(160, 6, tr(t[0]), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, t[1], "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", doc.Invoice.Number, err)
	}
	return buf.Bytes(), nil
}
