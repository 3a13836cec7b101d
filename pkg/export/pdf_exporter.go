package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a basic tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType implements Renderer.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension implements Renderer.
func (e *PDFExporter) Extension() string { return FormatPDF }

// Render creates a landscape PDF with the dataset title and a table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 9)
	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, value := range data.record(row) {
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return output(pdf)
}

// Invoice describes a single student's fee statement.
type Invoice struct {
	Number    string
	IssuedOn  string
	Student   string
	StudentID string
	Course    string
	Lines     []InvoiceLine
	Totals    []InvoiceLine
}

// InvoiceLine is a label/amount pair with optional detail columns.
type InvoiceLine struct {
	Label  string
	Due    string
	Status string
	Amount string
}

// RenderInvoice draws a portrait fee statement.
func (e *PDFExporter) RenderInvoice(inv Invoice) ([]byte, error) {
	if inv.StudentID == "" {
		return nil, fmt.Errorf("invoice requires a student id")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "FEE STATEMENT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	for _, pair := range [][2]string{
		{"Invoice", inv.Number},
		{"Issued", inv.IssuedOn},
		{"Student", inv.Student},
		{"Student ID", inv.StudentID},
		{"Course", inv.Course},
	} {
		pdf.CellFormat(35, 6, pair[0]+":", "", 0, "", false, 0, "")
		pdf.CellFormat(0, 6, pair[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{50, 45, 40, 45}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range []string{"Installment", "Due", "Status", "Amount"} {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, line := range inv.Lines {
		pdf.CellFormat(widths[0], 7, line.Label, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, line.Due, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 7, line.Status, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[3], 7, line.Amount, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 10)
	for _, total := range inv.Totals {
		pdf.CellFormat(widths[0]+widths[1]+widths[2], 7, total.Label, "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, total.Amount, "", 1, "R", false, 0, "")
	}

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
