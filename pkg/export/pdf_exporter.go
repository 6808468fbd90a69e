package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// landscapeColumns is the column count above which pages switch to landscape.
const landscapeColumns = 6

// PDFExporter renders datasets into a tabular score report.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType reports the MIME type of rendered output.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

// Render creates a PDF document. The first title line is the heading, any further lines
// are printed beneath it.
func (e *PDFExporter) Render(data Dataset, titles ...string) ([]byte, error) {
	records, err := data.Records()
	if err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	orientation, width := "P", 190.0
	if len(data.Headers) > landscapeColumns {
		orientation, width = "L", 277.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	for i, line := range titles {
		if i == 0 {
			pdf.SetFont("Arial", "B", 14)
			pdf.CellFormat(0, 10, strings.ToUpper(line), "", 1, "C", false, 0, "")
			continue
		}
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, line, "", 1, "C", false, 0, "")
	}
	if len(titles) > 0 {
		pdf.Ln(4)
	}

	colWidth := width / float64(len(data.Headers))
	for i, record := range records {
		style, height, align := "", 7.0, ""
		if i == 0 {
			style, height, align = "B", 8.0, "C"
		}
		pdf.SetFont("Arial", style, 9)
		for _, cell := range record {
			pdf.CellFormat(colWidth, height, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
