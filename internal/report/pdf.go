package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

// PDFRenderer lays out an assembled report on letter pages
type PDFRenderer struct {
	// FontFamily is one of the core fonts; defaults to Helvetica
	FontFamily string
}

type rgb struct{ r, g, b int }

var (
	darkBlue  = rgb{0, 0, 139}
	darkGreen = rgb{0, 100, 0}
	lightBlue = rgb{173, 216, 230}
	lightGrey = rgb{211, 211, 211}
	beige     = rgb{245, 245, 220}
)

// Render writes doc as PDF to w
func (r *PDFRenderer) Render(w io.Writer, doc *Document) error {
	pdf := r.build(doc)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering pdf: %w", err)
	}
	return nil
}

// RenderFile writes doc to path, creating the parent directory
func (r *PDFRenderer) RenderFile(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Render(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *PDFRenderer) font() string {
	if r.FontFamily == "" {
		return "Helvetica"
	}
	return r.FontFamily
}

func (r *PDFRenderer) build(doc *Document) *fpdf.Fpdf {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(72, 72, 72)
	pdf.SetAutoPageBreak(true, 36)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	family := r.font()

	pdf.SetFooterFunc(func() {
		pdf.SetY(-30)
		pdf.SetFont(family, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right

	// Cover
	pdf.AddPage()
	pdf.SetFont(family, "B", 24)
	setText(pdf, darkBlue)
	pdf.CellFormat(width, 40, tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(30)

	summary := [][2]string{
		{"Report Generated", doc.Summary.GeneratedAt.Format(timeLayout)},
		{"Files Processed", fmt.Sprint(doc.Summary.Files)},
		{"Total Pages Extracted", fmt.Sprint(doc.Summary.TotalPages)},
		{"Total Tables Found", fmt.Sprint(doc.Summary.TotalTables)},
		{"Processing Method", doc.Summary.Method},
	}
	pdf.SetFont(family, "", 11)
	setText(pdf, rgb{})
	setFill(pdf, beige)
	for _, row := range summary {
		pdf.CellFormat(180, 20, tr(row[0]), "1", 0, "L", true, 0, "")
		pdf.CellFormat(180, 20, tr(row[1]), "1", 1, "L", true, 0, "")
	}
	pdf.Ln(30)

	// Table of contents
	heading(pdf, family, tr("Table of Contents"))
	colW := []float64{width * 0.42, width * 0.16, width * 0.42}
	pdf.SetFont(family, "B", 11)
	pdf.SetTextColor(255, 255, 255)
	setFill(pdf, darkBlue)
	for i, h := range []string{"Document", "Tables Found", "Description"} {
		pdf.CellFormat(colW[i], 20, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont(family, "", 9)
	setText(pdf, rgb{})
	setFill(pdf, lightGrey)
	for _, e := range doc.TOC {
		cells := []string{fmt.Sprintf("%d. %s", e.Number, e.DisplayName), fmt.Sprint(e.Tables), e.Description}
		for i, c := range cells {
			pdf.CellFormat(colW[i], 16, fit(pdf, tr(c), colW[i]-4), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}

	// Sections
	for _, sec := range doc.Sections {
		ext := sec.Extraction
		pdf.AddPage()
		heading(pdf, family, tr(fmt.Sprintf("%d. %s", sec.Number, sec.DisplayName)))

		pdf.SetFont("Courier", "", 9)
		setText(pdf, darkGreen)
		pdf.MultiCell(width, 12, tr(fmt.Sprintf("Processing Details: Pages: %d | Tables Found: %d | Processor: %s",
			ext.PageCount, len(ext.Tables), ext.ProcessorInfo)), "", "L", false)
		pdf.Ln(8)

		for i, t := range ext.Tables {
			subheading(pdf, family, fmt.Sprintf("Table %d", i+1))
			r.table(pdf, tr, width, t.Headers, t.Rows)
			pdf.Ln(12)
		}

		if text := strings.TrimSpace(ext.Content); text != "" {
			subheading(pdf, family, "Full Text Content")
			pdf.SetFont(family, "", 10)
			setText(pdf, rgb{})
			pdf.MultiCell(width, 13, tr(text), "", "J", false)
		}
	}

	return pdf
}

func (r *PDFRenderer) table(pdf *fpdf.Fpdf, tr func(string) string, width float64, headers []string, rows [][]string) {
	cols := len(headers)
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}
	cw := width / float64(cols)
	family := r.font()

	if len(headers) > 0 {
		pdf.SetFont(family, "B", 8)
		pdf.SetTextColor(255, 255, 255)
		setFill(pdf, lightBlue)
		for i := 0; i < cols; i++ {
			pdf.CellFormat(cw, 14, fit(pdf, tr(cell(headers, i)), cw-4), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont(family, "", 8)
	setText(pdf, rgb{})
	for _, row := range rows {
		for i := 0; i < cols; i++ {
			pdf.CellFormat(cw, 12, fit(pdf, tr(cell(row, i)), cw-4), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func heading(pdf *fpdf.Fpdf, family, text string) {
	pdf.SetFont(family, "B", 16)
	setText(pdf, darkBlue)
	pdf.CellFormat(0, 24, text, "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func subheading(pdf *fpdf.Fpdf, family, text string) {
	pdf.SetFont(family, "B", 13)
	setText(pdf, darkGreen)
	pdf.CellFormat(0, 20, text, "", 1, "L", false, 0, "")
}

func setText(pdf *fpdf.Fpdf, c rgb) { pdf.SetTextColor(c.r, c.g, c.b) }
func setFill(pdf *fpdf.Fpdf, c rgb) { pdf.SetFillColor(c.r, c.g, c.b) }

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// fit truncates s with an ellipsis so it fits in w points at the current font
func fit(pdf *fpdf.Fpdf, s string, w float64) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > w {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
