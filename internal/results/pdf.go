package results

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Printer renders run reports to PDF
type Printer struct {
	logger arbor.ILogger
}

// NewPrinter creates a new report printer
func NewPrinter(logger arbor.ILogger) *Printer {
	return &Printer{logger: logger}
}

// WritePDF renders the report's markdown form to PDF and writes it to w
func (p *Printer) WritePDF(w io.Writer, report *models.RunReport) error {
	data, err := p.ConvertMarkdownToPDF(RenderMarkdown(report), "Run "+report.ID)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
func (p *Printer) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	p.logger.Debug().
		Int("markdown_len", len(markdown)).
		Str("title", title).
		Msg("Converting report to PDF")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	// core fonts are cp1252; country and state labels are not ASCII
	r := &pdfRenderer{pdf: pdf, source: source, size: 9, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		p.logger.Error().Err(err).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	p.logger.Debug().Int("pdf_size", buf.Len()).Msg("PDF generated")
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	size   float64
	bold   bool
	italic bool
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont("Arial", style, r.size)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			size := 10.0
			switch node.Level {
			case 1:
				size = 14
			case 2:
				size = 12
			}
			r.pdf.SetFont("Arial", "B", size)
		} else {
			r.pdf.Ln(7)
			r.updateFont()
		}
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(6)
		}
	case *ast.Text:
		if entering {
			r.pdf.Write(5, r.tr(string(node.Segment.Value(r.source))))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case *ast.ListItem:
		if entering {
			r.pdf.SetX(20)
			r.pdf.Write(5, "- ")
		} else {
			r.pdf.Ln(5)
		}
	case *ast.TextBlock:
		// list item content, line break is handled by the item
	case *extast.Table:
		if entering {
			r.renderTable(r.tableRows(node))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) tableRows(table *extast.Table) [][]string {
	var rows [][]string
	var findRows func(node ast.Node)
	findRows = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch child.(type) {
			case *extast.TableHeader, *extast.TableRow:
				var row []string
				for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
					row = append(row, r.tr(strings.TrimSpace(string(cell.Text(r.source)))))
				}
				rows = append(rows, row)
			}
		}
	}
	findRows(table)
	return rows
}

// renderTable draws rows with the first row as header. Columns share the page width
// in proportion to their widest cell, so long info strings get the room.
func (r *pdfRenderer) renderTable(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	const (
		pageWidth  = 180.0
		fontSize   = 8.0
		lineHeight = 4.0
		minWidth   = 14.0
	)
	numCols := len(rows[0])

	r.pdf.SetFont("Arial", "", fontSize)
	widths := make([]float64, numCols)
	total := 0.0
	for _, row := range rows {
		for i := 0; i < numCols && i < len(row); i++ {
			if w := r.pdf.GetStringWidth(row[i]) + 4; w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		widths[i] = max(widths[i], minWidth)
		total += widths[i]
	}
	if total > pageWidth {
		for i := range widths {
			widths[i] = max(widths[i]*pageWidth/total, minWidth*0.8)
		}
	}

	r.pdf.Ln(2)
	for i, row := range rows {
		style, fill := "", false
		if i == 0 {
			style, fill = "B", true
			r.pdf.SetFillColor(230, 230, 230)
		}
		r.pdf.SetFont("Arial", style, fontSize)

		lines := 1
		for j := 0; j < numCols && j < len(row); j++ {
			// cells are cp1252 bytes; SplitText would decode them as UTF-8
			n := len(r.pdf.SplitLines([]byte(row[j]), widths[j]-2))
			lines = max(lines, n)
		}
		height := float64(lines)*lineHeight + 2

		_, pageHeight := r.pdf.GetPageSize()
		_, _, _, bottom := r.pdf.GetMargins()
		if r.pdf.GetY()+height > pageHeight-bottom {
			r.pdf.AddPage()
		}

		x, y := r.pdf.GetX(), r.pdf.GetY()
		for j := 0; j < numCols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			boxStyle := "D"
			if fill {
				boxStyle = "FD"
			}
			r.pdf.Rect(x, y, widths[j], height, boxStyle)
			r.pdf.SetXY(x+1, y+1)
			r.pdf.MultiCell(widths[j]-2, lineHeight, cell, "", "L", false)
			x += widths[j]
		}
		r.pdf.SetXY(15, y+height)
	}
	r.pdf.Ln(3)
	r.updateFont()
}
