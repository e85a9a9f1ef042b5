package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/snarg/interview-desk/internal/database"
)

// RenderPDF writes the same content as RenderDocument as an A4 PDF.
func (r *Renderer) RenderPDF(rec *database.Interview, w io.Writer) error {
	f, err := r.fields(rec)
	if err != nil {
		return err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; translate so umlauts survive.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Interview #"+f.ID), false)
	if r.opts.SiteName != "" {
		pdf.SetAuthor(tr(r.opts.SiteName), false)
	}
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("Interview Transcription #"+f.ID))
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range [][2]string{
		{"Date", f.Date},
		{"Interviewer", f.Interviewer},
		{"Interviewee", f.Interviewee},
		{"Created at", f.CreatedAt},
	} {
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%s: %s", line[0], line[1])), "", "L", false)
	}
	pdf.Ln(6)

	writePDFSection(pdf, tr, "Transcription", f.Transcription)
	if f.Notes != "" {
		pdf.Ln(6)
		writePDFSection(pdf, tr, "Notes", f.Notes)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(102, 102, 102)
	for _, line := range []string{r.opts.SiteName, r.opts.Organization, "Generated at: " + f.GeneratedAt} {
		if line == "" {
			continue
		}
		pdf.CellFormat(0, 5, tr(line), "", 1, "C", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf for interview %s: %w", f.ID, err)
	}
	return nil
}

func writePDFSection(pdf *gofpdf.Fpdf, tr func(string) string, title, content string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, tr(title))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		pdf.MultiCell(0, 6, tr(line), "", "L", false)
	}
}
