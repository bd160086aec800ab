package pdf

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// AttemptRow is one ledger entry as printed in the report.
type AttemptRow struct {
	Identifier       string
	Kind             string
	FailureCount     int
	Locked           bool
	RemainingMinutes int
	LastFailureAt    *time.Time
}

type AttemptReport struct {
	GeneratedAt time.Time
	GeneratedBy string
	Rows        []AttemptRow
}

// ReportGenerator renders the login attempt ledger. With no FontPath it falls back to
// the core Helvetica font and transliterates to cp1252.
type ReportGenerator struct {
	FontPath string
	fontName string
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	return &ReportGenerator{FontPath: fontPath, fontName: "DejaVu"}
}

var columns = []struct {
	title string
	width float64
	align string
}{
	{"Identifier", 60, "L"},
	{"Kind", 35, "L"},
	{"Failures", 20, "R"},
	{"Locked", 20, "C"},
	{"Min. left", 20, "R"},
	{"Last failure", 35, "L"},
}

func (g *ReportGenerator) WriteAttemptReport(w io.Writer, rep AttemptReport) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Login attempts", false)
	pdf.SetAuthor("YPG Attendance", false)
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)

	font, tr := g.setupFont(pdf)
	pdf.AddPage()

	pdf.SetFont(font, "B", 16)
	pdf.CellFormat(0, 10, tr("Login attempts"), "", 1, "C", false, 0, "")
	pdf.SetFont(font, "", 10)
	sub := "Generated " + rep.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")
	if rep.GeneratedBy != "" {
		sub += " by " + rep.GeneratedBy
	}
	pdf.CellFormat(0, 6, tr(sub), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(font, "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range columns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(font, "", 9)
	if len(rep.Rows) == 0 {
		pdf.CellFormat(190, 7, "No login attempts recorded.", "1", 1, "C", false, 0, "")
	}
	for _, r := range rep.Rows {
		locked := "no"
		if r.Locked {
			locked = "yes"
		}
		last := "-"
		if r.LastFailureAt != nil {
			last = r.LastFailureAt.UTC().Format("2006-01-02 15:04")
		}
		cells := []string{
			tr(r.Identifier),
			tr(r.Kind),
			strconv.Itoa(r.FailureCount),
			locked,
			strconv.Itoa(r.RemainingMinutes),
			last,
		}
		for i, col := range columns {
			pdf.CellFormat(col.width, 6, cells[i], "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render attempt report: %w", err)
	}
	return nil
}

func (g *ReportGenerator) setupFont(pdf *gofpdf.Fpdf) (string, func(string) string) {
	if g.FontPath == "" {
		return "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.AddUTF8Font(g.fontName, "", g.FontPath)
	pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	return g.fontName, func(s string) string { return s }
}
