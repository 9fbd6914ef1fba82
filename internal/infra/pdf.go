package infra

// pdf.go — Closing-report PDF generation using go-pdf/fpdf.
// Renders an A5 drawer reconciliation report:
//   - Clinic/session header (business date, drawer identifier, status)
//   - Operation table (time, type, description, amount)
//   - Reconciliation block: opening, cash in, cash out, expected, counted, difference
//
// The output file is saved to storagePath/cash_session_{id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/model"

	"github.com/go-pdf/fpdf"
)

// FormatCents renders an integer-cents amount as "R$ 123,45".
// Negative values keep the sign in front of the currency symbol.
func FormatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%sR$ %d,%02d", sign, v/100, v%100)
}

// GenerateClosingReportPDF writes the reconciliation report for a closed
// session. storagePath is created if needed. Returns the absolute file path.
func GenerateClosingReportPDF(s *model.CashSession, ops []model.CashOperation, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("cash_session_%s.pdf", s.ID)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 20

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, "Daily Cash Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Business date: %s", s.BusinessDate), "", 1, "L", false, 0, "")
	if s.Identifier != nil && *s.Identifier != "" {
		pdf.CellFormat(contentW, 5, fmt.Sprintf("Drawer: %s", *s.Identifier), "", 1, "L", false, 0, "")
	}
	if s.ClosingTime != nil {
		pdf.CellFormat(contentW, 5, fmt.Sprintf("Closed at: %s", s.ClosingTime.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	// ── Operations ───────────────────────────────────────────────────────────
	col1 := contentW * 0.18 // time
	col2 := contentW * 0.20 // type
	col3 := contentW * 0.38 // description
	col4 := contentW * 0.24 // amount

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(col1, 5, "Time", "", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Type", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 5, "Description", "", 0, "L", false, 0, "")
	pdf.CellFormat(col4, 5, "Amount", "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	for _, op := range ops {
		desc := op.Description
		if len(desc) > 30 {
			desc = desc[:27] + "..."
		}
		pdf.CellFormat(col1, 4.5, op.CreatedAt.Format("15:04"), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 4.5, string(op.Type), "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 4.5, desc, "", 0, "L", false, 0, "")
		pdf.CellFormat(col4, 4.5, FormatCents(op.AmountInCents), "", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	// ── Reconciliation ───────────────────────────────────────────────────────
	labelW := contentW * 0.6
	valueW := contentW * 0.4

	row := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(labelW, 5.5, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(valueW, 5.5, value, "", 1, "R", false, 0, "")
	}

	row("Opening amount", FormatCents(s.OpeningAmount), false)
	row("Total cash in", FormatCents(s.TotalCashIn), false)
	row("Total cash out", FormatCents(s.TotalCashOut), false)
	if s.ExpectedAmount != nil {
		row("Expected amount", FormatCents(*s.ExpectedAmount), true)
	}
	if s.ClosingAmount != nil {
		row("Counted amount", FormatCents(*s.ClosingAmount), true)
	}
	if s.Difference != nil {
		row("Difference", FormatCents(*s.Difference), true)
	}

	if s.ClosingNotes != nil && *s.ClosingNotes != "" {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(contentW, 4.5, "Notes: "+*s.ClosingNotes, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write %s: %w", filePath, err)
	}
	return filePath, nil
}
