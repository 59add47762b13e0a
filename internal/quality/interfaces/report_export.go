package interfaces

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/quality/application"
)

// BuildReportPDF renders the insight summary and record table as a PDF.
func BuildReportPDF(report *application.Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Manufacturing Quality Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 6, "Insights")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	if len(report.Insights) == 0 {
		pdf.Cell(0, 6, "No insights.")
		pdf.Ln(6)
	}
	for _, insight := range report.Insights {
		pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s: %s (%s)", insight.Type, insight.Title, insight.Description, insight.Metric), "", "L", false)
		pdf.Ln(1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Component", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Failure", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Priority", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Occurrences", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Created", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Resolved", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, r := range report.Records {
		pdf.CellFormat(25, 6, r.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, r.Component, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, r.FailureType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(r.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, string(r.Priority), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", r.OccurrenceCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, r.CreatedAt.Format(fleet.DateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, resolvedDate(r), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders the insight summary and record table as a workbook.
func BuildReportXLSX(report *application.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	insightsSheet := "insights"
	recordsSheet := "rca_capa"
	if err := f.SetSheetName("Sheet1", insightsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(recordsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(insightsSheet, "A1", "Manufacturing Quality Report")
	_ = f.SetCellValue(insightsSheet, "A2", "Generated")
	_ = f.SetCellValue(insightsSheet, "B2", report.GeneratedAt.Format(time.RFC3339))
	for col, header := range []string{"Type", "Category", "Title", "Description", "Metric", "Component", "Record"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 4)
		_ = f.SetCellValue(insightsSheet, cell, header)
	}
	for i, insight := range report.Insights {
		row := i + 5
		values := []any{insight.Type, insight.Category, insight.Title, insight.Description, insight.Metric, insight.Component, insight.RecordID}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(insightsSheet, cell, value)
		}
	}

	headers := []string{"ID", "Failure Type", "Component", "Root Cause", "Occurrences", "Affected Models",
		"Corrective Action", "Preventive Action", "Status", "Priority", "Created", "Resolved"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, header)
	}
	for i, r := range report.Records {
		row := i + 2
		values := []any{r.ID, r.FailureType, r.Component, r.RootCause, r.OccurrenceCount, strings.Join(r.AffectedModels, ", "),
			r.CorrectiveAction, r.PreventiveAction, string(r.Status), string(r.Priority), r.CreatedAt.Format(fleet.DateLayout), resolvedDate(r)}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(recordsSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resolvedDate(r fleet.RcaCapaRecord) string {
	if r.ResolvedAt == nil {
		return ""
	}
	return r.ResolvedAt.Format(fleet.DateLayout)
}
