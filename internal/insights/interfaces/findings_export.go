package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	balancing "bess-edge/internal/balancing/domain"
	insights "bess-edge/internal/insights/domain"
)

// BuildFindingsPDF renders an operations report covering active findings
// and pending balancing actions.
func BuildFindingsPDF(generatedAt time.Time, findings []insights.Finding, actions []balancing.Action) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Battery Operations Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Active findings: %d", len(findings)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Pending actions: %d", len(actions)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(28, 6, "Site", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Category", "1", 0, "C", false, 0, "")
	pdf.CellFormat(110, 6, "Title", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Value (GBP)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Confidence", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, finding := range findings {
		pdf.CellFormat(28, 6, finding.SiteID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, string(finding.Severity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(36, 6, string(finding.Category), "1", 0, "C", false, 0, "")
		pdf.CellFormat(110, 6, finding.Title, "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%.0f", finding.EstimatedValueGBP), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%.2f", finding.Confidence), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(28, 6, "Site", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "Rack", "1", 0, "C", false, 0, "")
	pdf.CellFormat(44, 6, "Action", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Priority", "1", 0, "C", false, 0, "")
	pdf.CellFormat(32, 6, "Duration (min)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Recovery (MWh)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, action := range actions {
		pdf.CellFormat(28, 6, action.SiteID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(24, 6, action.RackID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(44, 6, action.ActionType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(action.Priority), "1", 0, "C", false, 0, "")
		pdf.CellFormat(32, 6, fmt.Sprintf("%d", action.EstimatedDurationMin), "1", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, fmt.Sprintf("%.3f", action.EstimatedRecoveryMWh), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildFindingsXLSX renders the same operations report as a workbook.
func BuildFindingsXLSX(generatedAt time.Time, findings []insights.Finding, actions []balancing.Action) ([]byte, error) {
	f := excelize.NewFile()
	findingsSheet := "findings"
	actionsSheet := "actions"
	f.SetSheetName("Sheet1", findingsSheet)
	f.NewSheet(actionsSheet)

	_ = f.SetCellValue(findingsSheet, "A1", "Battery Operations Report")
	_ = f.SetCellValue(findingsSheet, "A2", "Generated")
	_ = f.SetCellValue(findingsSheet, "B2", generatedAt.Format(time.RFC3339))

	headers := []string{"Site", "Timestamp", "Severity", "Category", "Title", "Description", "Recommendation", "Value (GBP)", "Confidence", "Acknowledged"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		_ = f.SetCellValue(findingsSheet, cell, header)
	}
	for i, finding := range findings {
		row := i + 5
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("A%d", row), finding.SiteID)
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("B%d", row), finding.TS.Format(time.RFC3339))
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("C%d", row), string(finding.Severity))
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("D%d", row), string(finding.Category))
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("E%d", row), finding.Title)
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("F%d", row), finding.Description)
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("G%d", row), finding.Recommendation)
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("H%d", row), finding.EstimatedValueGBP)
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("I%d", row), finding.Confidence)
		_ = f.SetCellValue(findingsSheet, fmt.Sprintf("J%d", row), finding.Acknowledged)
	}

	_ = f.SetCellValue(actionsSheet, "A1", "Site")
	_ = f.SetCellValue(actionsSheet, "B1", "Rack")
	_ = f.SetCellValue(actionsSheet, "C1", "Action")
	_ = f.SetCellValue(actionsSheet, "D1", "Priority")
	_ = f.SetCellValue(actionsSheet, "E1", "Description")
	_ = f.SetCellValue(actionsSheet, "F1", "Duration (min)")
	_ = f.SetCellValue(actionsSheet, "G1", "Recovery (MWh)")
	for i, action := range actions {
		row := i + 2
		_ = f.SetCellValue(actionsSheet, fmt.Sprintf("A%d", row), action.SiteID)
		_ = f.SetCellValue(actionsSheet, fmt.Sprintf("B%d", row), action.RackID)
		_ = f.SetCellValue(actionsSheet, fmt.Sprintf("C%d", row), action.ActionType)
		_ = f.SetCellValue(actionsSheet, fmt.Sprintf("D%d", row), string(action.Priority))
		_ = f.SetCellValue(actionsSheet, fmt.Sprintf("E%d", row), action.Description)
		_ = f.SetCellValue(actionsSheet, fmt.Sprintf("F%d", row), action.EstimatedDurationMin)
		_ = f.SetCellValue(actionsSheet, fmt.Sprintf("G%d", row), action.EstimatedRecoveryMWh)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
