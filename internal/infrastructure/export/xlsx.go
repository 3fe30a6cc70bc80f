// Package export renders expense ledgers as spreadsheets.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	expensesSheet  = "Expenses"
	approvalsSheet = "Approvals"

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

var (
	expenseHeader = []interface{}{
		"Expense ID", "Date", "Employee", "Email", "Category", "Description",
		"Amount", "Currency", "Converted Amount", "Status", "Stalled", "Comments", "Receipt",
	}
	approvalHeader = []interface{}{
		"Expense ID", "Record ID", "Step", "Approver ID", "Action", "Comments", "Decided At",
	}
)

// XLSXExporter implements port.ExpenseExporter with excelize
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new XLSX exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// Export writes one expense per row on the Expenses sheet and one decision slot per row on the Approvals sheet
func (x *XLSXExporter) Export(ctx context.Context, w io.Writer, rows []port.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", expensesSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(approvalsSheet); err != nil {
		return fmt.Errorf("failed to create approvals sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeader(f, expensesSheet, expenseHeader, headerStyle); err != nil {
		return err
	}
	if err := writeHeader(f, approvalsSheet, approvalHeader, headerStyle); err != nil {
		return err
	}

	approvalRow := 2
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := x.writeExpense(f, i+2, row); err != nil {
			return err
		}

		for _, record := range row.Approvals {
			decidedAt := ""
			if record.DecidedAt != nil {
				decidedAt = record.DecidedAt.Format(timestampLayout)
			}
			values := []interface{}{
				record.ExpenseID, record.ID, record.Step, record.ApproverID,
				actionLabel(record.Action), record.Comments, decidedAt,
			}
			if err := setRow(f, approvalsSheet, approvalRow, values); err != nil {
				return err
			}
			approvalRow++
		}
	}

	if len(rows) > 0 {
		totalRow := len(rows) + 2
		if err := f.SetCellValue(expensesSheet, fmt.Sprintf("H%d", totalRow), "Total"); err != nil {
			return fmt.Errorf("failed to set total label: %w", err)
		}
		formula := fmt.Sprintf("SUM(I2:I%d)", totalRow-1)
		if err := f.SetCellFormula(expensesSheet, fmt.Sprintf("I%d", totalRow), formula); err != nil {
			return fmt.Errorf("failed to set total formula: %w", err)
		}
	}

	x.setWidth(f, expensesSheet, "F", 40)
	x.setWidth(f, approvalsSheet, "F", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	x.logger.Info("Expense ledger exported", zap.Int("expenses", len(rows)), zap.Int("approval_rows", approvalRow-2))
	return nil
}

func (x *XLSXExporter) writeExpense(f *excelize.File, rowNum int, row port.ExportRow) error {
	e := row.Expense
	name, email := "", ""
	if row.Submitter != nil {
		name, email = row.Submitter.Name, row.Submitter.Email
	}

	stalled := ""
	if e.Stalled {
		stalled = e.StallReason
	}

	values := []interface{}{
		e.ID,
		e.ExpenseDate.Format(dateLayout),
		name,
		email,
		e.Category,
		e.Description,
		e.AmountOriginal.InexactFloat64(),
		e.CurrencyOriginal,
		e.AmountConverted.InexactFloat64(),
		e.Status,
		stalled,
		e.Comments,
		e.ReceiptURL,
	}
	return setRow(f, expensesSheet, rowNum, values)
}

// setWidth sets a column width, logging instead of failing since layout is cosmetic
func (x *XLSXExporter) setWidth(f *excelize.File, sheet, col string, width float64) {
	if err := f.SetColWidth(sheet, col, col, width); err != nil {
		x.logger.Warn("Failed to set column width",
			zap.String("sheet", sheet),
			zap.String("col", col),
			zap.Error(err))
	}
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("failed to resolve header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header of %s: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to resolve row %d: %w", rowNum, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}

func actionLabel(action string) string {
	if action == "" {
		return "pending"
	}
	return action
}
