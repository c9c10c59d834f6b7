package export

import (
	"fmt"
	"io"

	"wisefido-scale/internal/models"

	"github.com/xuri/excelize/v2"
)

// SheetName 导出工作表名
const SheetName = "Weight History"

// Header 导出列
var Header = []string{"Date", "Hour", "User", "Weight (kg)", "Morning", "Last", "Record ID"}

var columnWidths = []float64{
	12, // Date
	6,  // Hour
	16, // User
	12, // Weight (kg)
	10, // Morning
	8,  // Last
	38, // Record ID
}

// WriteWorkbook 把称重记录写成 xlsx，一条记录一行
func WriteWorkbook(w io.Writer, records []*models.WeightRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range Header {
		if err := setCellValue(f, col+1, 1, header); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, r := range records {
		row := i + 2 // 第 1 行是表头
		values := []interface{}{
			fmt.Sprintf("%04d-%02d-%02d", r.Year, r.Month, r.Day),
			r.Hour,
			r.User,
			r.W,
			yesNo(r.Morning),
			yesNo(r.Last),
			r.ID,
		}
		for col, v := range values {
			if err := setCellValue(f, col+1, row, v); err != nil {
				return fmt.Errorf("failed to set cell at row %d: %w", row, err)
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCellValue(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(SheetName, cell, value)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
