package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"subsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter writes reconciliation run history to xlsx files in the
// configured export directory.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// ExportHistory renders the runs to a new xlsx file and returns its path.
func (e *Exporter) ExportHistory(ctx context.Context, runs []models.SyncRun) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sync Runs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Reconciliation history - generated %s",
		time.Now().Format("2006-01-02 15:04")))

	headers := []string{"Run ID", "Job", "Started", "Finished", "Elapsed", "Success", "Failed", "Skipped", "Note"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 2)
	_ = f.SetCellStyle(sheetName, "A2", lastHeader, headerStyle)

	for i, run := range runs {
		row := i + 3
		values := []any{
			run.RunID,
			run.JobID,
			run.StartedAt.Format(time.RFC3339),
			run.FinishedAt.Format(time.RFC3339),
			run.Duration().Round(time.Millisecond).String(),
			run.SuccessCount,
			run.FailedCount,
			run.SkippedCount,
			run.Note,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "E", 24)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.MergeCell(sheetName, "A1", lastHeader[:1]+"1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("sync_report_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	filePath := filepath.Join(e.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("sync report created")
	return filePath, nil
}
