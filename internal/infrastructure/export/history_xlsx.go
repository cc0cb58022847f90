package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names in the exported workbook
const (
	HistorySheet = "History"
	SummarySheet = "Summary"
)

var historyHeader = []interface{}{"Timestamp", "Member", "Action", "Task", "Task ID", "Details"}

// HistoryExporter renders the family audit trail as a spreadsheet
type HistoryExporter struct {
	logger *zap.Logger
}

// NewHistoryExporter creates a new exporter
func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{logger: logger}
}

// WriteHistoryXLSX writes entries (newest first) to w as an .xlsx workbook
// with a detail sheet and a per-member action summary.
func (e *HistoryExporter) WriteHistoryXLSX(w io.Writer, entries []*entity.HistoryEntry) error {
	f, err := e.build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveHistoryXLSX writes the workbook to path
func (e *HistoryExporter) SaveHistoryXLSX(path string, entries []*entity.HistoryEntry) error {
	f, err := e.build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	e.logger.Info("History exported", zap.String("output_path", path), zap.Int("entries", len(entries)))
	return nil
}

func (e *HistoryExporter) build(entries []*entity.HistoryEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", HistorySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := e.fillHistory(f, entries); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add summary sheet: %w", err)
	}
	if err := e.fillSummary(f, entries); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (e *HistoryExporter) fillHistory(f *excelize.File, entries []*entity.HistoryEntry) error {
	if err := f.SetSheetRow(HistorySheet, "A1", &historyHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	e.styleHeader(f, HistorySheet, "A1", "F1")

	for i, h := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		actor := h.ActorName
		if actor == "" {
			actor = h.ActorID
		}
		row := []interface{}{
			h.Timestamp.Format("2006-01-02 15:04:05"),
			actor,
			h.Action,
			h.TaskTitle,
			h.TaskID,
			h.Details,
		}
		if err := f.SetSheetRow(HistorySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write history row %d: %w", i+2, err)
		}
	}

	widths := map[string]float64{"A": 20, "B": 16, "C": 20, "D": 32, "E": 14, "F": 48}
	for col, width := range widths {
		if err := f.SetColWidth(HistorySheet, col, col, width); err != nil {
			e.logger.Warn("Failed to set column width", zap.String("column", col), zap.Error(err))
		}
	}

	if len(entries) > 0 {
		last := fmt.Sprintf("F%d", len(entries)+1)
		if err := f.AutoFilter(HistorySheet, "A1:"+last, nil); err != nil {
			e.logger.Warn("Failed to add auto filter", zap.Error(err))
		}
	}
	return nil
}

func (e *HistoryExporter) fillSummary(f *excelize.File, entries []*entity.HistoryEntry) error {
	counts := make(map[string]map[string]int)
	actions := make(map[string]struct{})
	for _, h := range entries {
		actor := h.ActorName
		if actor == "" {
			actor = h.ActorID
		}
		if counts[actor] == nil {
			counts[actor] = make(map[string]int)
		}
		counts[actor][h.Action]++
		actions[h.Action] = struct{}{}
	}

	actorNames := sortedKeys(counts)
	actionNames := make([]string, 0, len(actions))
	for a := range actions {
		actionNames = append(actionNames, a)
	}
	sort.Strings(actionNames)

	header := []interface{}{"Member"}
	for _, a := range actionNames {
		header = append(header, a)
	}
	header = append(header, "Total")
	if err := f.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	e.styleHeader(f, SummarySheet, "A1", lastCol+"1")

	for i, actor := range actorNames {
		row := []interface{}{actor}
		total := 0
		for _, a := range actionNames {
			n := counts[actor][a]
			total += n
			row = append(row, n)
		}
		row = append(row, total)
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	return nil
}

func (e *HistoryExporter) styleHeader(f *excelize.File, sheet, from, to string) {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		e.logger.Warn("Failed to create header style", zap.Error(err))
		return
	}
	if err := f.SetCellStyle(sheet, from, to, style); err != nil {
		e.logger.Warn("Failed to style header", zap.String("sheet", sheet), zap.Error(err))
	}
}

func sortedKeys(m map[string]map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
