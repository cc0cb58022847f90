package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

func sampleHistory() []*entity.HistoryEntry {
	at := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	return []*entity.HistoryEntry{
		{ID: "h3", Action: entity.ActionCompleted, TaskTitle: "Dishes", TaskID: "1", ActorID: "kid", ActorName: "Kid", Timestamp: at.Add(2 * time.Minute)},
		{ID: "h2", Action: entity.ActionEdited, TaskTitle: "Dishes", TaskID: "1", Details: `title: "Dish" -> "Dishes"`, ActorID: "mom", ActorName: "Mom", Timestamp: at.Add(time.Minute)},
		{ID: "h1", Action: entity.ActionCreated, TaskTitle: "Dish", TaskID: "1", ActorID: "mom", ActorName: "Mom", Timestamp: at},
	}
}

func TestWriteHistoryXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewHistoryExporter(zap.NewNop()).WriteHistoryXLSX(&buf, sampleHistory()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{HistorySheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(HistorySheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Timestamp", "Member", "Action", "Task", "Task ID", "Details"}, rows[0])
	assert.Equal(t, "2024-01-10 09:32:00", rows[1][0])
	assert.Equal(t, "Kid", rows[1][1])
	assert.Equal(t, `title: "Dish" -> "Dishes"`, rows[2][5])

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"Member", "completed", "created", "edited", "Total"}, summary[0])
	assert.Equal(t, []string{"Kid", "1", "0", "0", "1"}, summary[1])
	assert.Equal(t, []string{"Mom", "0", "1", "1", "2"}, summary[2])
}

func TestSaveHistoryXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.xlsx")
	require.NoError(t, NewHistoryExporter(zap.NewNop()).SaveHistoryXLSX(path, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(HistorySheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
