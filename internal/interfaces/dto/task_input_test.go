package dto

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return "s" + strconv.Itoa(s.n)
}

var mom = &entity.Member{ID: "mom", Role: entity.RoleAdmin, FamilyID: "silva"}

func TestToTask_Full(t *testing.T) {
	in := TaskInput{
		Title:   "  Water plants\x07 ",
		Shared:  true,
		DueDate: "2024-03-04",
		DueTime: "18:30",
		Repeat:  RepeatInput{Kind: "CUSTOM", Days: []string{"mon", "Thursday"}, StartDate: "2024-03-01"},
		Subtasks: []SubtaskInput{
			{Title: "Balcony", DueDate: "2024-03-04"},
			{ID: "keep", Title: "Kitchen", Done: true},
		},
		Categories: []CategoryInput{{Name: "Garden", Subtasks: []SubtaskInput{{Title: "Roses"}}}},
	}

	task, err := in.ToTask(mom, &seqIDs{}, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, "Water plants", task.Title)
	require.NotNil(t, task.FamilyID)
	assert.Equal(t, "silva", *task.FamilyID)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), *task.DueDate)
	assert.Equal(t, time.Date(2024, 3, 4, 18, 30, 0, 0, time.UTC), *task.DueTime)
	assert.Equal(t, entity.RepeatCustom, task.Repeat.Kind)
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, task.Repeat.Days)
	require.NotNil(t, task.Repeat.StartDate)

	require.Len(t, task.Subtasks, 2)
	assert.Equal(t, "s1", task.Subtasks[0].ID)
	assert.Equal(t, "keep", task.Subtasks[1].ID)
	assert.True(t, task.Subtasks[1].Done)
	require.Len(t, task.SubtaskCategories, 1)
	assert.Equal(t, "s2", task.SubtaskCategories[0].Subtasks[0].ID)
	assert.Equal(t, "s3", task.SubtaskCategories[0].ID)
}

func TestToTask_PersonalWithoutRepeat(t *testing.T) {
	task, err := (&TaskInput{Title: "Read"}).ToTask(mom, &seqIDs{}, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, task.FamilyID)
	assert.Nil(t, task.DueDate)
	assert.Equal(t, entity.RepeatNone, task.Repeat.Kind)
}

func TestToTask_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   TaskInput
		want error
	}{
		{"bad date", TaskInput{Title: "x", DueDate: "04/03/2024"}, ErrInvalidInput},
		{"bad clock", TaskInput{Title: "x", DueDate: "2024-03-04", DueTime: "7pm"}, ErrInvalidInput},
		{"time without date", TaskInput{Title: "x", DueTime: "10:00"}, ErrInvalidInput},
		{"unknown kind", TaskInput{Title: "x", Repeat: RepeatInput{Kind: "hourly"}}, entity.ErrInvalidRepeatConfig},
		{"unknown weekday", TaskInput{Title: "x", Repeat: RepeatInput{Kind: "custom", Days: []string{"funday"}}}, entity.ErrInvalidRepeatConfig},
		{"bad start", TaskInput{Title: "x", Repeat: RepeatInput{Kind: "daily", StartDate: "soon"}}, entity.ErrInvalidRepeatConfig},
		{"bad subtask date", TaskInput{Title: "x", Subtasks: []SubtaskInput{{Title: "y", DueDate: "x"}}}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.ToTask(mom, &seqIDs{}, time.UTC)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTaskInput_YAML(t *testing.T) {
	doc := `
title: Trash
shared: true
due_date: "2024-03-05"
repeat:
  kind: weekly
subtasks:
  - title: Recycling
`
	var in TaskInput
	require.NoError(t, yaml.Unmarshal([]byte(doc), &in))
	assert.Equal(t, "Trash", in.Title)
	assert.True(t, in.Shared)
	assert.Equal(t, "weekly", in.Repeat.Kind)
	require.Len(t, in.Subtasks, 1)
}
