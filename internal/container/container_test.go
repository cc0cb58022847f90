package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/config"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/infrastructure/remote"
	"github.com/garyjia/tasksync/pkg/database"
)

func testConfig(online bool) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Path: database.MemoryPath},
		Sync: config.SyncConfig{
			StartOnline:     online,
			ReleaseDelay:    10 * time.Millisecond,
			DrainInterval:   time.Hour,
			RemoteTimeout:   time.Second,
			FallbackTimeout: time.Second,
		},
		Undo:      config.UndoConfig{Window: time.Minute},
		Reminders: config.ReminderConfig{LeadTime: time.Minute, Throttle: time.Millisecond, DefaultHour: 9},
		Family:    config.FamilyConfig{ID: "silva"},
		Members: []config.MemberConfig{
			{ID: "kid", Name: "Lia", Role: "dependente"},
			{ID: "mom", Name: "Ana", Role: "admin"},
		},
		I18n: config.I18nConfig{DefaultLanguage: "en"},
	}
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(true)
	cfg.Members = nil
	_, err := NewContainer(cfg, zap.NewNop(), Options{})
	assert.Error(t, err)

	_, err = NewContainer(nil, zap.NewNop(), Options{})
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	store := remote.NewMemoryStore(zap.NewNop())
	c, err := NewContainer(testConfig(true), zap.NewNop(), Options{Remote: store})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx))

	mom, err := c.Services().Roster.Lookup("mom")
	require.NoError(t, err)

	task, err := c.Services().Tasks.Save(ctx, mom, &entity.Task{
		Title:    "Dishes",
		FamilyID: entity.StringPtr("silva"),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		remoteTasks, err := store.ListTasks(ctx, port.TaskFilter{FamilyID: "silva", UserID: "mom"})
		return err == nil && len(remoteTasks) == 1
	}, time.Second, 5*time.Millisecond)

	cached, err := c.Repositories().Cache.GetTasks(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cached)

	history, err := c.Services().Tasks.History(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, entity.ActionCreated, history[0].Action)
	assert.Equal(t, "Dishes", task.Title)

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.True(t, health.Online)
	assert.Equal(t, "schema v2", health.Components["database"].Message)
	assert.Equal(t, 2, c.Workers().GetWorkerCount())
	assert.Equal(t, "Oops", c.Translator().Localize("Oops"))

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))
}

func TestContainer_OfflineQueuesAndDrains(t *testing.T) {
	store := remote.NewMemoryStore(zap.NewNop())
	c, err := NewContainer(testConfig(false), zap.NewNop(), Options{Remote: store, SkipWorkers: true})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Close()
	assert.Nil(t, c.Workers())

	mom, err := c.Services().Roster.Lookup("mom")
	require.NoError(t, err)
	_, err = c.Services().Tasks.Save(ctx, mom, &entity.Task{Title: "Laundry", FamilyID: entity.StringPtr("silva")})
	require.NoError(t, err)

	ops, err := c.Services().Tasks.PendingOperations(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, ops)
	assert.Equal(t, len(ops), c.Health(ctx).Pending)

	require.NoError(t, c.Connectivity().Set(ctx, true))
	report, err := c.Services().Tasks.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Remaining)

	remoteTasks, err := store.ListTasks(ctx, port.TaskFilter{FamilyID: "silva", UserID: "mom"})
	require.NoError(t, err)
	assert.Len(t, remoteTasks, 1)
}

func TestSyncOwner_PrefersAdmin(t *testing.T) {
	owner, err := syncOwner(testConfig(true))
	require.NoError(t, err)
	assert.Equal(t, "mom", owner.ID)
	assert.Equal(t, "silva", owner.FamilyID)
}
