package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimal = `
family:
  id: silva
members:
  - id: mom
    name: Ana
    role: admin
  - id: kid
    name: Lia
    role: dependente
    family_id: other
    permissions:
      create: true
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/tasksync.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Undo.Window)
	assert.Equal(t, 15*time.Minute, cfg.Reminders.LeadTime)
	assert.Equal(t, 9, cfg.Reminders.DefaultHour)
	assert.True(t, cfg.Sync.StartOnline)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.ReleaseDelay)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
}

func TestLoad_Roster(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	roster := cfg.Roster()
	require.Len(t, roster, 2)
	assert.Equal(t, entity.RoleAdmin, roster[0].Role)
	assert.Equal(t, "silva", roster[0].FamilyID, "family.id is inherited")
	assert.Equal(t, "other", roster[1].FamilyID)
	assert.True(t, roster[1].Permissions.Create)
	assert.False(t, roster[1].Permissions.Delete)

	require.NotNil(t, cfg.FamilyID())
	assert.Equal(t, "silva", *cfg.FamilyID())
}

func TestLoad_DurationsAndEnvOverride(t *testing.T) {
	t.Setenv("TASKSYNC_FAMILY_ID", "souza")
	t.Setenv("TASKSYNC_DB_PATH", ":memory:")

	cfg, err := Load(writeConfig(t, minimal+`
undo:
  window: 4s
sync:
  drain_interval: 1m
`))
	require.NoError(t, err)

	assert.Equal(t, 4*time.Second, cfg.Undo.Window)
	assert.Equal(t, time.Minute, cfg.Sync.DrainInterval)
	assert.Equal(t, "souza", cfg.Family.ID)
	assert.Equal(t, ":memory:", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Members:   []MemberConfig{{ID: "mom", Role: "admin"}},
			Undo:      UndoConfig{Window: time.Second},
			Sync:      SyncConfig{ReleaseDelay: time.Second, DrainInterval: time.Second, RemoteTimeout: time.Second, FallbackTimeout: time.Second},
			Reminders: ReminderConfig{DefaultHour: 9},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty roster", func(c *Config) { c.Members = nil }},
		{"unknown role", func(c *Config) { c.Members[0].Role = "guest" }},
		{"missing id", func(c *Config) { c.Members[0].ID = "" }},
		{"duplicate id", func(c *Config) { c.Members = append(c.Members, MemberConfig{ID: "mom", Role: "admin"}) }},
		{"zero undo window", func(c *Config) { c.Undo.Window = 0 }},
		{"negative release delay", func(c *Config) { c.Sync.ReleaseDelay = -time.Second }},
		{"zero drain interval", func(c *Config) { c.Sync.DrainInterval = 0 }},
		{"zero fallback timeout", func(c *Config) { c.Sync.FallbackTimeout = 0 }},
		{"negative probe", func(c *Config) { c.Sync.ProbeInterval = -time.Second }},
		{"hour out of range", func(c *Config) { c.Reminders.DefaultHour = 24 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestFamilyID_Personal(t *testing.T) {
	assert.Nil(t, (&Config{}).FamilyID())
}
