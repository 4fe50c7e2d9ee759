package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healingspace/healingspace/internal/config"
	"github.com/healingspace/healingspace/internal/database"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDeliverer struct {
	delivered int
	err       error
	calls     atomic.Int32
}

func (f *fakeDeliverer) DeliverDue(context.Context) (int, error) {
	f.calls.Add(1)
	return f.delivered, f.err
}

func TestSchedulerRunsEnabledTasks(t *testing.T) {
	var ran, skipped atomic.Int32
	tasks := map[string]TaskFunc{
		"every_second": func(context.Context) error { ran.Add(1); return nil },
		"disabled":     func(context.Context) error { skipped.Add(1); return nil },
		"failing":      func(context.Context) error { return errors.New("boom") },
	}
	cfg := config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"every_second": {Enabled: true, Schedule: "* * * * * *"},
		"disabled":     {Enabled: false, Schedule: "* * * * * *"},
		"failing":      {Enabled: true, Schedule: "* * * * * *"},
		"unknown":      {Enabled: true, Schedule: "* * * * * *"},
		"bad_cron":     {Enabled: true, Schedule: "not a cron"},
	}}

	s, err := New(discardLogger(), cfg, tasks)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return ran.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Zero(t, skipped.Load())
}

func TestDeliverScheduledTask(t *testing.T) {
	deliverer := &fakeDeliverer{delivered: 2}
	tasks := RegisterAllTasks(TaskDeps{Logger: discardLogger(), Messaging: deliverer})

	require.NoError(t, tasks[TaskDeliverScheduled](context.Background()))
	assert.Equal(t, int32(1), deliverer.calls.Load())

	deliverer.err = errors.New("message 4: locked")
	assert.Error(t, tasks[TaskDeliverScheduled](context.Background()))
}

func TestSQLMaintenanceTask(t *testing.T) {
	db, err := database.NewDB(config.DatabaseConfig{
		Driver:       database.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "maint.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	tasks := RegisterAllTasks(TaskDeps{Logger: discardLogger(), Store: database.NewStore(db, nil)})
	assert.NoError(t, tasks[TaskSQLMaintenance](context.Background()))
}

func TestRegisterAllTasksMatchesDefaults(t *testing.T) {
	tasks := RegisterAllTasks(TaskDeps{Logger: discardLogger()})
	for name := range config.DefaultTasks {
		assert.Contains(t, tasks, name)
	}
}
