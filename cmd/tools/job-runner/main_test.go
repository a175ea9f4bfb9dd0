package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/scheduler"
)

func TestBuildPayload(t *testing.T) {
	p, err := buildPayload("export_activity", "2026-01-15T04:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, scheduler.TaskExportActivity, p.Task)
	require.NotNil(t, p.ReferenceTime)
	assert.Equal(t, time.Date(2026, 1, 15, 2, 30, 0, 0, time.UTC), *p.ReferenceTime)

	p, err = buildPayload("sweep_sessions", "")
	require.NoError(t, err)
	assert.Nil(t, p.ReferenceTime)
}

func TestBuildPayload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		task    string
		refTime string
		want    string
	}{
		{"missing task", "", "", "--task is required"},
		{"unknown task", "rebuild_search_index", "", "unknown task type"},
		{"bad time", "sweep_sessions", "yesterday", "invalid --reference-time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildPayload(tt.task, tt.refTime)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidTasksCoverDispatcher(t *testing.T) {
	for _, task := range []scheduler.TaskType{
		scheduler.TaskSweepGuestSessions,
		scheduler.TaskSweepSessions,
		scheduler.TaskCleanupSecurityEvents,
		scheduler.TaskSyncSubscriptions,
		scheduler.TaskExportActivity,
	} {
		assert.Contains(t, validTasks, task)
	}
}

func TestPrintPayload(t *testing.T) {
	ref := time.Date(2026, 1, 15, 2, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printPayload(&buf, scheduler.MaintenancePayload{Task: scheduler.TaskSyncSubscriptions, ReferenceTime: &ref}))
	assert.JSONEq(t, `{"task":"sync_subscriptions","reference_time":"2026-01-15T02:00:00Z"}`, buf.String())
}

func TestPrintAvailableTasks_Sorted(t *testing.T) {
	var buf bytes.Buffer
	printAvailableTasks(&buf)
	out := buf.String()

	assert.Less(t, strings.Index(out, "cleanup_security_events"), strings.Index(out, "sweep_sessions"))
	assert.Contains(t, out, "export_activity")
}
