// Package scheduler implements the scheduled maintenance tasks of the docgate
// platform and the dispatcher that routes EventBridge payloads to them.
//
// Every task accepts a reference time so that manual invocations can
// backfill a specific hour or day.
package scheduler

import "time"

// TaskType identifies which maintenance task an EventBridge rule triggers.
type TaskType string

const (
	TaskSweepGuestSessions    TaskType = "sweep_guest_sessions"
	TaskSweepSessions         TaskType = "sweep_sessions"
	TaskCleanupSecurityEvents TaskType = "cleanup_security_events"
	TaskSyncSubscriptions     TaskType = "sync_subscriptions"
	TaskExportActivity        TaskType = "export_activity"
)

// MaintenancePayload is the JSON payload EventBridge sends to the archiver:
//
//	{
//	  "task": "export_activity",
//	  "reference_time": "2026-03-14T02:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now". Nil means the dispatcher clock.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
