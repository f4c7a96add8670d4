package observability

import (
	"sync"
	"time"
)

type Role string

const (
	RoleIdle      Role = "IDLE"
	RolePlanning  Role = "PLANNING"
	RoleExecuting Role = "EXECUTING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentRole   Role
	ActiveTask    string
	LastHeartbeat time.Time
	TasksRun      int
}

var globalStatus = &SystemStatus{
	CurrentRole:   RoleIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(role Role, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = role
	globalStatus.ActiveTask = task
}

// TaskFinished resets the role to idle and bumps the completed-task counter.
func TaskFinished() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = RoleIdle
	globalStatus.ActiveTask = ""
	globalStatus.TasksRun++
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Role, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveTask, globalStatus.LastHeartbeat
}

// TasksRun reports how many tasks finished since start.
func TasksRun() int {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.TasksRun
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
