package broker

import "time"

// ServiceStatus is the health state a management endpoint reports for one of
// its subsystems.
type ServiceStatus string

const (
	StatusOK      ServiceStatus = "OK"
	StatusOffline ServiceStatus = "Offline"
)

// Health carries the per-subsystem health of a management endpoint. An
// endpoint is usable only when both subsystems are OK.
type Health struct {
	Broker     ServiceStatus `json:"brokerStatus" yaml:"brokerStatus"`
	Hypervisor ServiceStatus `json:"hypervisorStatus" yaml:"hypervisorStatus"`
}

// OK reports whether both subsystems are healthy.
func (h Health) OK() bool {
	return h.Broker == StatusOK && h.Hypervisor == StatusOK
}

// Site identifies the logical management domain behind an endpoint. Multiple
// endpoints may front the same site.
type Site struct {
	ID   string `json:"siteId" yaml:"siteId"`
	Name string `json:"siteName" yaml:"siteName"`
}

// MachineState is the broker-reported availability state of a machine.
type MachineState string

const (
	MachineAvailable   MachineState = "Available"
	MachineInUse       MachineState = "InUse"
	MachineOff         MachineState = "Off"
	MachineMaintenance MachineState = "Maintenance"
)

// Machine is a managed desktop as the broker reports it.
type Machine struct {
	ID           string       `json:"machineId" yaml:"machineId"`
	Name         string       `json:"machineName" yaml:"machineName"`
	HostName     string       `json:"hostName" yaml:"hostName"`
	DesktopGroup string       `json:"desktopGroup" yaml:"desktopGroup"`
	State        MachineState `json:"state" yaml:"state"`
}

// SessionState is the activity state of a user session.
type SessionState string

const (
	SessionActive       SessionState = "Active"
	SessionDisconnected SessionState = "Disconnected"
)

// Session is a user's occupancy of a managed desktop.
type Session struct {
	ID           string       `json:"sessionId" yaml:"sessionId"`
	UserName     string       `json:"userName" yaml:"userName"`
	MachineID    string       `json:"machineId" yaml:"machineId"`
	MachineName  string       `json:"machineName" yaml:"machineName"`
	HostName     string       `json:"hostName" yaml:"hostName"`
	DesktopGroup string       `json:"desktopGroup" yaml:"desktopGroup"`
	State        SessionState `json:"state" yaml:"state"`
	StateChanged time.Time    `json:"stateChangeTime" yaml:"stateChangeTime"`
}

// Idle returns how long the session has been in its current state.
func (s Session) Idle(now time.Time) time.Duration {
	if s.StateChanged.IsZero() {
		return 0
	}
	return now.Sub(s.StateChanged)
}

// TaskState is the lifecycle state of an asynchronous power action.
type TaskState string

const (
	TaskPending   TaskState = "Pending"
	TaskRunning   TaskState = "Running"
	TaskCompleted TaskState = "Completed"
	TaskFailed    TaskState = "Failed"
)

// Terminal reports whether the task has finished, successfully or not.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is the broker's view of an asynchronous power action.
type Task struct {
	ID          string     `json:"taskId" yaml:"taskId"`
	MachineID   string     `json:"machineId" yaml:"machineId"`
	State       TaskState  `json:"state" yaml:"state"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
}
