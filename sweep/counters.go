package sweep

import "sync"

// Counters tallies the outcomes of one run. Execution may attempt actions
// concurrently, so every update goes through the mutex; the restart budget
// is reserved and consumed under the same lock so the requested+simulated
// total can never overshoot.
type Counters struct {
	mu sync.Mutex

	restartAttempts int

	nagsSent          int
	nagsFailed        int
	restartsRequested int
	restartsFailed    int
	restartsSimulated int
	skippedStale      int
	tasksSucceeded    int
	tasksFailed       int
}

// CountersSnapshot is an immutable copy of the counters for reporting.
type CountersSnapshot struct {
	NagsSent          int `json:"nagsSent"`
	NagsFailed        int `json:"nagsFailed"`
	RestartsRequested int `json:"restartsRequested"`
	RestartsFailed    int `json:"restartsFailed"`
	RestartsSimulated int `json:"restartsSimulated"`
	SkippedStale      int `json:"skippedStale"`
	TasksSucceeded    int `json:"tasksSucceeded"`
	TasksFailed       int `json:"tasksFailed"`
}

// ReserveRestart claims one slot of the restart budget. It counts every
// attempt, so failed submissions still consume budget and the attempted
// total stays bounded.
func (c *Counters) ReserveRestart(budget int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restartAttempts >= budget {
		return false
	}
	c.restartAttempts++
	return true
}

// MarkRestartRequested records a successfully submitted restart.
func (c *Counters) MarkRestartRequested() {
	c.mu.Lock()
	c.restartsRequested++
	c.mu.Unlock()
}

// MarkRestartFailed records a restart submission failure.
func (c *Counters) MarkRestartFailed() {
	c.mu.Lock()
	c.restartsFailed++
	c.mu.Unlock()
}

// MarkRestartSimulated records a dry-run restart that consumed budget
// without touching the broker.
func (c *Counters) MarkRestartSimulated() {
	c.mu.Lock()
	c.restartsSimulated++
	c.mu.Unlock()
}

// MarkNagSent records a delivered notification.
func (c *Counters) MarkNagSent() {
	c.mu.Lock()
	c.nagsSent++
	c.mu.Unlock()
}

// MarkNagFailed records a notification that could not be delivered.
func (c *Counters) MarkNagFailed() {
	c.mu.Lock()
	c.nagsFailed++
	c.mu.Unlock()
}

// MarkSkippedStale records an entity whose live state no longer matched the
// analysis and was therefore left alone.
func (c *Counters) MarkSkippedStale() {
	c.mu.Lock()
	c.skippedStale++
	c.mu.Unlock()
}

// MarkTaskSucceeded records a power action that reached a successful
// terminal state.
func (c *Counters) MarkTaskSucceeded() {
	c.mu.Lock()
	c.tasksSucceeded++
	c.mu.Unlock()
}

// MarkTaskFailed records a power action that terminally failed.
func (c *Counters) MarkTaskFailed() {
	c.mu.Lock()
	c.tasksFailed++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current tallies.
func (c *Counters) Snapshot() CountersSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountersSnapshot{
		NagsSent:          c.nagsSent,
		NagsFailed:        c.nagsFailed,
		RestartsRequested: c.restartsRequested,
		RestartsFailed:    c.restartsFailed,
		RestartsSimulated: c.restartsSimulated,
		SkippedStale:      c.skippedStale,
		TasksSucceeded:    c.tasksSucceeded,
		TasksFailed:       c.tasksFailed,
	}
}
