package sweep

import (
	"time"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// Action is the remediation planned for one record.
type Action string

const (
	ActionNone    Action = "None"
	ActionNag     Action = "Nag"
	ActionRestart Action = "Restart"
)

// PlanMachine decides the action for an available machine. Unoccupied
// machines on an outdated image are restarted outright.
func PlanMachine(status UpdateStatus) Action {
	if status == StatusRestartRequired {
		return ActionRestart
	}
	return ActionNone
}

// PlanSession decides the action for a session. A forced restart is allowed
// only when the session is disconnected and has been idle for at least the
// configured threshold; otherwise an outdated session gets a nag.
func PlanSession(status UpdateStatus, s broker.Session, idleThreshold time.Duration, now time.Time) Action {
	if status != StatusRestartRequired {
		return ActionNone
	}
	if s.State != broker.SessionActive && s.Idle(now) >= idleThreshold {
		return ActionRestart
	}
	return ActionNag
}
