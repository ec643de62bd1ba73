package sweep

import (
	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// Kind distinguishes the two entity kinds a record can describe.
type Kind string

const (
	KindMachine Kind = "machine"
	KindSession Kind = "session"
)

// Record pairs one machine or session with its classification and planned
// action. Records are produced once per analysis pass and not mutated;
// execution re-validates against live broker state instead.
type Record struct {
	Kind     Kind
	SiteID   string
	SiteName string

	Machine *broker.Machine
	Session *broker.Session

	ImageID string
	Status  UpdateStatus
	Action  Action
}

// Name returns the display name of the underlying entity.
func (r Record) Name() string {
	switch r.Kind {
	case KindMachine:
		return r.Machine.Name
	case KindSession:
		return r.Session.MachineName
	}
	return ""
}

// User returns the session's user, or empty for machine records.
func (r Record) User() string {
	if r.Kind == KindSession {
		return r.Session.UserName
	}
	return ""
}

// PendingTask tracks an asynchronous power action issued during execution,
// together with the site that issued it. The monitor owns the pending set
// after hand-off.
type PendingTask struct {
	TaskID      string
	MachineName string
	SiteID      string
	API         broker.API
}
