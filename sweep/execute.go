package sweep

import (
	"context"
	"math/rand/v2"

	"github.com/go-logr/logr"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// Executor drives planned actions to submission. It re-validates every
// entity against live broker state immediately before acting, enforces the
// global restart budget, and collects the task handles of submitted power
// actions for the monitor.
type Executor struct {
	cfg      Config
	apis     map[string]broker.API
	counters *Counters
	log      logr.Logger

	pending []PendingTask
}

// NewExecutor builds an executor over the selected site bindings.
func NewExecutor(cfg Config, bindings []SiteBinding, counters *Counters, log logr.Logger) *Executor {
	apis := make(map[string]broker.API, len(bindings))
	for _, b := range bindings {
		apis[b.Site.ID] = b.API
	}
	return &Executor{cfg: cfg, apis: apis, counters: counters, log: log}
}

// Pending returns the power-action handles submitted so far. Ownership
// passes to the monitor once execution is complete.
func (e *Executor) Pending() []PendingTask {
	return e.pending
}

// Run executes one batch of planned records. The batch is shuffled across
// sites first so no single site can drain the whole restart budget.
func (e *Executor) Run(ctx context.Context, records []Record) {
	shuffled := make([]Record, len(records))
	copy(shuffled, records)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, rec := range shuffled {
		if ctx.Err() != nil {
			return
		}
		api, ok := e.apis[rec.SiteID]
		if !ok {
			continue
		}
		switch rec.Action {
		case ActionRestart:
			if rec.Kind == KindMachine {
				e.restartMachine(ctx, api, rec)
			} else {
				e.restartSession(ctx, api, rec)
			}
		case ActionNag:
			// Only sessions carry a user to notify.
			if rec.Kind != KindSession || rec.Session == nil {
				continue
			}
			e.nag(ctx, api, rec, rec.Session.ID)
		}
	}
}

// restartMachine re-checks availability and submits a restart. The re-check
// makes the attempt at-most-once against stale analysis data.
func (e *Executor) restartMachine(ctx context.Context, api broker.API, rec Record) {
	live, err := api.GetMachine(ctx, rec.Machine.ID)
	if err != nil {
		e.log.Info("machine state re-check failed, skipping",
			"site", rec.SiteID, "machine", rec.Machine.Name, "error", err.Error())
		e.counters.MarkSkippedStale()
		return
	}
	if live.State != broker.MachineAvailable {
		e.log.Info("machine no longer available, skipping restart",
			"site", rec.SiteID, "machine", live.Name, "state", live.State)
		e.counters.MarkSkippedStale()
		return
	}
	e.submitRestart(ctx, api, rec, live.ID, live.Name)
}

// restartSession re-checks the session. A session that became active is
// downgraded to a nag at execution time; a still-idle one has its machine
// restarted.
func (e *Executor) restartSession(ctx context.Context, api broker.API, rec Record) {
	live, err := api.GetSession(ctx, rec.Session.ID)
	if err != nil {
		e.log.Info("session state re-check failed, skipping",
			"site", rec.SiteID, "machine", rec.Session.MachineName, "error", err.Error())
		e.counters.MarkSkippedStale()
		return
	}
	if live.State == broker.SessionActive {
		e.log.Info("session became active, downgrading restart to nag",
			"site", rec.SiteID, "machine", live.MachineName, "user", live.UserName)
		e.nag(ctx, api, rec, live.ID)
		return
	}
	e.submitRestart(ctx, api, rec, live.MachineID, live.MachineName)
}

func (e *Executor) submitRestart(ctx context.Context, api broker.API, rec Record, machineID, machineName string) {
	if !e.counters.ReserveRestart(e.cfg.MaxRestarts) {
		e.log.Info("restart budget exhausted, skipping",
			"site", rec.SiteID, "machine", machineName, "budget", e.cfg.MaxRestarts)
		return
	}

	if e.cfg.DryRun {
		e.counters.MarkRestartSimulated()
		e.log.Info("dry-run: would restart machine",
			"site", rec.SiteID, "machine", machineName, "image", rec.ImageID)
		return
	}

	taskID, err := api.Restart(ctx, machineID)
	if err != nil {
		e.counters.MarkRestartFailed()
		e.log.Error(err, "restart submission failed",
			"site", rec.SiteID, "machine", machineName)
		return
	}
	e.counters.MarkRestartRequested()
	e.pending = append(e.pending, PendingTask{
		TaskID:      taskID,
		MachineName: machineName,
		SiteID:      rec.SiteID,
		API:         api,
	})
	e.log.Info("restart requested",
		"site", rec.SiteID, "machine", machineName, "task", taskID)
}

// nag looks up the live session and delivers the notification. A session
// that disappeared since analysis is skipped.
func (e *Executor) nag(ctx context.Context, api broker.API, rec Record, sessionID string) {
	live, err := api.GetSession(ctx, sessionID)
	if err != nil {
		e.log.Info("session gone, skipping nag",
			"site", rec.SiteID, "machine", rec.Session.MachineName, "error", err.Error())
		e.counters.MarkSkippedStale()
		return
	}

	if err := api.Notify(ctx, live.ID, e.cfg.NagTitle, e.cfg.NagText); err != nil {
		e.counters.MarkNagFailed()
		e.log.Error(err, "notification failed",
			"site", rec.SiteID, "machine", live.MachineName, "user", live.UserName)
		return
	}
	e.counters.MarkNagSent()
	e.log.Info("notification sent",
		"site", rec.SiteID, "machine", live.MachineName, "user", live.UserName)
}
