package sweep

import (
	"context"
	"io"
	"time"

	"github.com/go-logr/logr"

	"github.com/halcyonlabs/vdisweep/pkg/guest"
)

// Deps are the run's external collaborators. Production wiring lives in the
// cli package; tests substitute fakes.
type Deps struct {
	Dial  Dialer
	Guest guest.Querier
	Log   logr.Logger
	Out   io.Writer
	Now   func() time.Time
}

// Run performs one complete sweep: endpoint selection, the availability
// pass, the gated session pass, throttled execution, power-action
// monitoring, and report aggregation. Partial failures inside a site are
// logged and counted; only an empty endpoint selection is fatal.
func Run(ctx context.Context, cfg Config, deps Deps) (*Report, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	start := now()
	log := deps.Log

	bindings, err := SelectEndpoints(ctx, log, deps.Dial, cfg.Endpoints)
	if err != nil {
		return nil, err
	}

	counters := &Counters{}
	executor := NewExecutor(cfg, bindings, counters, log)

	var all []Record
	restartPlanned := make(map[string]bool)

	if cfg.Scope.IncludesMachines() {
		var machineRecords []Record
		for _, b := range bindings {
			records, err := CollectMachines(ctx, log, cfg, b, deps.Guest, now())
			if err != nil {
				log.Error(err, "availability pass failed for site, continuing", "site", b.Site.ID)
				continue
			}
			for _, rec := range records {
				if rec.Action == ActionRestart {
					restartPlanned[rec.SiteID] = true
				}
			}
			machineRecords = append(machineRecords, records...)
			log.Info("availability pass analyzed", "site", b.Site.ID, "machines", len(records))
		}
		executor.Run(ctx, machineRecords)
		all = append(all, machineRecords...)
	}

	deferred := make(map[string]bool)
	if cfg.Scope.IncludesSessions() {
		var sessionRecords []Record
		for _, b := range bindings {
			if restartPlanned[b.Site.ID] {
				// Machine restarts are still outstanding on this site; do not
				// disturb users while the less invasive path may resolve the
				// update on its own.
				deferred[b.Site.ID] = true
				log.Info("deferring session pass: machine restarts outstanding", "site", b.Site.ID)
				continue
			}
			records, err := CollectSessions(ctx, log, cfg, b, deps.Guest, now())
			if err != nil {
				log.Error(err, "session pass failed for site, continuing", "site", b.Site.ID)
				continue
			}
			sessionRecords = append(sessionRecords, records...)
			log.Info("session pass analyzed", "site", b.Site.ID, "sessions", len(records))
		}
		executor.Run(ctx, sessionRecords)
		all = append(all, sessionRecords...)
	}

	pending := executor.Pending()
	if cfg.Async && len(pending) > 0 {
		log.Info("asynchronous run, not monitoring power actions", "tasks", len(pending))
	} else if len(pending) > 0 {
		pending = MonitorTasks(ctx, log, out, pending, counters, cfg.PollInterval, cfg.MonitorTimeout)
	}

	return BuildReport(all, deferred, counters.Snapshot(), pending, now().Sub(start)), nil
}
