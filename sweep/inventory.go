package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/vdisweep/pkg/guest"
)

// CollectMachines lists available machines on one site, applies the group
// filter, and annotates each machine record with its classified image.
func CollectMachines(ctx context.Context, log logr.Logger, cfg Config, binding SiteBinding, q guest.Querier, now time.Time) ([]Record, error) {
	machines, err := binding.API.ListAvailableMachines(ctx, cfg.MaxRecords)
	if err != nil {
		return nil, err
	}

	filtered := machines[:0]
	for _, m := range machines {
		if cfg.MatchGroup(m.DesktopGroup) {
			filtered = append(filtered, m)
		}
	}
	machines = filtered
	if len(machines) == 0 {
		return nil, nil
	}

	hosts := make([]string, 0, len(machines))
	for _, m := range machines {
		hosts = append(hosts, m.HostName)
	}
	images := resolveImages(ctx, log, q, hosts, cfg.QueryConcurrency, cfg.QueryTimeout)

	records := make([]Record, 0, len(machines))
	for i := range machines {
		m := machines[i]
		imageID := images[m.HostName]
		status := cfg.Classify(imageID)
		records = append(records, Record{
			Kind:     KindMachine,
			SiteID:   binding.Site.ID,
			SiteName: binding.Site.Name,
			Machine:  &m,
			ImageID:  imageID,
			Status:   status,
			Action:   PlanMachine(status),
		})
	}
	return records, nil
}

// CollectSessions lists sessions on one site, applies the group filter, and
// annotates each session record with its classified image and planned
// action.
func CollectSessions(ctx context.Context, log logr.Logger, cfg Config, binding SiteBinding, q guest.Querier, now time.Time) ([]Record, error) {
	sessions, err := binding.API.ListSessions(ctx, cfg.MaxRecords)
	if err != nil {
		return nil, err
	}

	filtered := sessions[:0]
	for _, s := range sessions {
		if cfg.MatchGroup(s.DesktopGroup) {
			filtered = append(filtered, s)
		}
	}
	sessions = filtered
	if len(sessions) == 0 {
		return nil, nil
	}

	hosts := make([]string, 0, len(sessions))
	for _, s := range sessions {
		hosts = append(hosts, s.HostName)
	}
	images := resolveImages(ctx, log, q, hosts, cfg.QueryConcurrency, cfg.QueryTimeout)

	records := make([]Record, 0, len(sessions))
	for i := range sessions {
		s := sessions[i]
		imageID := images[s.HostName]
		status := cfg.Classify(imageID)
		records = append(records, Record{
			Kind:     KindSession,
			SiteID:   binding.Site.ID,
			SiteName: binding.Site.Name,
			Session:  &s,
			ImageID:  imageID,
			Status:   status,
			Action:   PlanSession(status, s, cfg.IdleThreshold, now),
		})
	}
	return records, nil
}

// resolveImages queries the guest agent of every distinct host, bounded by
// the concurrency limit and one shared deadline. Hosts that do not answer in
// time are simply absent from the result; classification maps them to
// Unknown. Partial results are expected, not an error.
func resolveImages(ctx context.Context, log logr.Logger, q guest.Querier, hosts []string, limit int, timeout time.Duration) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	distinct := make([]string, 0, len(hosts))
	seen := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		distinct = append(distinct, h)
	}

	var mu sync.Mutex
	images := make(map[string]string, len(distinct))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, host := range distinct {
		host := host
		g.Go(func() error {
			id, err := q.DiskImage(ctx, host)
			if err != nil {
				log.V(1).Info("disk-image query unresolved", "host", host, "error", err.Error())
				return nil
			}
			if id == "" {
				return nil
			}
			mu.Lock()
			images[host] = id
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(images) < len(distinct) {
		log.Info("disk-image resolution incomplete",
			"resolved", len(images), "hosts", len(distinct))
	}
	return images
}
