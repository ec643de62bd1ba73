package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// ErrNoHealthyEndpoints aborts the run: without at least one healthy
// management endpoint there is nothing to analyze.
var ErrNoHealthyEndpoints = errors.New("no healthy management endpoints found")

// Dialer turns an endpoint address into a broker API client; tests inject
// fakes through it.
type Dialer func(endpoint string) broker.API

// SiteBinding is the endpoint selected to manage one site for the run.
type SiteBinding struct {
	Site broker.Site
	API  broker.API
}

// Probe pacing. Variables so tests can shrink the retry window.
var (
	probeInterval = 2 * time.Second
	probeWindow   = 6 * time.Second
)

// SelectEndpoints probes candidate endpoints in order and binds exactly one
// healthy endpoint per site, first-discovered-wins. Probe failures are
// treated as offline, never as run errors. The returned slice preserves
// discovery order so downstream passes are deterministic.
func SelectEndpoints(ctx context.Context, log logr.Logger, dial Dialer, candidates []string) ([]SiteBinding, error) {
	seen := sets.New[string]()
	var bindings []SiteBinding

	for _, endpoint := range candidates {
		api := dial(endpoint)

		if !probeEndpoint(ctx, log, api) {
			log.Info("skipping unhealthy endpoint", "endpoint", endpoint)
			continue
		}

		site, err := api.Site(ctx)
		if err != nil {
			log.Info("skipping endpoint without site identity", "endpoint", endpoint, "error", err.Error())
			continue
		}

		if seen.Has(site.ID) {
			log.V(1).Info("dropping duplicate endpoint for site", "endpoint", endpoint, "site", site.ID)
			continue
		}
		seen.Insert(site.ID)
		bindings = append(bindings, SiteBinding{Site: site, API: api})
		log.Info("selected endpoint", "site", site.ID, "siteName", site.Name, "endpoint", endpoint)
	}

	if len(bindings) == 0 {
		return nil, ErrNoHealthyEndpoints
	}
	return bindings, nil
}

// probeEndpoint checks broker and hypervisor health, retrying transport
// failures within a short window before writing the candidate off.
func probeEndpoint(ctx context.Context, log logr.Logger, api broker.API) bool {
	var healthy bool
	err := wait.PollUntilContextTimeout(ctx, probeInterval, probeWindow, true,
		func(ctx context.Context) (bool, error) {
			h, err := api.Health(ctx)
			if err != nil {
				log.V(1).Info("health probe failed, retrying", "endpoint", api.Endpoint(), "error", err.Error())
				return false, nil
			}
			healthy = h.OK()
			if !healthy {
				log.V(1).Info("endpoint reports degraded service",
					"endpoint", api.Endpoint(), "broker", h.Broker, "hypervisor", h.Hypervisor)
			}
			return true, nil
		})
	if err != nil {
		// Retry window exhausted without a definitive answer.
		return false
	}
	return healthy
}
