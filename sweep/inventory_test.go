package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// slowGuest answers only hosts in images; everything else blocks until the
// batch deadline.
type slowGuest struct {
	images map[string]string
}

func (g slowGuest) DiskImage(ctx context.Context, host string) (string, error) {
	if id, ok := g.images[host]; ok {
		return id, nil
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func inventoryConfig() Config {
	cfg := validConfig()
	cfg.QueryTimeout = 200 * time.Millisecond
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func TestCollectMachinesClassifiesAndPlans(t *testing.T) {
	api := newFakeAPI("ddc1", broker.Site{ID: "site-a", Name: "A"})
	api.addMachine(broker.Machine{ID: "m1", Name: "VDI-001", HostName: "vdi-001", DesktopGroup: "Win10", State: broker.MachineAvailable})
	api.addMachine(broker.Machine{ID: "m2", Name: "VDI-002", HostName: "vdi-002", DesktopGroup: "Win10", State: broker.MachineAvailable})
	api.addMachine(broker.Machine{ID: "m3", Name: "VDI-003", HostName: "vdi-003", DesktopGroup: "Win10", State: broker.MachineAvailable})

	binding := SiteBinding{Site: api.site, API: api}
	q := fakeGuest{images: map[string]string{
		"vdi-001": "IMG-42", // target
		"vdi-002": "IMG-17", // stale
		// vdi-003 unresolved
	}}

	records, err := CollectMachines(context.Background(), logr.Discard(), inventoryConfig(), binding, q, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 3)

	byID := map[string]Record{}
	for _, r := range records {
		byID[r.Machine.ID] = r
	}
	assert.Equal(t, StatusUpdateCompleted, byID["m1"].Status)
	assert.Equal(t, ActionNone, byID["m1"].Action)
	assert.Equal(t, StatusRestartRequired, byID["m2"].Status)
	assert.Equal(t, ActionRestart, byID["m2"].Action)
	assert.Equal(t, StatusUnknown, byID["m3"].Status)
	assert.Equal(t, ActionNone, byID["m3"].Action)
}

func TestCollectMachinesGroupFilter(t *testing.T) {
	api := newFakeAPI("ddc1", broker.Site{ID: "site-a"})
	api.addMachine(broker.Machine{ID: "m1", Name: "VDI-001", HostName: "vdi-001", DesktopGroup: "Win10-Finance", State: broker.MachineAvailable})
	api.addMachine(broker.Machine{ID: "m2", Name: "VDI-002", HostName: "vdi-002", DesktopGroup: "Win11-Lab", State: broker.MachineAvailable})

	cfg := inventoryConfig()
	cfg.GroupFilter = "Win10-*"
	require.NoError(t, cfg.Validate())

	records, err := CollectMachines(context.Background(), logr.Discard(), cfg,
		SiteBinding{Site: api.site, API: api}, fakeGuest{}, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "m1", records[0].Machine.ID)
}

func TestCollectSessionsSlowHostsDegradeToUnknown(t *testing.T) {
	api := newFakeAPI("ddc1", broker.Site{ID: "site-a"})
	now := time.Now()
	api.addSession(broker.Session{ID: "s1", UserName: "alice", MachineID: "m1", MachineName: "VDI-001",
		HostName: "vdi-001", DesktopGroup: "Win10", State: broker.SessionDisconnected, StateChanged: now.Add(-10 * time.Hour)})
	api.addSession(broker.Session{ID: "s2", UserName: "bob", MachineID: "m2", MachineName: "VDI-002",
		HostName: "vdi-002", DesktopGroup: "Win10", State: broker.SessionActive, StateChanged: now})

	q := slowGuest{images: map[string]string{"vdi-001": "IMG-17"}}

	start := time.Now()
	records, err := CollectSessions(context.Background(), logr.Discard(), inventoryConfig(),
		SiteBinding{Site: api.site, API: api}, q, now)
	require.NoError(t, err)

	// The unanswered host is bounded by the batch timeout, not forever.
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, records, 2)
	byID := map[string]Record{}
	for _, r := range records {
		byID[r.Session.ID] = r
	}
	assert.Equal(t, StatusRestartRequired, byID["s1"].Status)
	assert.Equal(t, ActionRestart, byID["s1"].Action)
	assert.Equal(t, StatusUnknown, byID["s2"].Status)
	assert.Equal(t, ActionNone, byID["s2"].Action)
}

func TestResolveImagesDeduplicatesHosts(t *testing.T) {
	calls := 0
	q := countingGuest{calls: &calls, images: map[string]string{"h1": "IMG-1"}}
	images := resolveImages(context.Background(), logr.Discard(), q,
		[]string{"h1", "h1", "h1", ""}, 4, time.Second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, map[string]string{"h1": "IMG-1"}, images)
}

type countingGuest struct {
	calls  *int
	images map[string]string
}

func (g countingGuest) DiskImage(_ context.Context, host string) (string, error) {
	*g.calls++
	return g.images[host], nil
}
