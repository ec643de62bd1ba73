package sweep

import (
	"context"
	"fmt"
	"sync"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// fakeAPI is an in-memory broker.API for unit tests.
type fakeAPI struct {
	mu sync.Mutex

	endpoint  string
	health    broker.Health
	healthErr error
	site      broker.Site
	siteErr   error

	machines map[string]broker.Machine
	sessions map[string]broker.Session

	restartErr error
	notifyErr  error
	taskState  broker.TaskState

	restarted   []string
	notified    []string
	healthCalls int

	tasks map[string]broker.Task
}

func newFakeAPI(endpoint string, site broker.Site) *fakeAPI {
	return &fakeAPI{
		endpoint:  endpoint,
		health:    broker.Health{Broker: broker.StatusOK, Hypervisor: broker.StatusOK},
		site:      site,
		machines:  make(map[string]broker.Machine),
		sessions:  make(map[string]broker.Session),
		tasks:     make(map[string]broker.Task),
		taskState: broker.TaskCompleted,
	}
}

func (f *fakeAPI) addMachine(m broker.Machine) { f.machines[m.ID] = m }
func (f *fakeAPI) addSession(s broker.Session) { f.sessions[s.ID] = s }

func (f *fakeAPI) Endpoint() string { return f.endpoint }

func (f *fakeAPI) Health(context.Context) (broker.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	if f.healthErr != nil {
		return broker.Health{}, f.healthErr
	}
	return f.health, nil
}

func (f *fakeAPI) Site(context.Context) (broker.Site, error) {
	if f.siteErr != nil {
		return broker.Site{}, f.siteErr
	}
	return f.site, nil
}

func (f *fakeAPI) ListAvailableMachines(_ context.Context, max int) ([]broker.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broker.Machine
	for _, m := range f.machines {
		if m.State != broker.MachineAvailable {
			continue
		}
		out = append(out, m)
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func (f *fakeAPI) ListSessions(_ context.Context, max int) ([]broker.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broker.Session
	for _, s := range f.sessions {
		out = append(out, s)
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func (f *fakeAPI) GetMachine(_ context.Context, id string) (broker.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machines[id]
	if !ok {
		return broker.Machine{}, fmt.Errorf("machine %s not found", id)
	}
	return m, nil
}

func (f *fakeAPI) GetSession(_ context.Context, id string) (broker.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return broker.Session{}, fmt.Errorf("session %s not found", id)
	}
	return s, nil
}

func (f *fakeAPI) Restart(_ context.Context, machineID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restartErr != nil {
		return "", f.restartErr
	}
	f.restarted = append(f.restarted, machineID)
	id := fmt.Sprintf("task-%s-%d", machineID, len(f.restarted))
	f.tasks[id] = broker.Task{ID: id, MachineID: machineID, State: f.taskState}
	return id, nil
}

func (f *fakeAPI) Notify(_ context.Context, sessionID, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	if _, ok := f.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	f.notified = append(f.notified, sessionID)
	return nil
}

func (f *fakeAPI) Task(_ context.Context, taskID string) (broker.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return broker.Task{}, fmt.Errorf("task %s not found", taskID)
	}
	return t, nil
}

var _ broker.API = (*fakeAPI)(nil)

// fakeGuest resolves hosts from a static map; unlisted hosts report nothing.
type fakeGuest struct {
	images map[string]string
}

func (g fakeGuest) DiskImage(_ context.Context, host string) (string, error) {
	return g.images[host], nil
}
