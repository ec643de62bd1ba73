// Package sim implements an in-memory management endpoint: the broker API,
// a guest-agent disk-image endpoint, and simulated power-action tasks. It
// backs the vdisim binary for local runs and the sweep end-to-end tests.
package sim

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// SiteFixture seeds one simulated site.
type SiteFixture struct {
	Site     broker.Site      `yaml:"site" json:"site"`
	Health   broker.Health    `yaml:"health" json:"health"`
	Machines []broker.Machine `yaml:"machines" json:"machines"`
	Sessions []broker.Session `yaml:"sessions" json:"sessions"`

	// Images maps host names to the disk-image identifier reported by the
	// guest agent. Hosts not listed report no image.
	Images map[string]string `yaml:"images" json:"images"`

	// FailRestarts lists machine IDs whose restart tasks terminally fail.
	FailRestarts []string `yaml:"failRestarts" json:"failRestarts"`
}

type simTask struct {
	task    broker.Task
	readyAt time.Time
	fail    bool
}

// Server simulates one site's management endpoint.
type Server struct {
	mu       sync.Mutex
	site     broker.Site
	health   broker.Health
	machines map[string]*broker.Machine
	sessions map[string]*broker.Session
	images   map[string]string
	failing  map[string]bool
	tasks    map[string]*simTask

	// RestartDelay is how long a simulated restart task stays running
	// before it completes.
	RestartDelay time.Duration

	// Messages records delivered notifications per session id.
	Messages map[string][]string

	now func() time.Time
}

// New builds a simulator from a fixture. A zero Health in the fixture
// defaults to fully healthy.
func New(fixture SiteFixture) *Server {
	s := &Server{
		site:         fixture.Site,
		health:       fixture.Health,
		machines:     make(map[string]*broker.Machine),
		sessions:     make(map[string]*broker.Session),
		images:       make(map[string]string),
		failing:      make(map[string]bool),
		tasks:        make(map[string]*simTask),
		Messages:     make(map[string][]string),
		RestartDelay: 50 * time.Millisecond,
		now:          time.Now,
	}
	if s.health.Broker == "" {
		s.health.Broker = broker.StatusOK
	}
	if s.health.Hypervisor == "" {
		s.health.Hypervisor = broker.StatusOK
	}
	for i := range fixture.Machines {
		m := fixture.Machines[i]
		s.machines[m.ID] = &m
	}
	for i := range fixture.Sessions {
		sess := fixture.Sessions[i]
		s.sessions[sess.ID] = &sess
	}
	for host, img := range fixture.Images {
		s.images[host] = img
	}
	for _, id := range fixture.FailRestarts {
		s.failing[id] = true
	}
	return s
}

// SetHealth overrides the reported subsystem health.
func (s *Server) SetHealth(h broker.Health) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()
}

// SetMachineState mutates a machine's availability state, emulating drift
// between analysis and execution.
func (s *Server) SetMachineState(id string, state broker.MachineState) {
	s.mu.Lock()
	if m, ok := s.machines[id]; ok {
		m.State = state
	}
	s.mu.Unlock()
}

// SetSessionState mutates a session's activity state.
func (s *Server) SetSessionState(id string, state broker.SessionState) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.State = state
		sess.StateChanged = s.now()
	}
	s.mu.Unlock()
}

// RestartCount returns how many restart tasks have been issued.
func (s *Server) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Handler returns the simulator's HTTP handler, including the Prometheus
// scrape endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", instrument("/v1/health", s.handleHealth))
	mux.HandleFunc("GET /v1/site", instrument("/v1/site", s.handleSite))
	mux.HandleFunc("GET /v1/machines", instrument("/v1/machines", s.handleListMachines))
	mux.HandleFunc("GET /v1/machines/{id}", instrument("/v1/machines/{id}", s.handleGetMachine))
	mux.HandleFunc("POST /v1/machines/{id}/restart", instrument("/v1/machines/{id}/restart", s.handleRestart))
	mux.HandleFunc("GET /v1/sessions", instrument("/v1/sessions", s.handleListSessions))
	mux.HandleFunc("GET /v1/sessions/{id}", instrument("/v1/sessions/{id}", s.handleGetSession))
	mux.HandleFunc("POST /v1/sessions/{id}/message", instrument("/v1/sessions/{id}/message", s.handleMessage))
	mux.HandleFunc("GET /v1/tasks/{id}", instrument("/v1/tasks/{id}", s.handleTask))
	mux.HandleFunc("GET /v1/disk-image", instrument("/v1/disk-image", s.handleDiskImage))
	mux.Handle("GET /metrics", metricsHandler())
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	h := s.health
	s.mu.Unlock()
	writeJSON(w, h)
}

func (s *Server) handleSite(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.site)
}

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	max := queryMax(r)
	onlyAvailable := r.URL.Query().Get("state") == "available"

	s.mu.Lock()
	machines := make([]broker.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		if onlyAvailable && m.State != broker.MachineAvailable {
			continue
		}
		machines = append(machines, *m)
		if len(machines) >= max {
			break
		}
	}
	s.mu.Unlock()
	writeJSON(w, machines)
}

func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m, ok := s.machines[r.PathValue("id")]
	var out broker.Machine
	if ok {
		out = *m
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "machine not found", http.StatusNotFound)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	m, ok := s.machines[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "machine not found", http.StatusNotFound)
		return
	}
	task := &simTask{
		task: broker.Task{
			ID:        uuid.NewString(),
			MachineID: m.ID,
			State:     broker.TaskRunning,
		},
		readyAt: s.now().Add(s.RestartDelay),
		fail:    s.failing[id],
	}
	s.tasks[task.task.ID] = task
	out := task.task
	s.mu.Unlock()

	powerActionsTotal.WithLabelValues(s.site.ID, "requested").Inc()
	writeJSON(w, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	max := queryMax(r)
	s.mu.Lock()
	sessions := make([]broker.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess)
		if len(sessions) >= max {
			break
		}
	}
	s.mu.Unlock()
	writeJSON(w, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess, ok := s.sessions[r.PathValue("id")]
	var out broker.Session
	if ok {
		out = *sess
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad message payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, ok := s.sessions[id]
	if ok {
		s.Messages[id] = append(s.Messages[id], payload.Title)
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	messagesTotal.WithLabelValues(s.site.ID).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	t, ok := s.tasks[r.PathValue("id")]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	// Task state is evaluated lazily against the clock.
	if !t.task.State.Terminal() && !s.now().Before(t.readyAt) {
		done := s.now()
		t.task.CompletedAt = &done
		if t.fail {
			t.task.State = broker.TaskFailed
			t.task.Error = "hypervisor rejected power action"
			powerActionsTotal.WithLabelValues(s.site.ID, "failed").Inc()
		} else {
			t.task.State = broker.TaskCompleted
			powerActionsTotal.WithLabelValues(s.site.ID, "completed").Inc()
		}
	}
	out := t.task
	s.mu.Unlock()
	writeJSON(w, out)
}

// handleDiskImage emulates the guest agent. The target host comes from the
// host query parameter the sweep's guest client sends, falling back to the
// Host header for plain HTTP probes.
func (s *Server) handleDiskImage(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		host = r.Host
	}
	s.mu.Lock()
	img := s.images[host]
	s.mu.Unlock()
	writeJSON(w, map[string]string{"imageId": img})
}

func queryMax(r *http.Request) int {
	if v := r.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 500
}
