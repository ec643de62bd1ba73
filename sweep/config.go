package sweep

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

// Scope selects which entity kinds a run analyzes.
type Scope string

const (
	ScopeMachines Scope = "available-machines"
	ScopeSessions Scope = "sessions"
	ScopeBoth     Scope = "both"
)

// IncludesMachines reports whether the availability pass runs.
func (s Scope) IncludesMachines() bool {
	return s == ScopeMachines || s == ScopeBoth
}

// IncludesSessions reports whether the session pass runs.
func (s Scope) IncludesSessions() bool {
	return s == ScopeSessions || s == ScopeBoth
}

// Config carries every knob of a sweep run. It is validated once and
// immutable afterwards.
type Config struct {
	Endpoints []string `mapstructure:"endpoints"`
	Scope     Scope    `mapstructure:"scope"`

	// GroupFilter is a glob (path.Match syntax) applied to desktop group
	// names at inventory time.
	GroupFilter string `mapstructure:"group_filter"`

	// AllVersionsPattern matches any identifier of the managed image
	// family; TargetPattern matches only the version the fleet should be
	// running.
	AllVersionsPattern string `mapstructure:"all_versions_pattern"`
	TargetPattern      string `mapstructure:"target_pattern"`

	MaxRecords       int           `mapstructure:"max_records"`
	MaxRestarts      int           `mapstructure:"max_restarts"`
	QueryConcurrency int           `mapstructure:"query_concurrency"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
	GuestPort        int           `mapstructure:"guest_port"`

	// GuestEndpoint, when set, routes all disk-image queries through one
	// agent address instead of dialing each host on GuestPort.
	GuestEndpoint string `mapstructure:"guest_endpoint"`

	// IdleThreshold is the minimum time a session must have been
	// disconnected before a forced restart is allowed.
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`

	NagTitle string `mapstructure:"nag_title"`
	NagText  string `mapstructure:"nag_text"`

	Async          bool          `mapstructure:"async"`
	MonitorTimeout time.Duration `mapstructure:"monitor_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DryRun         bool          `mapstructure:"dry_run"`

	allVersions *regexp.Regexp
	target      *regexp.Regexp
}

// Defaults returns a Config with every optional knob at its default value.
func Defaults() Config {
	return Config{
		Scope:            ScopeBoth,
		GroupFilter:      "*",
		MaxRecords:       500,
		MaxRestarts:      10,
		QueryConcurrency: 16,
		QueryTimeout:     30 * time.Second,
		IdleThreshold:    8 * time.Hour,
		NagTitle:         "Desktop update pending",
		NagText:          "Your desktop needs a restart to finish an image update. Please log off at your earliest convenience.",
		MonitorTimeout:   10 * time.Minute,
		PollInterval:     5 * time.Second,
	}
}

// Validate checks required fields and compiles the version patterns.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one management endpoint is required")
	}
	switch c.Scope {
	case ScopeMachines, ScopeSessions, ScopeBoth:
	default:
		return fmt.Errorf("invalid scope %q", c.Scope)
	}
	if c.AllVersionsPattern == "" {
		return fmt.Errorf("all-versions pattern is required")
	}
	if c.TargetPattern == "" {
		return fmt.Errorf("target pattern is required")
	}

	var err error
	if c.allVersions, err = regexp.Compile(c.AllVersionsPattern); err != nil {
		return fmt.Errorf("invalid all-versions pattern: %w", err)
	}
	if c.target, err = regexp.Compile(c.TargetPattern); err != nil {
		return fmt.Errorf("invalid target pattern: %w", err)
	}

	if _, err := path.Match(c.GroupFilter, "probe"); err != nil {
		return fmt.Errorf("invalid group filter %q: %w", c.GroupFilter, err)
	}

	if c.MaxRecords <= 0 {
		return fmt.Errorf("max records must be positive")
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("restart budget must not be negative")
	}
	if c.QueryConcurrency <= 0 {
		return fmt.Errorf("query concurrency must be positive")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MonitorTimeout <= 0 {
		return fmt.Errorf("monitor timeout must be positive")
	}
	return nil
}

// Classify maps a resolved disk-image identifier to its update status using
// the compiled run patterns. Validate must have been called.
func (c *Config) Classify(imageID string) UpdateStatus {
	return Classify(imageID, c.allVersions, c.target)
}

// MatchGroup reports whether a desktop group name passes the group filter.
func (c *Config) MatchGroup(group string) bool {
	if c.GroupFilter == "" || c.GroupFilter == "*" {
		return true
	}
	ok, err := path.Match(c.GroupFilter, group)
	if err != nil {
		// Validate rejects bad patterns up front.
		return false
	}
	return ok
}
