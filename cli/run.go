package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
	"github.com/halcyonlabs/vdisweep/pkg/guest"
	"github.com/halcyonlabs/vdisweep/sweep"
)

var (
	runSchedule string
	runOutput   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform one sweep of the fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initViper(); err != nil {
			return err
		}

		cfg := sweep.Defaults()
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if runOutput != "table" && runOutput != "json" {
			return fmt.Errorf("invalid output format %q", runOutput)
		}

		logger := setupLogger().WithName("sweep")

		scheduler, err := sweep.NewScheduler(runSchedule)
		if err != nil {
			return err
		}

		guestClient := guest.NewClient(cfg.GuestPort)
		guestClient.BaseURL = cfg.GuestEndpoint

		deps := sweep.Deps{
			Dial: func(endpoint string) broker.API {
				return broker.New(endpoint, &http.Client{Timeout: 15 * time.Second})
			},
			Guest: guestClient,
			Log:   logger,
			Out:   cmd.OutOrStdout(),
		}

		return scheduler.Run(cmd.Context(), logger, func(ctx context.Context) error {
			report, err := sweep.Run(ctx, cfg, deps)
			if err != nil {
				return err
			}
			if runOutput == "json" {
				return report.WriteJSON(cmd.OutOrStdout())
			}
			return report.WriteTable(cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringSlice("endpoints", nil, "Candidate management endpoint addresses")
	f.String("scope", string(sweep.ScopeBoth), "Entity kinds to analyze: available-machines, sessions, both")
	f.String("group", "*", "Desktop group name filter (glob)")
	f.String("all-versions-pattern", "", "Regexp matching any version of the managed image family")
	f.String("target-pattern", "", "Regexp matching the target image version")
	f.Int("max-records", 500, "Maximum records per broker query")
	f.Int("max-restarts", 10, "Global restart budget for the run")
	f.Int("query-concurrency", 16, "Concurrent guest-agent disk-image queries")
	f.Duration("query-timeout", 30*time.Second, "Overall timeout for one batch of disk-image queries")
	f.Int("guest-port", guest.DefaultPort, "Guest agent port")
	f.String("guest-endpoint", "", "Single agent address serving disk-image queries for all hosts")
	f.Duration("idle-threshold", 8*time.Hour, "Minimum disconnected time before a session restart is forced")
	f.String("nag-title", sweep.Defaults().NagTitle, "Notification title")
	f.String("nag-text", sweep.Defaults().NagText, "Notification text")
	f.Bool("async", false, "Do not wait for power actions to complete")
	f.Duration("monitor-timeout", 10*time.Minute, "Global timeout for power-action monitoring")
	f.Duration("poll-interval", 5*time.Second, "Spacing between power-action polls")
	f.Bool("dry-run", false, "Plan and count restarts without issuing them")
	f.StringVar(&runSchedule, "schedule", "", "Cron expression; when set, sweeps repeat on this schedule")
	f.StringVar(&runOutput, "output", "table", "Report format: table or json")

	bind := map[string]string{
		"endpoints":            "endpoints",
		"scope":                "scope",
		"group":                "group_filter",
		"all-versions-pattern": "all_versions_pattern",
		"target-pattern":       "target_pattern",
		"max-records":          "max_records",
		"max-restarts":         "max_restarts",
		"query-concurrency":    "query_concurrency",
		"query-timeout":        "query_timeout",
		"guest-port":           "guest_port",
		"guest-endpoint":       "guest_endpoint",
		"idle-threshold":       "idle_threshold",
		"nag-title":            "nag_title",
		"nag-text":             "nag_text",
		"async":                "async",
		"monitor-timeout":      "monitor_timeout",
		"poll-interval":        "poll_interval",
		"dry-run":              "dry_run",
	}
	for flag, key := range bind {
		if err := viper.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
