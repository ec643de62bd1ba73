package sweep

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"
)

// unresolvedImageKey groups records whose disk image never resolved.
const unresolvedImageKey = "<unresolved>"

// SiteSummary is the per-site breakdown of a run.
type SiteSummary struct {
	SiteID   string `json:"siteId"`
	SiteName string `json:"siteName"`
	Machines int    `json:"machines"`
	Sessions int    `json:"sessions"`
	Restarts int    `json:"restartsPlanned"`
	Nags     int    `json:"nagsPlanned"`
	Deferred bool   `json:"sessionPassDeferred"`
}

// Report is the final outcome of one sweep run.
type Report struct {
	ByStatus map[UpdateStatus]int `json:"byStatus"`
	ByAction map[Action]int       `json:"byAction"`
	ByImage  map[string]int       `json:"byImage"`
	Sites    []SiteSummary        `json:"sites"`
	Counters CountersSnapshot     `json:"counters"`
	Pending  []string             `json:"pendingTasks,omitempty"`
	Elapsed  time.Duration        `json:"elapsed"`
}

// BuildReport aggregates the combined machine and session records plus the
// final counters into a report.
func BuildReport(records []Record, deferred map[string]bool, snap CountersSnapshot, pending []PendingTask, elapsed time.Duration) *Report {
	r := &Report{
		ByStatus: make(map[UpdateStatus]int),
		ByAction: make(map[Action]int),
		ByImage:  make(map[string]int),
		Counters: snap,
		Elapsed:  elapsed,
	}

	sites := make(map[string]*SiteSummary)
	var order []string
	for _, rec := range records {
		r.ByStatus[rec.Status]++
		r.ByAction[rec.Action]++
		key := rec.ImageID
		if key == "" {
			key = unresolvedImageKey
		}
		r.ByImage[key]++

		s, ok := sites[rec.SiteID]
		if !ok {
			s = &SiteSummary{SiteID: rec.SiteID, SiteName: rec.SiteName, Deferred: deferred[rec.SiteID]}
			sites[rec.SiteID] = s
			order = append(order, rec.SiteID)
		}
		if rec.Kind == KindMachine {
			s.Machines++
		} else {
			s.Sessions++
		}
		switch rec.Action {
		case ActionRestart:
			s.Restarts++
		case ActionNag:
			s.Nags++
		}
	}
	sort.Strings(order)
	for _, id := range order {
		r.Sites = append(r.Sites, *sites[id])
	}

	for _, pt := range pending {
		r.Pending = append(r.Pending, fmt.Sprintf("%s/%s (task %s)", pt.SiteID, pt.MachineName, pt.TaskID))
	}
	return r
}

// WriteTable renders the report as tabwriter tables.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "SITE\tMACHINES\tSESSIONS\tRESTARTS\tNAGS\tSESSION PASS")
	for _, s := range r.Sites {
		pass := "done"
		if s.Deferred {
			pass = "deferred"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			s.SiteID, s.Machines, s.Sessions, s.Restarts, s.Nags, pass)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "STATUS\tCOUNT")
	for _, st := range []UpdateStatus{StatusUpdateCompleted, StatusRestartRequired, StatusIneligible, StatusUnknown} {
		if n := r.ByStatus[st]; n > 0 {
			fmt.Fprintf(tw, "%s\t%d\n", st, n)
		}
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "IMAGE\tCOUNT")
	images := make([]string, 0, len(r.ByImage))
	for img := range r.ByImage {
		images = append(images, img)
	}
	sort.Strings(images)
	for _, img := range images {
		fmt.Fprintf(tw, "%s\t%d\n", img, r.ByImage[img])
	}
	fmt.Fprintln(tw)

	c := r.Counters
	fmt.Fprintf(tw, "nags sent\t%d\n", c.NagsSent)
	fmt.Fprintf(tw, "nags failed\t%d\n", c.NagsFailed)
	fmt.Fprintf(tw, "restarts requested\t%d\n", c.RestartsRequested)
	fmt.Fprintf(tw, "restarts failed\t%d\n", c.RestartsFailed)
	if c.RestartsSimulated > 0 {
		fmt.Fprintf(tw, "restarts simulated\t%d\n", c.RestartsSimulated)
	}
	fmt.Fprintf(tw, "restarts completed\t%d\n", c.TasksSucceeded)
	fmt.Fprintf(tw, "restart tasks failed\t%d\n", c.TasksFailed)
	fmt.Fprintf(tw, "skipped (stale)\t%d\n", c.SkippedStale)
	fmt.Fprintf(tw, "restarts still pending\t%d\n", len(r.Pending))
	fmt.Fprintf(tw, "elapsed\t%s\n", r.Elapsed.Round(time.Millisecond))

	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Pending) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Power actions not resolved before the monitor timeout:")
		for _, p := range r.Pending {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	return nil
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
