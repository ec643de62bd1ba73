package sweep

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/halcyonlabs/vdisweep/pkg/broker"
)

// MonitorTasks polls every pending power action until it reaches a terminal
// state or the global timeout elapses. Success and failure are tallied into
// the counters; tasks still pending at timeout are returned so the report
// can enumerate them. The loop is single-threaded and always terminates
// within the timeout bound plus one polling interval.
func MonitorTasks(ctx context.Context, log logr.Logger, out io.Writer, pending []PendingTask, counters *Counters, pollInterval, timeout time.Duration) []PendingTask {
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	log.Info("monitoring power actions", "tasks", len(pending), "timeout", timeout)

	err := wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true,
		func(ctx context.Context) (bool, error) {
			remaining := pending[:0]
			for _, pt := range pending {
				task, err := pt.API.Task(ctx, pt.TaskID)
				if err != nil {
					// Transient poll failure; keep the task pending.
					log.V(1).Info("task poll failed", "task", pt.TaskID, "error", err.Error())
					remaining = append(remaining, pt)
					continue
				}
				if !task.State.Terminal() {
					remaining = append(remaining, pt)
					continue
				}
				if task.State == broker.TaskCompleted {
					counters.MarkTaskSucceeded()
					fmt.Fprintf(out, "restart completed: %s (site %s, task %s)\n",
						pt.MachineName, pt.SiteID, pt.TaskID)
				} else {
					counters.MarkTaskFailed()
					fmt.Fprintf(out, "restart failed: %s (site %s, task %s): %s\n",
						pt.MachineName, pt.SiteID, pt.TaskID, task.Error)
				}
			}
			pending = remaining

			if len(pending) == 0 {
				return true, nil
			}
			fmt.Fprintf(out, "waiting on %d power action(s), elapsed %s\n",
				len(pending), time.Since(start).Round(time.Second))
			return false, nil
		})

	if err != nil && len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, pt := range pending {
			names = append(names, pt.MachineName)
		}
		log.Info("monitor timeout with power actions still pending",
			"count", len(pending), "machines", names)
	}
	return pending
}
