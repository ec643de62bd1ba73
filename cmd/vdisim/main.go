// vdisim serves one or more simulated VDI management endpoints from a YAML
// fixture file, for local vdisweep runs and demos. Each site listens on its
// own port, starting at --base-port.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/halcyonlabs/vdisweep/pkg/log"
	"github.com/halcyonlabs/vdisweep/sim"
)

func main() {
	var (
		fixturePath  string
		basePort     int
		restartDelay time.Duration
		devLogging   bool
	)
	pflag.StringVar(&fixturePath, "fixtures", "fixtures.yaml", "YAML file describing the simulated sites")
	pflag.IntVar(&basePort, "base-port", 8480, "First listen port; site N listens on base-port+N")
	pflag.DurationVar(&restartDelay, "restart-delay", 10*time.Second, "How long simulated restart tasks stay running")
	pflag.BoolVar(&devLogging, "dev-logging", true, "Use the human-readable development log encoder")
	pflag.Parse()

	logger := log.Setup(devLogging).WithName("vdisim")

	fixtures, err := sim.LoadFixtures(fixturePath)
	if err != nil {
		logger.Error(err, "loading fixtures")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Guest queries carry the queried host, so every listener serves the
	// full image map; vdisweep's --guest-endpoint may point at any site.
	images := make(map[string]string)
	for _, f := range fixtures {
		for host, img := range f.Images {
			images[host] = img
		}
	}

	errCh := make(chan error, len(fixtures))
	servers := make([]*http.Server, 0, len(fixtures))
	for i, fixture := range fixtures {
		fixture.Images = images
		srv := sim.New(fixture)
		srv.RestartDelay = restartDelay

		addr := ":" + strconv.Itoa(basePort+i)
		httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
		servers = append(servers, httpSrv)

		logger.Info("serving site", "site", fixture.Site.ID, "name", fixture.Site.Name, "addr", addr,
			"machines", len(fixture.Machines), "sessions", len(fixture.Sessions))
		go func() {
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("site listener %s: %w", addr, err)
			}
		}()
	}

	select {
	case err := <-errCh:
		logger.Error(err, "listener failed")
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(shutdownCtx)
	}
}
