package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/strata/pkg/api"
	"github.com/cuemby/strata/pkg/attributes"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/converge"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/platform"
	"github.com/cuemby/strata/pkg/reconciler"
	"github.com/cuemby/strata/pkg/security"
	"github.com/cuemby/strata/pkg/shell"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/spf13/cobra"
)

const defaultStateDir = "/var/lib/strata"

var convergeCmd = &cobra.Command{
	Use:   "converge [install|osd|mgr|radosgw ...]",
	Short: "Bring this node to its desired state",
	Long: `Converge the node once, or repeatedly with --interval.

Without recipe arguments the node's attributes decide what is declared:
packages always, OSD devices when ceph.osd.devices is non-empty, the mgr
daemon when ceph.mgr.enable is set and the radosgw federation when
ceph.pools.radosgw.federated_enable is set.

Examples:
  # Converge everything the attributes enable
  strata converge --role /etc/strata/roles/osd.yaml

  # Only prepare OSD devices
  strata converge osd --environment /etc/strata/production.yaml

  # Run as a daemon, re-converging every 30 minutes
  strata converge --interval 30m --metrics-addr :9283`,
	RunE: runConverge,
}

func init() {
	convergeCmd.Flags().StringArray("role", nil, "Role attribute document (repeatable, later roles win)")
	convergeCmd.Flags().String("environment", "", "Environment attribute document")
	convergeCmd.Flags().String("state-dir", defaultStateDir, "Directory of the persisted attribute database")
	convergeCmd.Flags().String("secret-key-file", "", "Key file sealing persisted secrets")
	convergeCmd.Flags().String("templates-dir", "", "Directory of template overrides")
	convergeCmd.Flags().Duration("interval", 0, "Re-converge on this interval instead of exiting")
	convergeCmd.Flags().String("metrics-textfile", "", "Write metrics to this file after every run")
	convergeCmd.Flags().String("metrics-addr", "", "Serve /metrics, /health and /ready on this address (daemon mode)")
	convergeCmd.Flags().Duration("command-timeout", 10*time.Minute, "Default timeout of external commands")
	convergeCmd.Flags().Bool("quiet", false, "Do not print per-resource progress")
}

// session holds what one strata process shares across convergence runs
type session struct {
	planner  *planner
	sources  config.Sources
	recipes  []string
	renderer platform.Renderer
	broker   *events.Broker
	textfile string
}

// openState opens the state database and an attribute store backed by it
func openState(stateDir string) (*attributes.Store, *storage.BoltStore, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	db, err := storage.NewBoltStore(stateDir)
	if err != nil {
		return nil, nil, err
	}
	return attributes.New(db), db, nil
}

func runConverge(cmd *cobra.Command, args []string) error {
	roles, _ := cmd.Flags().GetStringArray("role")
	environment, _ := cmd.Flags().GetString("environment")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	keyFile, _ := cmd.Flags().GetString("secret-key-file")
	templatesDir, _ := cmd.Flags().GetString("templates-dir")
	interval, _ := cmd.Flags().GetDuration("interval")
	textfile, _ := cmd.Flags().GetString("metrics-textfile")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	timeout, _ := cmd.Flags().GetDuration("command-timeout")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if _, err := selectRecipes(&config.Node{}, args, 0); err != nil {
		return err
	}

	store, db, err := openState(stateDir)
	if err != nil {
		metrics.RegisterComponent("state", false, err.Error())
		return err
	}
	defer db.Close()
	metrics.RegisterComponent("state", true, db.Path())

	var sealer *security.Sealer
	if keyFile != "" {
		if sealer, err = security.LoadKeyFile(keyFile); err != nil {
			return err
		}
	}

	renderer, err := platform.NewTemplateRenderer(templatesDir)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	progressDone := make(chan struct{})
	if quiet {
		close(progressDone)
	} else {
		sub := broker.Subscribe()
		go func() {
			defer close(progressDone)
			printProgress(cmd.OutOrStdout(), sub)
		}()
	}
	broker.Start()
	defer func() {
		broker.Stop()
		<-progressDone
	}()

	s := &session{
		planner: &planner{
			store:  store,
			runner: shell.NewExecRunner(timeout),
			sealer: sealer,
		},
		sources: config.Sources{
			Roles:       roles,
			Environment: environment,
			Facts:       config.DetectFacts(),
		},
		recipes:  args,
		renderer: renderer,
		broker:   broker,
		textfile: textfile,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interval <= 0 {
		report, err := s.converge(ctx)
		if report != nil {
			printSummary(cmd.OutOrStdout(), report)
		}
		return err
	}
	return s.daemon(ctx, cmd.OutOrStdout(), interval, metricsAddr)
}

// converge loads the attributes afresh, builds the graph and applies it
func (s *session) converge(ctx context.Context) (*converge.Report, error) {
	store := s.planner.store
	if err := store.Load(); err != nil {
		return nil, err
	}
	if err := config.Load(store, s.sources); err != nil {
		return nil, err
	}

	pl, err := s.planner.build(s.recipes)
	if err != nil {
		return nil, err
	}
	node := pl.node

	logger := log.WithComponent("converge")
	collab := converge.Collaborators{
		Runner:   s.planner.runner,
		Renderer: s.renderer,
	}
	if collab.Packages, err = platform.NewPackageManager(node.PlatformFamily, s.planner.runner); err != nil {
		logger.Warn().Err(err).Msg("Package resources will fail")
	}
	if collab.Services, err = platform.NewServiceManager(node.Ceph.InitStyle, s.planner.runner); err != nil {
		logger.Warn().Err(err).Msg("Service resources will fail")
	}

	logger.Info().Strs("recipes", pl.recipes).Str("hostname", node.Hostname).Msg("Resource graph built")

	exec := converge.NewExecutor(collab).WithLogger(logger).WithBroker(s.broker)
	report, err := exec.Converge(ctx, pl.graph)

	if s.textfile != "" {
		if werr := metrics.WriteTextfile(s.textfile); werr != nil {
			logger.Warn().Err(werr).Str("path", s.textfile).Msg("Failed to write metrics textfile")
			metrics.UpdateComponent("textfile", false, werr.Error())
		} else {
			metrics.UpdateComponent("textfile", true, s.textfile)
		}
	}
	return report, err
}

// daemon re-converges on interval until ctx is cancelled
func (s *session) daemon(ctx context.Context, out io.Writer, interval time.Duration, metricsAddr string) error {
	logger := log.WithComponent("daemon")

	var hs *api.HealthServer
	if metricsAddr != "" {
		hs = api.NewHealthServer(Version)
		go func() {
			if err := hs.Start(metricsAddr); err != nil {
				logger.Error().Err(err).Str("addr", metricsAddr).Msg("Status server failed")
			}
		}()
		logger.Info().Str("addr", metricsAddr).Msg("Status server started")
	}

	rec := reconciler.NewReconciler(func(ctx context.Context) (*converge.Report, error) {
		report, err := s.converge(ctx)
		if report != nil {
			printSummary(out, report)
		}
		return report, err
	}, interval)
	rec.Start(ctx)
	logger.Info().Dur("interval", interval).Msg("Reconciler started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case <-rec.Done():
	}
	rec.Stop()

	if hs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop status server: %w", err)
		}
	}
	return nil
}

// printProgress prints resource events until the broker stops
func printProgress(w io.Writer, sub events.Subscriber) {
	for event := range sub {
		switch event.Type {
		case events.EventResourceUpdated:
			fmt.Fprintf(w, "  ✓ %s\n", event.Resource)
		case events.EventResourceFailed:
			fmt.Fprintf(w, "  ✗ %s: %s\n", event.Resource, event.Message)
		case events.EventResourceSkipped:
			fmt.Fprintf(w, "  - %s (%s)\n", event.Resource, event.Message)
		}
	}
}

// printSummary prints the outcome of one run
func printSummary(w io.Writer, report *converge.Report) {
	fmt.Fprintf(w, "Run %s: %d updated, %d skipped, %d failed in %v\n",
		report.RunID,
		len(report.Updated()),
		len(report.Skipped()),
		len(report.Failed()),
		report.Duration.Round(time.Millisecond),
	)
	if report.Warnings != nil {
		fmt.Fprintf(w, "Warnings:\n%v\n", report.Warnings)
	}
}
