package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ykagano/wiremock-jp/pkg/admin"
	"github.com/ykagano/wiremock-jp/pkg/cli/internal/output"
	"github.com/ykagano/wiremock-jp/pkg/health"
	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/metrics"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
)

// serveFlags holds all flags for the serve command.
type serveFlags struct {
	listen      string
	corsOrigins []string
	noCORS      bool
}

var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP API",
	Long: `Run the JSON admin API in the foreground until SIGINT or SIGTERM.

The API manages projects, instances and stubs, triggers syncs and passes
selected WireMock admin operations through to registered instances.`,
	Example: `  wmjp serve
  wmjp serve --listen 0.0.0.0:3000
  wmjp serve --cors-origin http://localhost:5173 --log-level info`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := &serveFlagVals
	serveCmd.Flags().StringVarP(&f.listen, "listen", "l", "", "Listen address (default "+admin.DefaultAddr+")")
	serveCmd.Flags().StringSliceVar(&f.corsOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable; default any)")
	serveCmd.Flags().BoolVar(&f.noCORS, "no-cors", false, "Do not send CORS headers")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	f := &serveFlagVals

	// The log file receives a JSON copy of every record.
	logger := log
	if cfg.LogFile != "" {
		lf, err := openLogFile(cfg.LogFile)
		if err != nil {
			return err
		}
		defer func() { _ = lf.Close() }()
		logCfg := cfg.LoggingConfig()
		logCfg.Output = cmd.ErrOrStderr()
		logCfg.Mirror = lf
		logger = logging.New(logCfg)
	}
	apiLog := logger.With("component", "admin")

	s, err := openStore(logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			output.Warn(cmd.ErrOrStderr(), "failed to close store: %v", err)
		}
	}()

	set := metrics.NewSet()
	opts := []admin.Option{
		admin.WithAddr(cfg.ListenAddr),
		admin.WithRemoteTimeout(cfg.SyncTimeout),
		admin.WithVersion(Version),
		admin.WithLogger(apiLog),
		admin.WithMetrics(set),
		admin.WithOrchestrator(newOrchestrator(s, logger.With("component", "syncer"),
			syncer.WithObserver(admin.SyncObserver(set)))),
		admin.WithProber(health.New(s,
			health.WithProbeTimeout(cfg.ProbeTimeout),
			health.WithLogger(logger.With("component", "health")),
		)),
	}
	if !f.noCORS {
		cors := admin.DefaultCORSConfig()
		cors.AllowedOrigins = f.corsOrigins
		opts = append(opts, admin.WithCORS(cors))
	}
	api := admin.NewAPI(s, opts...)

	if err := api.Start(); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%s is already in use; pick another with --listen", cfg.ListenAddr)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Admin API listening on http://%s\n", api.Addr())
	if path := cfg.DatabasePath(); path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Store: %s (%s)\n", path, cfg.Backend)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down...")
	if err := api.Stop(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
