// Package cli provides the wmjp CLI commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ykagano/wiremock-jp/pkg/cli/internal/output"
	"github.com/ykagano/wiremock-jp/pkg/cliconfig"
	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/store/file"
	"github.com/ykagano/wiremock-jp/pkg/store/memory"
	"github.com/ykagano/wiremock-jp/pkg/store/sqlite"
)

var (
	// Persistent flags available to all subcommands
	configFile string
	dataDir    string
	jsonOutput bool
	logLevel   string

	// cfg is the effective configuration, set before any command runs.
	cfg *cliconfig.CLIConfig
	// log is built from cfg.
	log = logging.Nop()

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wmjp",
	Short: "wmjp keeps WireMock stubs in sync across instances",
	Long: `wmjp stores WireMock stub mappings per project and pushes them to the
WireMock instances registered for that project.

Configuration is read from ./.wmjprc.yaml, the user config directory
(wmjp/config.yaml), WMJP_* environment variables and flags, in increasing
order of precedence.`,
	SilenceUsage:      true,
	SilenceErrors:     true, // We handle errors in Main()
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (replaces ./.wmjprc.yaml)")
	pf.StringVar(&dataDir, "data-dir", "", "Data directory for the store")
	pf.BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// errSilent is returned by commands that already reported their failure
// and only need a non-zero exit status.
var errSilent = errors.New("silent failure")

// Main runs the CLI and returns the process exit status.
func Main() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	os.Exit(Main())
}

// loadConfig resolves the effective configuration, applies flags on top and
// builds the logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] != "" {
		return nil
	}

	c, err := cliconfig.Load(cliconfig.LoadOptions{ConfigFile: configFile})
	if err != nil {
		return err
	}

	fromFlags := &cliconfig.CLIConfig{SetFields: make(map[string]bool)}
	flags := cmd.Flags()
	changed := func(name, key string) bool {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			return false
		}
		fromFlags.SetFields[key] = true
		return true
	}
	if changed("data-dir", "dataDir") {
		fromFlags.DataDir = dataDir
	}
	if changed("json", "json") {
		fromFlags.JSON = jsonOutput
	}
	if changed("log-level", "logLevel") {
		fromFlags.LogLevel = logLevel
	}
	if changed("listen", "listenAddr") {
		fromFlags.ListenAddr, _ = flags.GetString("listen")
	}
	if changed("workers", "workers") {
		fromFlags.Workers, _ = flags.GetInt("workers")
	}
	cliconfig.MergeConfig(c, fromFlags, cliconfig.SourceFlag)
	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	jsonOutput = c.JSON
	logCfg := c.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	log = logging.New(logCfg)
	return nil
}

// openStore opens the configured backend. Callers close it.
func openStore(log *slog.Logger) (store.Store, error) {
	sc := cfg.StoreConfig()
	switch sc.Backend {
	case store.BackendMemory:
		return memory.New(), nil
	case store.BackendFile:
		return file.Open(sc.ResolvedPath(), file.WithLogger(log))
	default:
		return sqlite.Open(sc.ResolvedPath(), sqlite.WithLogger(log))
	}
}

// withStore opens the store for the duration of fn.
func withStore(fn func(s store.Store) error) (err error) {
	s, err := openStore(log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	return fn(s)
}

// printResult outputs a single operation result.
//
// Contract: when --json is active, ONLY the JSON encoding of data is written
// to stdout. Human-readable prose must go to stderr or be omitted entirely.
// textFn is called only in text mode.
func printResult(cmd *cobra.Command, data any, textFn func(w io.Writer)) error {
	if jsonOutput {
		return output.JSON(cmd.OutOrStdout(), data)
	}
	textFn(cmd.OutOrStdout())
	return nil
}

// printTable outputs a collection. In text mode rows are written through an
// aligned table that is flushed afterwards.
func printTable(cmd *cobra.Command, data any, header string, rows func(w io.Writer)) error {
	if jsonOutput {
		return output.JSON(cmd.OutOrStdout(), data)
	}
	tw := output.Table(cmd.OutOrStdout())
	fmt.Fprintln(tw, header)
	rows(tw)
	return tw.Flush()
}
