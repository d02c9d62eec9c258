package cliconfig

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/store"
)

// Validate checks every setting and reports all problems at once.
func (c *CLIConfig) Validate() error {
	var errs []error
	if _, err := store.ParseBackend(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.LookupLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", string(logging.FormatText), string(logging.FormatJSON):
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat))
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		errs = append(errs, fmt.Errorf("workers %d is out of range (1-%d)", c.Workers, MaxWorkers))
	}
	if c.SyncTimeout <= 0 {
		errs = append(errs, fmt.Errorf("syncTimeout %s must be positive", c.SyncTimeout))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probeTimeout %s must be positive", c.ProbeTimeout))
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listenAddr %q: %w", c.ListenAddr, err))
	}
	return errors.Join(errs...)
}

// StoreConfig returns the store configuration selected by c. Validate must
// have succeeded.
func (c *CLIConfig) StoreConfig() store.Config {
	backend, _ := store.ParseBackend(c.Backend)
	return store.Config{Backend: backend, DataDir: c.DataDir, Path: c.Database}
}

// LoggingConfig returns the logging configuration selected by c.
func (c *CLIConfig) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.LogLevel),
		Format: logging.ParseFormat(c.LogFormat),
	}
}

// DatabasePath is the resolved store file, or "" for the memory backend.
func (c *CLIConfig) DatabasePath() string {
	p := c.StoreConfig().ResolvedPath()
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
