package cliconfig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvConfig       = "WMJP_CONFIG"
	EnvDataDir      = "WMJP_DATA_DIR"
	EnvBackend      = "WMJP_BACKEND"
	EnvDatabase     = "WMJP_DATABASE"
	EnvListenAddr   = "WMJP_LISTEN"
	EnvWorkers      = "WMJP_WORKERS"
	EnvSyncTimeout  = "WMJP_SYNC_TIMEOUT"
	EnvProbeTimeout = "WMJP_PROBE_TIMEOUT"
	EnvLogLevel     = "WMJP_LOG_LEVEL"
	EnvLogFormat    = "WMJP_LOG_FORMAT"
	EnvLogFile      = "WMJP_LOG_FILE"
	EnvJSON         = "WMJP_JSON"
)

// LoadEnvConfig applies the variables that are set. Malformed numbers,
// durations and booleans are reported together.
func LoadEnvConfig(cfg *CLIConfig, getenv func(string) string) error {
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}

	var errs []error
	str := func(env, key string, dst *string) {
		if v := getenv(env); v != "" {
			*dst = v
			cfg.Sources[key] = SourceEnv
		}
	}
	str(EnvDataDir, "dataDir", &cfg.DataDir)
	str(EnvBackend, "backend", &cfg.Backend)
	str(EnvDatabase, "database", &cfg.Database)
	str(EnvListenAddr, "listenAddr", &cfg.ListenAddr)
	str(EnvLogLevel, "logLevel", &cfg.LogLevel)
	str(EnvLogFormat, "logFormat", &cfg.LogFormat)
	str(EnvLogFile, "logFile", &cfg.LogFile)

	if v := getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a number", EnvWorkers, v))
		} else {
			cfg.Workers = n
			cfg.Sources["workers"] = SourceEnv
		}
	}

	dur := func(env, key string, dst *time.Duration) {
		v := getenv(env)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a duration", env, v))
			return
		}
		*dst = d
		cfg.Sources[key] = SourceEnv
	}
	dur(EnvSyncTimeout, "syncTimeout", &cfg.SyncTimeout)
	dur(EnvProbeTimeout, "probeTimeout", &cfg.ProbeTimeout)

	if v := getenv(EnvJSON); v != "" {
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvJSON, err))
		} else {
			cfg.JSON = b
			cfg.Sources["json"] = SourceEnv
		}
	}
	return errors.Join(errs...)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", v)
}
