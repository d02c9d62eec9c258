package cliconfig

import (
	"strconv"

	"github.com/ykagano/wiremock-jp/pkg/admin"
	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

// Defaults.
const (
	DefaultBackend    = string(store.BackendSQLite)
	DefaultListenAddr = admin.DefaultAddr
	DefaultWorkers    = syncer.DefaultWorkers
	DefaultLogLevel   = "warn"
	DefaultLogFormat  = string(logging.FormatText)
)

// MaxWorkers bounds the workers setting.
const MaxWorkers = 64

// NewDefault creates a CLIConfig holding only default values.
func NewDefault() *CLIConfig {
	cfg := &CLIConfig{
		DataDir:      store.DefaultDataDir(),
		Backend:      DefaultBackend,
		ListenAddr:   DefaultListenAddr,
		Workers:      DefaultWorkers,
		SyncTimeout:  wiremock.DefaultTimeout,
		ProbeTimeout: wiremock.DefaultProbeTimeout,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		Sources:      make(map[string]string),
	}
	for _, key := range Keys {
		cfg.Sources[key] = SourceDefault
	}
	return cfg
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
