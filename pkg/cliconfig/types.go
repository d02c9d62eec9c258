package cliconfig

import "time"

// CLIConfig is the complete configuration of the wmjp CLI.
type CLIConfig struct {
	// Storage
	DataDir  string `yaml:"dataDir,omitempty" json:"dataDir"`
	Backend  string `yaml:"backend,omitempty" json:"backend"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// Admin API
	ListenAddr string `yaml:"listenAddr,omitempty" json:"listenAddr"`

	// Synchronization
	Workers      int           `yaml:"workers,omitempty" json:"workers"`
	SyncTimeout  time.Duration `yaml:"syncTimeout,omitempty" json:"syncTimeout"`
	ProbeTimeout time.Duration `yaml:"probeTimeout,omitempty" json:"probeTimeout"`

	// Logging
	LogLevel  string `yaml:"logLevel,omitempty" json:"logLevel"`
	LogFormat string `yaml:"logFormat,omitempty" json:"logFormat"`
	LogFile   string `yaml:"logFile,omitempty" json:"logFile,omitempty"`

	// Output
	JSON bool `yaml:"json,omitempty" json:"json"`

	// ConfigFile is the explicit config file, if any. It is not read from
	// config files themselves.
	ConfigFile string `yaml:"-" json:"configFile,omitempty"`

	// Sources tracks where each value came from, keyed by YAML name.
	Sources map[string]string `yaml:"-" json:"-"`

	// SetFields lists the YAML keys explicitly present in the source this
	// config was loaded from. It lets an explicit false or zero override.
	SetFields map[string]bool `yaml:"-" json:"-"`
}

// Config sources.
const (
	SourceDefault = "default"
	SourceGlobal  = "global"
	SourceLocal   = "local"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Keys lists every setting in display order.
var Keys = []string{
	"dataDir", "backend", "database", "listenAddr",
	"workers", "syncTimeout", "probeTimeout",
	"logLevel", "logFormat", "logFile", "json",
}

// Value returns the display form of the setting named by key.
func (c *CLIConfig) Value(key string) string {
	switch key {
	case "dataDir":
		return c.DataDir
	case "backend":
		return c.Backend
	case "database":
		return c.Database
	case "listenAddr":
		return c.ListenAddr
	case "workers":
		return itoa(c.Workers)
	case "syncTimeout":
		return c.SyncTimeout.String()
	case "probeTimeout":
		return c.ProbeTimeout.String()
	case "logLevel":
		return c.LogLevel
	case "logFormat":
		return c.LogFormat
	case "logFile":
		return c.LogFile
	case "json":
		if c.JSON {
			return "true"
		}
		return "false"
	}
	return ""
}

// Source returns where key's value came from.
func (c *CLIConfig) Source(key string) string {
	if s, ok := c.Sources[key]; ok {
		return s
	}
	return SourceDefault
}
