package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// GlobalConfigDir is the directory for global config under the user
	// config directory.
	GlobalConfigDir = "wmjp"
)

// LocalConfigFileNames are the names searched in the working directory, in order.
var LocalConfigFileNames = []string{".wmjprc.yaml", ".wmjprc.yml"}

// GlobalConfigFileNames are the names searched in the global config directory, in order.
var GlobalConfigFileNames = []string{"config.yaml", "config.yml"}

// LoadOptions controls where Load looks for files. Empty fields use the
// process working directory and the user config directory.
type LoadOptions struct {
	// ConfigFile is an explicit config file. It replaces the local file
	// and must exist.
	ConfigFile string
	WorkDir    string
	ConfigDir  string
	// Getenv reads environment variables; defaults to os.Getenv.
	Getenv func(string) string
}

// FindLocalConfig returns the first local config file in dir, or "".
func FindLocalConfig(dir string) string {
	return findFirst(dir, LocalConfigFileNames)
}

// FindGlobalConfig returns the first global config file under configDir, or "".
func FindGlobalConfig(configDir string) string {
	return findFirst(filepath.Join(configDir, GlobalConfigDir), GlobalConfigFileNames)
}

func findFirst(dir string, names []string) string {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadConfigFile reads one YAML config file and records which keys it sets.
func LoadConfigFile(path string) (*CLIConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}

	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	cfg.SetFields = make(map[string]bool, len(keys))
	for k := range keys {
		cfg.SetFields[k] = true
	}
	cfg.Sources = make(map[string]string)
	return &cfg, nil
}

// ConfigError is a config file that could not be parsed.
type ConfigError struct {
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Path + ": " + e.Message
}

// Load merges defaults, the global file, the local or explicit file and
// the environment, then validates the result. Flags are merged by the
// caller with MergeConfig and SourceFlag, followed by another Validate.
func Load(opts LoadOptions) (*CLIConfig, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.ConfigFile == "" {
		opts.ConfigFile = opts.Getenv(EnvConfig)
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		opts.WorkDir = wd
	}
	if opts.ConfigDir == "" {
		// No user config directory only means there is no global file.
		opts.ConfigDir, _ = os.UserConfigDir()
	}

	cfg := NewDefault()

	if opts.ConfigDir != "" {
		if path := FindGlobalConfig(opts.ConfigDir); path != "" {
			if err := mergeFile(cfg, path, SourceGlobal); err != nil {
				return nil, err
			}
		}
	}

	if opts.ConfigFile != "" {
		if err := mergeFile(cfg, opts.ConfigFile, SourceFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", opts.ConfigFile)
			}
			return nil, err
		}
		cfg.ConfigFile = opts.ConfigFile
	} else if path := FindLocalConfig(opts.WorkDir); path != "" {
		if err := mergeFile(cfg, path, SourceLocal); err != nil {
			return nil, err
		}
	}

	if err := LoadEnvConfig(cfg, opts.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *CLIConfig, path, source string) error {
	fileCfg, err := LoadConfigFile(path)
	if err != nil {
		return err
	}
	MergeConfig(cfg, fileCfg, source)
	return nil
}
