// Package store defines the persistence contracts for projects, WireMock
// instances and stubs, together with the shared errors and backend
// configuration.
//
// Backends live in subpackages:
//   - sqlite: embedded SQLite database (default)
//   - file:   a single JSON document, rewritten atomically on every change
//   - memory: in-process maps with no persistence
//
// Directory structure follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/wiremock-jp/ (database, JSON store)
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ykagano/wiremock-jp/internal/id"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
)

// NotFound returns an error matching ErrNotFound that names the missing
// record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// AlreadyExists returns an error matching ErrAlreadyExists.
func AlreadyExists(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrAlreadyExists)
}

// AssignID gives *recordID a new identifier when it is empty and rejects a
// caller-supplied one that is not a valid identifier.
func AssignID(kind string, recordID *string) error {
	if *recordID == "" {
		*recordID = id.New()
		return nil
	}
	if !id.Valid(*recordID) {
		return fmt.Errorf("%s %q: %w", kind, *recordID, ErrInvalidID)
	}
	return nil
}

// Backend represents a storage backend type.
type Backend string

const (
	// BackendSQLite uses an embedded SQLite database
	BackendSQLite Backend = "sqlite"
	// BackendFile uses a single JSON file
	BackendFile Backend = "file"
	// BackendMemory uses in-memory storage (no persistence)
	BackendMemory Backend = "memory"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendSQLite, BackendFile, BackendMemory:
		return b, nil
	case "":
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown store backend %q (want sqlite, file or memory)", s)
	}
}

const appDirName = "wiremock-jp"

// Default file names inside the data directory.
const (
	DefaultDatabaseFile = "wiremock-jp.db"
	DefaultJSONFile     = "data.json"
)

// Config holds store configuration.
type Config struct {
	// Backend specifies the storage backend to use
	Backend Backend `json:"backend" yaml:"backend"`

	// DataDir is the base directory for data storage
	// Defaults to XDG_DATA_HOME/wiremock-jp or ~/.local/share/wiremock-jp
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`

	// Path overrides the database or JSON file location. Relative paths are
	// resolved against DataDir.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		DataDir: DefaultDataDir(),
	}
}

// ResolvedPath returns the file the configured backend reads and writes.
// It is empty for the memory backend.
func (c Config) ResolvedPath() string {
	dataDir := c.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if c.Path != "" {
		if filepath.IsAbs(c.Path) {
			return c.Path
		}
		return filepath.Join(dataDir, c.Path)
	}
	switch c.Backend {
	case BackendMemory:
		return ""
	case BackendFile:
		return filepath.Join(dataDir, DefaultJSONFile)
	default:
		return filepath.Join(dataDir, DefaultDatabaseFile)
	}
}

// DefaultDataDir returns the default data directory following XDG spec.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appDirName, "data")
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appDirName)
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, appDirName)
		}
		return filepath.Join(home, "AppData", "Local", appDirName)
	}
	return filepath.Join(home, ".local", "share", appDirName)
}
