// Package file provides a file-based implementation of the store interfaces.
// All records live in one JSON document that is rewritten atomically after
// every change, before the change is reported as successful.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/store/memory"
)

// Store implements store.Store on top of a JSON file.
type Store struct {
	*memory.Store

	path string
	log  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Open loads the document at path, creating its directory when needed. A
// missing file is an empty store.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	// Ensure the directory exists with secure permissions (0700)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	data, err := load(path)
	if err != nil {
		return nil, err
	}
	s.Store = memory.New(memory.WithData(data), memory.WithCommit(s.save))
	s.log.Debug("file store opened", "path", path,
		"projects", len(data.Projects), "instances", len(data.Instances), "stubs", len(data.Stubs))
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Close releases nothing; every change is already on disk.
func (s *Store) Close() error {
	return nil
}

func load(path string) (memory.Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No data file yet, start fresh
			return memory.Data{Version: memory.DataVersion}, nil
		}
		return memory.Data{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var stored memory.Data
	if err := json.Unmarshal(raw, &stored); err != nil {
		return memory.Data{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if stored.Version > memory.DataVersion {
		return memory.Data{}, fmt.Errorf("%s has data version %d, newer than supported %d", path, stored.Version, memory.DataVersion)
	}
	return stored, nil
}

// save performs an atomic write: temp file in the same directory, fsync,
// then rename over the target.
func (s *Store) save(d memory.Data) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName) // Clean up temp file on failure
		return err
	}
	s.log.Debug("file store saved", "path", s.path, "bytes", len(data))
	return nil
}
