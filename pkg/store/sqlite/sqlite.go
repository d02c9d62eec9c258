// Package sqlite implements store.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - projects, instances, stubs
const currentSchemaVersion = 1

const timeFormat = time.RFC3339Nano

// Store is a SQLite-backed store.Store.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
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

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates or opens the database at path and applies the schema.
//
// Every connection runs with WAL journaling, a 5 second busy timeout,
// foreign key enforcement and immediate write transactions.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, log: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s.log.Debug("sqlite store opened", "path", path)
	return s, nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Projects returns the project store.
func (s *Store) Projects() store.ProjectStore { return projectStore{s} }

// Instances returns the instance registry.
func (s *Store) Instances() store.InstanceRegistry { return instanceRegistry{s} }

// Stubs returns the stub repository.
func (s *Store) Stubs() store.StubRepository { return stubRepository{s} }

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeFormat)
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exists(ctx context.Context, q queryer, table, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// =============================================================================
// Projects
// =============================================================================

type projectStore struct{ s *Store }

const projectColumns = "id, name, description, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*stub.Project, error) {
	var p stub.Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return &p, nil
}

func (ps projectStore) List(ctx context.Context) ([]*stub.Project, error) {
	rows, err := ps.s.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var result []*stub.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (ps projectStore) Get(ctx context.Context, id string) (*stub.Project, error) {
	p, err := scanProject(ps.s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (ps projectStore) Create(ctx context.Context, p *stub.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := store.AssignID("project", &p.ID); err != nil {
		return err
	}
	now := ps.s.timestamp()

	return ps.s.withTx(ctx, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, "projects", p.ID)
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		if found {
			return store.AlreadyExists("project", p.ID)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO projects ("+projectColumns+") VALUES (?, ?, ?, ?, ?)",
			p.ID, p.Name, p.Description, now, now); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		p.CreatedAt, p.UpdatedAt = parseTime(now), parseTime(now)
		return nil
	})
}

func (ps projectStore) Delete(ctx context.Context, id string) error {
	res, err := ps.s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireAffected(res, "project", id)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.NotFound(kind, id)
	}
	return nil
}

// =============================================================================
// Instances
// =============================================================================

type instanceRegistry struct{ s *Store }

const instanceColumns = "id, project_id, name, url, is_active, created_at, updated_at"

func scanInstance(row rowScanner) (*stub.Instance, error) {
	var inst stub.Instance
	var created, updated string
	if err := row.Scan(&inst.ID, &inst.ProjectID, &inst.Name, &inst.URL, &inst.Active, &created, &updated); err != nil {
		return nil, err
	}
	inst.CreatedAt, inst.UpdatedAt = parseTime(created), parseTime(updated)
	return &inst, nil
}

func (r instanceRegistry) List(ctx context.Context, projectID string) ([]*stub.Instance, error) {
	return r.list(ctx, "SELECT "+instanceColumns+" FROM instances WHERE project_id = ? ORDER BY rowid", projectID)
}

func (r instanceRegistry) ListActive(ctx context.Context, projectID string) ([]*stub.Instance, error) {
	return r.list(ctx, "SELECT "+instanceColumns+" FROM instances WHERE project_id = ? AND is_active = 1 ORDER BY rowid", projectID)
}

func (r instanceRegistry) list(ctx context.Context, query, projectID string) ([]*stub.Instance, error) {
	rows, err := r.s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var result []*stub.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (r instanceRegistry) Get(ctx context.Context, id string) (*stub.Instance, error) {
	inst, err := scanInstance(r.s.db.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("instance", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

func (r instanceRegistry) Create(ctx context.Context, inst *stub.Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	if err := store.AssignID("instance", &inst.ID); err != nil {
		return err
	}
	now := r.s.timestamp()

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, "projects", inst.ProjectID)
		if err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		if !found {
			return store.NotFound("project", inst.ProjectID)
		}
		if found, err = exists(ctx, tx, "instances", inst.ID); err != nil {
			return fmt.Errorf("create instance: %w", err)
		} else if found {
			return store.AlreadyExists("instance", inst.ID)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO instances ("+instanceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
			inst.ID, inst.ProjectID, inst.Name, inst.URL, inst.Active, now, now); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		inst.CreatedAt, inst.UpdatedAt = parseTime(now), parseTime(now)
		return nil
	})
}

func (r instanceRegistry) Update(ctx context.Context, inst *stub.Instance) error {
	if err := stub.ValidateBaseURL(inst.URL); err != nil {
		return err
	}
	if inst.Name == "" {
		return stub.ErrNameRequired
	}
	now := r.s.timestamp()

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE instances SET name = ?, url = ?, is_active = ?, updated_at = ? WHERE id = ?",
			inst.Name, inst.URL, inst.Active, now, inst.ID)
		if err != nil {
			return fmt.Errorf("update instance: %w", err)
		}
		if err := requireAffected(res, "instance", inst.ID); err != nil {
			return err
		}
		stored, err := scanInstance(tx.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE id = ?", inst.ID))
		if err != nil {
			return fmt.Errorf("update instance: %w", err)
		}
		*inst = *stored
		return nil
	})
}

func (r instanceRegistry) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, "DELETE FROM instances WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return requireAffected(res, "instance", id)
}

// =============================================================================
// Stubs
// =============================================================================

type stubRepository struct{ s *Store }

const stubColumns = "id, project_id, name, description, mapping, is_active, version, created_at, updated_at"

func scanStub(row rowScanner) (*stub.Stub, error) {
	var st stub.Stub
	var mapping, created, updated string
	if err := row.Scan(&st.ID, &st.ProjectID, &st.Name, &st.Description, &mapping, &st.Active, &st.Version, &created, &updated); err != nil {
		return nil, err
	}
	st.Mapping = json.RawMessage(mapping)
	st.CreatedAt, st.UpdatedAt = parseTime(created), parseTime(updated)
	return &st, nil
}

func (r stubRepository) List(ctx context.Context, projectID string) ([]*stub.Stub, error) {
	return r.list(ctx, "SELECT "+stubColumns+" FROM stubs WHERE project_id = ? ORDER BY rowid", projectID)
}

func (r stubRepository) ListActive(ctx context.Context, projectID string) ([]*stub.Stub, error) {
	return r.list(ctx, "SELECT "+stubColumns+" FROM stubs WHERE project_id = ? AND is_active = 1 ORDER BY rowid", projectID)
}

func (r stubRepository) list(ctx context.Context, query, projectID string) ([]*stub.Stub, error) {
	rows, err := r.s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list stubs: %w", err)
	}
	defer rows.Close()

	var result []*stub.Stub
	for rows.Next() {
		st, err := scanStub(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stub: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (r stubRepository) Get(ctx context.Context, id string) (*stub.Stub, error) {
	st, err := scanStub(r.s.db.QueryRowContext(ctx, "SELECT "+stubColumns+" FROM stubs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("stub", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get stub: %w", err)
	}
	return st, nil
}

func (r stubRepository) Create(ctx context.Context, st *stub.Stub) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := store.AssignID("stub", &st.ID); err != nil {
		return err
	}
	now := r.s.timestamp()

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, "projects", st.ProjectID)
		if err != nil {
			return fmt.Errorf("create stub: %w", err)
		}
		if !found {
			return store.NotFound("project", st.ProjectID)
		}
		if found, err = exists(ctx, tx, "stubs", st.ID); err != nil {
			return fmt.Errorf("create stub: %w", err)
		} else if found {
			return store.AlreadyExists("stub", st.ID)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO stubs ("+stubColumns+") VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)",
			st.ID, st.ProjectID, st.Name, st.Description, string(st.Mapping), st.Active, now, now); err != nil {
			return fmt.Errorf("create stub: %w", err)
		}
		st.Version = 1
		st.CreatedAt, st.UpdatedAt = parseTime(now), parseTime(now)
		return nil
	})
}

func (r stubRepository) Update(ctx context.Context, st *stub.Stub) error {
	now := r.s.timestamp()

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE stubs SET name = ?, description = ?, is_active = ?, updated_at = ? WHERE id = ?",
			st.Name, st.Description, st.Active, now, st.ID)
		if err != nil {
			return fmt.Errorf("update stub: %w", err)
		}
		if err := requireAffected(res, "stub", st.ID); err != nil {
			return err
		}
		stored, err := scanStub(tx.QueryRowContext(ctx, "SELECT "+stubColumns+" FROM stubs WHERE id = ?", st.ID))
		if err != nil {
			return fmt.Errorf("update stub: %w", err)
		}
		*st = *stored
		return nil
	})
}

func (r stubRepository) UpdateMappingPayload(ctx context.Context, id string, mapping json.RawMessage) (*stub.Stub, error) {
	if err := stub.ValidateMapping(mapping); err != nil {
		return nil, err
	}
	now := r.s.timestamp()

	var out *stub.Stub
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanStub(tx.QueryRowContext(ctx, "SELECT "+stubColumns+" FROM stubs WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return store.NotFound("stub", id)
		}
		if err != nil {
			return fmt.Errorf("update stub mapping: %w", err)
		}
		if stub.SamePayload(cur.Mapping, mapping) {
			out = cur
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE stubs SET mapping = ?, version = version + 1, updated_at = ? WHERE id = ?",
			string(mapping), now, id); err != nil {
			return fmt.Errorf("update stub mapping: %w", err)
		}
		cur.Mapping = append(json.RawMessage(nil), mapping...)
		cur.Version++
		cur.UpdatedAt = parseTime(now)
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r stubRepository) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, "DELETE FROM stubs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete stub: %w", err)
	}
	return requireAffected(res, "stub", id)
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
