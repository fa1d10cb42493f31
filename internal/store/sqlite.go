package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/weekly-planner/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db       *sqlx.DB
	now      func() time.Time
	deviceID string
	logger   *slog.Logger

	subsMu  sync.Mutex
	subs    map[int]*subscription
	nextSub int
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source used for modifiedAt and friends.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithDeviceID sets the device id stamped on every committed mutation.
func WithDeviceID(id string) Option {
	return func(s *SQLiteStore) { s.deviceID = id }
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = l }
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// from splitting across pool connections.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		now:    time.Now,
		logger: slog.Default(),
		subs:   make(map[int]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// clock returns the current time truncated to the stored precision.
func (s *SQLiteStore) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// withTx runs fn inside a transaction, rolling back on any error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

// storageErr tags err as a local persistence failure.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, err)
}

// itemRow mirrors the items table.
type itemRow struct {
	ID          int64          `db:"id"`
	UUID        string         `db:"uuid"`
	OwnerID     sql.NullString `db:"owner_id"`
	Title       string         `db:"title"`
	Kind        string         `db:"kind"`
	Status      string         `db:"status"`
	Category    string         `db:"category"`
	Calendar    string         `db:"calendar"`
	ScheduledAt int64          `db:"scheduled_at"`
	CompletedAt sql.NullInt64  `db:"completed_at"`
	TZOffset    int            `db:"tz_offset"`
	TZName      string         `db:"tz_name"`
	ParentUUID  sql.NullString `db:"parent_uuid"`
	Ordering    string         `db:"ordering"`
	DeletedAt   sql.NullInt64  `db:"deleted_at"`
	Version     int64          `db:"version"`
	CreatedAt   int64          `db:"created_at"`
	ModifiedAt  int64          `db:"modified_at"`
	SyncedAt    sql.NullInt64  `db:"synced_at"`
	DeviceID    string         `db:"device_id"`
}

const itemColumns = `id, uuid, owner_id, title, kind, status, category, calendar,
	scheduled_at, completed_at, tz_offset, tz_name, parent_uuid, ordering,
	deleted_at, version, created_at, modified_at, synced_at, device_id`

const insertItemSQL = `
	INSERT INTO items (
		uuid, owner_id, title, kind, status, category, calendar,
		scheduled_at, completed_at, tz_offset, tz_name, parent_uuid, ordering,
		deleted_at, version, created_at, modified_at, synced_at, device_id
	) VALUES (
		:uuid, :owner_id, :title, :kind, :status, :category, :calendar,
		:scheduled_at, :completed_at, :tz_offset, :tz_name, :parent_uuid, :ordering,
		:deleted_at, :version, :created_at, :modified_at, :synced_at, :device_id
	)`

const updateItemSQL = `
	UPDATE items SET
		owner_id = :owner_id, title = :title, kind = :kind, status = :status,
		category = :category, calendar = :calendar, scheduled_at = :scheduled_at,
		completed_at = :completed_at, tz_offset = :tz_offset, tz_name = :tz_name,
		parent_uuid = :parent_uuid, ordering = :ordering, deleted_at = :deleted_at,
		version = :version, created_at = :created_at, modified_at = :modified_at,
		synced_at = :synced_at, device_id = :device_id
	WHERE id = :id`

func toRow(it model.Item) (itemRow, error) {
	ordering, err := json.Marshal(it.Order.Finite())
	if err != nil {
		return itemRow{}, fmt.Errorf("marshaling ordering for item %s: %w", it.UUID, err)
	}
	return itemRow{
		ID:          it.ID,
		UUID:        it.UUID,
		OwnerID:     nullString(it.OwnerID),
		Title:       it.Title,
		Kind:        string(it.Kind),
		Status:      string(it.Status),
		Category:    string(it.Category),
		Calendar:    it.Calendar,
		ScheduledAt: it.ScheduledAt.UnixMilli(),
		CompletedAt: nullMillis(it.CompletedAt),
		TZOffset:    it.TZOffset,
		TZName:      it.TZName,
		ParentUUID:  nullString(it.ParentUUID),
		Ordering:    string(ordering),
		DeletedAt:   nullMillis(it.DeletedAt),
		Version:     it.Version,
		CreatedAt:   it.CreatedAt.UnixMilli(),
		ModifiedAt:  it.ModifiedAt.UnixMilli(),
		SyncedAt:    nullMillis(it.SyncedAt),
		DeviceID:    it.DeviceID,
	}, nil
}

func (r itemRow) toItem() (model.Item, error) {
	it := model.Item{
		ID:          r.ID,
		UUID:        r.UUID,
		OwnerID:     stringPtr(r.OwnerID),
		Title:       r.Title,
		Kind:        model.Kind(r.Kind),
		Status:      model.Status(r.Status),
		Category:    model.Category(r.Category),
		Calendar:    r.Calendar,
		ScheduledAt: fromMillis(r.ScheduledAt),
		CompletedAt: timePtr(r.CompletedAt),
		TZOffset:    r.TZOffset,
		TZName:      r.TZName,
		ParentUUID:  stringPtr(r.ParentUUID),
		Order:       model.Order{},
		DeletedAt:   timePtr(r.DeletedAt),
		Version:     r.Version,
		CreatedAt:   fromMillis(r.CreatedAt),
		ModifiedAt:  fromMillis(r.ModifiedAt),
		SyncedAt:    timePtr(r.SyncedAt),
		DeviceID:    r.DeviceID,
	}
	if r.Ordering != "" {
		if err := json.Unmarshal([]byte(r.Ordering), &it.Order); err != nil {
			return model.Item{}, fmt.Errorf("unmarshaling ordering for item %s: %w", r.UUID, err)
		}
	}
	return it, nil
}

func rowsToItems(rows []itemRow) ([]model.Item, error) {
	items := make([]model.Item, 0, len(rows))
	for _, r := range rows {
		it, err := r.toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
