package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nhle/weekly-planner/internal/model"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS planner_items (
	uuid         TEXT PRIMARY KEY,
	owner_id     TEXT,
	title        TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL DEFAULT 'todo',
	status       TEXT NOT NULL DEFAULT 'undone',
	category     TEXT NOT NULL DEFAULT 'weekly',
	calendar     TEXT NOT NULL DEFAULT 'gregory',
	scheduled_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	tz_offset    INTEGER NOT NULL DEFAULT 0,
	tz_name      TEXT NOT NULL DEFAULT '',
	parent_uuid  TEXT,
	ordering     JSONB NOT NULL DEFAULT '{}',
	deleted_at   TIMESTAMPTZ,
	version      BIGINT NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL,
	modified_at  TIMESTAMPTZ NOT NULL,
	device_id    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_planner_items_owner_modified
	ON planner_items(owner_id, modified_at);
`

const pgUpsert = `
INSERT INTO planner_items (
	uuid, owner_id, title, kind, status, category, calendar,
	scheduled_at, completed_at, tz_offset, tz_name, parent_uuid, ordering,
	deleted_at, version, created_at, modified_at, device_id
) VALUES (
	:uuid, :owner_id, :title, :kind, :status, :category, :calendar,
	:scheduled_at, :completed_at, :tz_offset, :tz_name, :parent_uuid, :ordering,
	:deleted_at, :version, :created_at, :modified_at, :device_id
)
ON CONFLICT (uuid) DO UPDATE SET
	owner_id = EXCLUDED.owner_id,
	title = EXCLUDED.title,
	kind = EXCLUDED.kind,
	status = EXCLUDED.status,
	category = EXCLUDED.category,
	calendar = EXCLUDED.calendar,
	scheduled_at = EXCLUDED.scheduled_at,
	completed_at = EXCLUDED.completed_at,
	tz_offset = EXCLUDED.tz_offset,
	tz_name = EXCLUDED.tz_name,
	parent_uuid = EXCLUDED.parent_uuid,
	ordering = EXCLUDED.ordering,
	deleted_at = EXCLUDED.deleted_at,
	version = EXCLUDED.version,
	created_at = EXCLUDED.created_at,
	modified_at = EXCLUDED.modified_at,
	device_id = EXCLUDED.device_id
WHERE planner_items.modified_at <= EXCLUDED.modified_at`

// Postgres is a Backend that reads and writes a shared Postgres table
// directly.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to dsn and creates the item table if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating planner_items: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type pgRow struct {
	UUID        string         `db:"uuid"`
	OwnerID     sql.NullString `db:"owner_id"`
	Title       string         `db:"title"`
	Kind        string         `db:"kind"`
	Status      string         `db:"status"`
	Category    string         `db:"category"`
	Calendar    string         `db:"calendar"`
	ScheduledAt time.Time      `db:"scheduled_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
	TZOffset    int            `db:"tz_offset"`
	TZName      string         `db:"tz_name"`
	ParentUUID  sql.NullString `db:"parent_uuid"`
	Ordering    string         `db:"ordering"`
	DeletedAt   sql.NullTime   `db:"deleted_at"`
	Version     int64          `db:"version"`
	CreatedAt   time.Time      `db:"created_at"`
	ModifiedAt  time.Time      `db:"modified_at"`
	DeviceID    string         `db:"device_id"`
}

// Pull implements Backend.
func (p *Postgres) Pull(ctx context.Context, ownerID string, since time.Time) ([]model.Item, error) {
	var rows []pgRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT uuid, owner_id, title, kind, status, category, calendar,
			scheduled_at, completed_at, tz_offset, tz_name, parent_uuid, ordering,
			deleted_at, version, created_at, modified_at, device_id
		FROM planner_items
		WHERE owner_id = $1 AND modified_at > $2
		ORDER BY modified_at`,
		ownerID, since.UTC(),
	)
	if err != nil {
		return nil, remoteErr("pulling items", err)
	}

	items := make([]model.Item, 0, len(rows))
	for _, r := range rows {
		it, err := r.toItem()
		if err != nil {
			return nil, remoteErr("decoding pulled item", err)
		}
		items = append(items, it)
	}
	return items, nil
}

// Push implements Backend. All rows are written in one transaction.
func (p *Postgres) Push(ctx context.Context, ownerID string, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return remoteErr("beginning push", err)
	}
	defer tx.Rollback()

	for _, it := range withOwner(items, ownerID) {
		row, err := toPGRow(it)
		if err != nil {
			return remoteErr("encoding item", err)
		}
		if _, err := tx.NamedExecContext(ctx, pgUpsert, row); err != nil {
			return remoteErr(fmt.Sprintf("upserting item %s", it.UUID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return remoteErr("committing push", err)
	}
	return nil
}

func toPGRow(it model.Item) (pgRow, error) {
	ordering, err := json.Marshal(it.Order.Finite())
	if err != nil {
		return pgRow{}, fmt.Errorf("marshaling ordering for item %s: %w", it.UUID, err)
	}
	return pgRow{
		UUID:        it.UUID,
		OwnerID:     nullString(it.OwnerID),
		Title:       it.Title,
		Kind:        string(it.Kind),
		Status:      string(it.Status),
		Category:    string(it.Category),
		Calendar:    it.Calendar,
		ScheduledAt: it.ScheduledAt.UTC(),
		CompletedAt: nullTime(it.CompletedAt),
		TZOffset:    it.TZOffset,
		TZName:      it.TZName,
		ParentUUID:  nullString(it.ParentUUID),
		Ordering:    string(ordering),
		DeletedAt:   nullTime(it.DeletedAt),
		Version:     it.Version,
		CreatedAt:   it.CreatedAt.UTC(),
		ModifiedAt:  it.ModifiedAt.UTC(),
		DeviceID:    it.DeviceID,
	}, nil
}

func (r pgRow) toItem() (model.Item, error) {
	it := model.Item{
		UUID:        r.UUID,
		Title:       r.Title,
		Kind:        model.Kind(r.Kind),
		Status:      model.Status(r.Status),
		Category:    model.Category(r.Category),
		Calendar:    r.Calendar,
		ScheduledAt: r.ScheduledAt.UTC(),
		TZOffset:    r.TZOffset,
		TZName:      r.TZName,
		Order:       model.Order{},
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		ModifiedAt:  r.ModifiedAt.UTC(),
		DeviceID:    r.DeviceID,
	}
	if r.OwnerID.Valid {
		it.OwnerID = &r.OwnerID.String
	}
	if r.ParentUUID.Valid {
		it.ParentUUID = &r.ParentUUID.String
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		it.CompletedAt = &t
	}
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time.UTC()
		it.DeletedAt = &t
	}
	if err := json.Unmarshal([]byte(r.Ordering), &it.Order); err != nil {
		return model.Item{}, fmt.Errorf("unmarshaling ordering for item %s: %w", r.UUID, err)
	}
	return it, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
