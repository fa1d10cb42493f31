package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/weekly-planner/internal/model"
)

// LastSyncedAt returns the sync watermark: the latest syncedAt across all
// rows, or the unix epoch when nothing has been synced yet.
func (s *SQLiteStore) LastSyncedAt(ctx context.Context) (time.Time, error) {
	var ms sql.NullInt64
	if err := s.db.GetContext(ctx, &ms, "SELECT MAX(synced_at) FROM items WHERE synced_at IS NOT NULL"); err != nil {
		return time.Time{}, storageErr("reading sync watermark", err)
	}
	if !ms.Valid {
		return fromMillis(0), nil
	}
	return fromMillis(ms.Int64), nil
}

// Reconcile merges pulled items into the local table inside a single
// transaction. Items are matched by uuid, tombstones included. A remote
// copy replaces the local row only when it was modified strictly later;
// the local id and syncedAt survive the overwrite.
func (s *SQLiteStore) Reconcile(ctx context.Context, remote []model.Item) (ReconcileResult, error) {
	var res ReconcileResult
	if len(remote) == 0 {
		return res, nil
	}

	var images []model.Item
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range remote {
			if r.UUID == "" {
				s.logger.Warn("skipping pulled item without uuid")
				continue
			}

			local, err := s.getItem(ctx, tx, "uuid = ?", r.UUID)
			switch {
			case errors.Is(err, model.ErrNotFound):
				incoming := r.Clone()
				incoming.ID = 0
				incoming.SyncedAt = nil
				applyDefaults(&incoming)
				row, err := toRow(incoming)
				if err != nil {
					return storageErr("encoding pulled item", err)
				}
				result, err := tx.NamedExecContext(ctx, insertItemSQL, row)
				if err != nil {
					return storageErr(fmt.Sprintf("inserting pulled item %s", r.UUID), err)
				}
				incoming.ID, _ = result.LastInsertId()
				images = append(images, incoming)
				res.Inserted++
				res.Applied = append(res.Applied, r.UUID)

			case err != nil:
				return err

			case r.ModifiedAt.After(local.ModifiedAt):
				incoming := r.Clone()
				incoming.ID = local.ID
				incoming.SyncedAt = local.SyncedAt
				applyDefaults(&incoming)
				if err := writeItem(ctx, tx, incoming); err != nil {
					return err
				}
				images = append(images, *local, incoming)
				res.Updated++
				res.Applied = append(res.Applied, r.UUID)

			default:
				res.Kept++
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	s.logger.Debug("reconciled pulled items",
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("kept", res.Kept),
	)
	s.notify(images...)
	return res, nil
}

// PendingChanges returns the rows that still have to be pushed: never
// synced, or modified after since. Tombstones are included.
func (s *SQLiteStore) PendingChanges(ctx context.Context, since time.Time) ([]model.Item, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+itemColumns+` FROM items
		WHERE synced_at IS NULL OR modified_at > ?
		ORDER BY modified_at, id`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, storageErr("gathering pending changes", err)
	}
	items, err := rowsToItems(rows)
	if err != nil {
		return nil, storageErr("decoding pending changes", err)
	}
	return items, nil
}

// MarkSynced stamps syncedAt on the given uuids in one statement and fills
// in the owner where it is still unset. Version and modifiedAt are left
// alone: marking a row synced is not a user mutation.
func (s *SQLiteStore) MarkSynced(ctx context.Context, uuids []string, at time.Time, ownerID string) error {
	if len(uuids) == 0 {
		return nil
	}

	var owner sql.NullString
	if ownerID != "" {
		owner = sql.NullString{String: ownerID, Valid: true}
	}

	query, args, err := sqlx.In(`
		UPDATE items SET
			synced_at = ?,
			owner_id = COALESCE(owner_id, ?)
		WHERE uuid IN (?)`,
		at.UTC().Truncate(time.Millisecond).UnixMilli(), owner, uuids,
	)
	if err != nil {
		return storageErr("building mark-synced query", err)
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return storageErr(fmt.Sprintf("marking %d items synced", len(uuids)), err)
		}
		return nil
	})
	return err
}
