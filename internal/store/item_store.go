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
	"github.com/nhle/weekly-planner/internal/ordering"
)

// QueryRange returns the live items of q.Category scheduled inside
// [q.Start, q.End], ordered by their rank in that category. A corrupted
// ordering is repaired before the result is returned.
func (s *SQLiteStore) QueryRange(ctx context.Context, q RangeQuery) ([]model.Item, error) {
	items, err := s.selectRange(ctx, q)
	if err != nil {
		return nil, err
	}
	if !ordering.NeedsRepair(items, q.Category) {
		return items, nil
	}

	if _, err := s.RepairOrdering(ctx, items, q.Category); err != nil {
		// The unrepaired list is still usable for display.
		s.logger.Warn("lazy ordering repair failed",
			slog.String("category", string(q.Category)),
			slog.String("error", err.Error()),
		)
		return items, nil
	}
	return s.selectRange(ctx, q)
}

func (s *SQLiteStore) selectRange(ctx context.Context, q RangeQuery) ([]model.Item, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+itemColumns+` FROM items
		WHERE deleted_at IS NULL
			AND category = ?
			AND scheduled_at >= ? AND scheduled_at <= ?`,
		string(q.Category), q.Start.UnixMilli(), q.End.UnixMilli(),
	)
	if err != nil {
		return nil, storageErr("querying items", err)
	}

	items, err := rowsToItems(rows)
	if err != nil {
		return nil, storageErr("decoding items", err)
	}
	ordering.Sort(items, q.Category)
	return items, nil
}

// InsertItem stores a new item and returns its local id. The caller must
// have assigned a uuid; bookkeeping fields are set here. A uuid already
// held by any row, tombstones included, is rejected with ErrLogic: a
// deleted item keeps its uuid so the deletion can still sync.
func (s *SQLiteStore) InsertItem(ctx context.Context, item model.Item) (int64, error) {
	if item.UUID == "" {
		return 0, fmt.Errorf("%w: inserting item without uuid", model.ErrLogic)
	}

	now := s.clock()
	item = item.Clone()
	item.ID = 0
	item.DeletedAt = nil
	item.SyncedAt = nil
	item.Version = 1
	item.CreatedAt = now
	item.ModifiedAt = now
	item.DeviceID = s.deviceID
	applyDefaults(&item)
	stampCompletion(&item, now)

	row, err := toRow(item)
	if err != nil {
		return 0, storageErr("encoding item", err)
	}

	var id int64
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM items WHERE uuid = ?", item.UUID); err != nil {
			return storageErr("checking uuid", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: uuid %s already stored", model.ErrLogic, item.UUID)
		}

		res, err := tx.NamedExecContext(ctx, insertItemSQL, row)
		if err != nil {
			return storageErr("inserting item", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return storageErr("reading inserted id", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	item.ID = id
	s.notify(item)
	return id, nil
}

// UpdateItem applies patch to the row with the given id, provided that row
// still carries uuid. The updated item is returned.
func (s *SQLiteStore) UpdateItem(
	ctx context.Context,
	id int64,
	uuid string,
	patch model.ItemPatch,
) (model.Item, error) {
	return s.mutate(ctx, id, uuid, func(it *model.Item) {
		patch.Apply(it)
	})
}

// SoftDeleteItem marks item as deleted. The row stays for sync propagation.
func (s *SQLiteStore) SoftDeleteItem(ctx context.Context, item model.Item) error {
	now := s.clock()
	_, err := s.mutate(ctx, item.ID, item.UUID, func(it *model.Item) {
		it.DeletedAt = &now
	})
	return err
}

// HardDeleteItem physically removes item. Developer tooling only.
func (s *SQLiteStore) HardDeleteItem(ctx context.Context, item model.Item) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM items WHERE id = ? AND uuid = ?", item.ID, item.UUID)
	if err != nil {
		return storageErr(fmt.Sprintf("deleting item %d", item.ID), err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: item %d (%s)", model.ErrNotFound, item.ID, item.UUID)
	}
	s.notify(item)
	return nil
}

// CountItems returns the number of stored rows, tombstones included.
func (s *SQLiteStore) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM items"); err != nil {
		return 0, storageErr("counting items", err)
	}
	return n, nil
}

// GetItemByID returns the row with the given local id, deleted or not.
func (s *SQLiteStore) GetItemByID(ctx context.Context, id int64) (*model.Item, error) {
	return s.getItem(ctx, s.db, "id = ?", id)
}

// GetItemByUUID returns the row with the given uuid, deleted or not.
func (s *SQLiteStore) GetItemByUUID(ctx context.Context, uuid string) (*model.Item, error) {
	return s.getItem(ctx, s.db, "uuid = ?", uuid)
}

// RepairOrdering renumbers bucket across items in one transaction when the
// ordering is corrupt. Rows whose rank is already correct are not written.
// It returns the number of rows changed.
func (s *SQLiteStore) RepairOrdering(
	ctx context.Context,
	items []model.Item,
	bucket model.Category,
) (int, error) {
	return s.writeRanks(ctx, ordering.Repair(items, bucket), bucket)
}

// RenumberOrdering is RepairOrdering without the health check.
func (s *SQLiteStore) RenumberOrdering(
	ctx context.Context,
	items []model.Item,
	bucket model.Category,
) (int, error) {
	return s.writeRanks(ctx, ordering.Renumber(items, bucket), bucket)
}

func (s *SQLiteStore) writeRanks(ctx context.Context, changed []model.Item, bucket model.Category) (int, error) {
	if len(changed) == 0 {
		return 0, nil
	}

	now := s.clock()
	var before, after []model.Item
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, c := range changed {
			cur, err := s.getItem(ctx, tx, "id = ? AND uuid = ?", c.ID, c.UUID)
			if err != nil {
				return err
			}
			next := cur.Clone()
			if next.Order == nil {
				next.Order = model.Order{}
			}
			next.Order[bucket] = c.Order[bucket]
			s.bump(&next, now)

			if err := writeItem(ctx, tx, next); err != nil {
				return err
			}
			before = append(before, *cur)
			after = append(after, next)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("ordering repaired",
		slog.String("category", string(bucket)),
		slog.Int("rows", len(after)),
	)
	s.notify(append(before, after...)...)
	return len(after), nil
}

// mutate loads the row identified by id and uuid, lets fn modify it, and
// commits it with the version and modifiedAt bumped.
func (s *SQLiteStore) mutate(
	ctx context.Context,
	id int64,
	uuid string,
	fn func(*model.Item),
) (model.Item, error) {
	now := s.clock()
	var before, after model.Item
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.getItem(ctx, tx, "id = ? AND uuid = ?", id, uuid)
		if err != nil {
			return err
		}
		before = *cur
		after = cur.Clone()

		fn(&after)
		// Identity is never patchable.
		after.ID = before.ID
		after.UUID = before.UUID
		stampCompletion(&after, now)
		s.bump(&after, now)

		return writeItem(ctx, tx, after)
	})
	if err != nil {
		return model.Item{}, err
	}

	s.notify(before, after)
	return after, nil
}

func (s *SQLiteStore) bump(it *model.Item, now time.Time) {
	it.Version++
	it.ModifiedAt = now
	it.DeviceID = s.deviceID
}

func writeItem(ctx context.Context, tx *sqlx.Tx, it model.Item) error {
	row, err := toRow(it)
	if err != nil {
		return storageErr("encoding item", err)
	}
	result, err := tx.NamedExecContext(ctx, updateItemSQL, row)
	if err != nil {
		return storageErr(fmt.Sprintf("updating item %d", it.ID), err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: item %d (%s)", model.ErrNotFound, it.ID, it.UUID)
	}
	return nil
}

func (s *SQLiteStore) getItem(
	ctx context.Context,
	q sqlx.QueryerContext,
	where string,
	args ...any,
) (*model.Item, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT "+itemColumns+" FROM items WHERE "+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %v", model.ErrNotFound, args)
	}
	if err != nil {
		return nil, storageErr("getting item", err)
	}
	it, err := row.toItem()
	if err != nil {
		return nil, storageErr("decoding item", err)
	}
	return &it, nil
}

func applyDefaults(it *model.Item) {
	if it.Kind == "" {
		it.Kind = model.KindTodo
	}
	if it.Status == "" {
		it.Status = model.StatusUndone
	}
	if it.Category == "" {
		it.Category = model.CategoryWeekly
	}
	if it.Calendar == "" {
		it.Calendar = model.DefaultCalendar
	}
	if it.Order == nil {
		it.Order = model.Order{}
	}
}

// stampCompletion keeps completedAt consistent with the status.
func stampCompletion(it *model.Item, now time.Time) {
	if it.IsDone() {
		if it.CompletedAt == nil {
			t := now
			it.CompletedAt = &t
		}
		return
	}
	it.CompletedAt = nil
}
