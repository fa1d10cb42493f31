package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhle/weekly-planner/internal/model"
)

// draftPayload carries the local id next to the item, which does not
// serialise it.
type draftPayload struct {
	ID   int64      `json:"id"`
	Item model.Item `json:"item"`
}

type draftRow struct {
	Slot      string `db:"slot"`
	Payload   string `db:"payload"`
	UpdatedAt int64  `db:"updated_at"`
}

// SaveDraft writes item into slot, replacing whatever was there.
func (s *SQLiteStore) SaveDraft(ctx context.Context, slot model.Slot, item model.Item) error {
	if !validSlot(slot) {
		return fmt.Errorf("%w: unknown draft slot %q", model.ErrLogic, slot)
	}

	item = item.Clone()
	item.Order = item.Order.Finite()
	payload, err := json.Marshal(draftPayload{ID: item.ID, Item: item})
	if err != nil {
		return storageErr("encoding draft", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (slot, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		string(slot), string(payload), s.clock().UnixMilli(),
	)
	if err != nil {
		return storageErr(fmt.Sprintf("saving %s draft", slot), err)
	}
	return nil
}

// LoadDrafts returns every persisted draft keyed by slot.
func (s *SQLiteStore) LoadDrafts(ctx context.Context) (map[model.Slot]model.Item, error) {
	var rows []draftRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT slot, payload, updated_at FROM drafts"); err != nil {
		return nil, storageErr("loading drafts", err)
	}

	drafts := make(map[model.Slot]model.Item, len(rows))
	for _, r := range rows {
		var p draftPayload
		if err := json.Unmarshal([]byte(r.Payload), &p); err != nil {
			return nil, storageErr(fmt.Sprintf("decoding %s draft", r.Slot), err)
		}
		p.Item.ID = p.ID
		drafts[model.Slot(r.Slot)] = p.Item
	}
	return drafts, nil
}

// DeleteDraft empties slot. Deleting an empty slot is not an error.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, slot model.Slot) error {
	if !validSlot(slot) {
		return fmt.Errorf("%w: unknown draft slot %q", model.ErrLogic, slot)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE slot = ?", string(slot)); err != nil {
		return storageErr(fmt.Sprintf("deleting %s draft", slot), err)
	}
	return nil
}

func validSlot(slot model.Slot) bool {
	return slot == model.SlotNew || slot == model.SlotExisting
}
