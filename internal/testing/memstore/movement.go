package memstore

import (
	"context"
	"slices"

	"github.com/odyssey-erp/stockledger/internal/movement"
)

// InsertMovement appends a movement.
func (t *Tx) InsertMovement(_ context.Context, m movement.Movement) (movement.Movement, error) {
	if err := t.fail("InsertMovement"); err != nil {
		return movement.Movement{}, err
	}
	m.ID = t.state.id()
	m.CreatedAt = t.now()
	t.state.movements = append(t.state.movements, m)
	return m, nil
}

// ListMovements returns movements matching filter, newest first.
func (t *Tx) ListMovements(_ context.Context, f movement.Filter) ([]movement.Movement, error) {
	var out []movement.Movement
	for _, m := range t.state.movements {
		if matchesMovement(m, f) {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b movement.Movement) int {
		if c := b.MovementDate.Compare(a.MovementDate); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchesMovement(m movement.Movement, f movement.Filter) bool {
	if f.BatchID != 0 && !eq(m.BatchID, f.BatchID) && !eq(m.RelatedBatchID, f.BatchID) {
		return false
	}
	if f.BarcodeID != 0 && !eq(m.BarcodeID, f.BarcodeID) {
		return false
	}
	if f.StoreID != 0 && !eq(m.FromStoreID, f.StoreID) && !eq(m.ToStoreID, f.StoreID) {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && m.MovementDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && m.MovementDate.After(f.To) {
		return false
	}
	return true
}

func eq(p *int64, v int64) bool {
	return p != nil && *p == v
}
