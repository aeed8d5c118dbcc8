package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/stockledger/internal/dispatch"
	"github.com/odyssey-erp/stockledger/internal/rebalancing"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// InsertRebalancingRequest stores a request.
func (t *Tx) InsertRebalancingRequest(_ context.Context, req rebalancing.Request) (rebalancing.Request, error) {
	req.ID = t.state.id()
	req.CreatedAt = t.now()
	req.UpdatedAt = req.CreatedAt
	t.state.requests[req.ID] = req
	return req, nil
}

// GetRebalancingRequest loads a request.
func (t *Tx) GetRebalancingRequest(_ context.Context, id int64) (rebalancing.Request, error) {
	req, ok := t.state.requests[id]
	if !ok {
		return rebalancing.Request{}, rebalancing.ErrNotFound
	}
	return req, nil
}

// GetRebalancingRequestForUpdate loads a request; transactions are already serialized.
func (t *Tx) GetRebalancingRequestForUpdate(ctx context.Context, id int64) (rebalancing.Request, error) {
	return t.GetRebalancingRequest(ctx, id)
}

// UpdateRebalancingRequest replaces a request.
func (t *Tx) UpdateRebalancingRequest(_ context.Context, req rebalancing.Request) error {
	if err := t.fail("UpdateRebalancingRequest"); err != nil {
		return err
	}
	if _, ok := t.state.requests[req.ID]; !ok {
		return rebalancing.ErrNotFound
	}
	req.UpdatedAt = t.now()
	t.state.requests[req.ID] = req
	return nil
}

// ListRebalancingRequests returns requests matching filter, newest first.
func (t *Tx) ListRebalancingRequests(_ context.Context, f rebalancing.ListFilter) ([]rebalancing.Request, error) {
	var out []rebalancing.Request
	for _, req := range sortedValues(t.state.requests) {
		switch {
		case f.Status != "" && req.Status != f.Status:
		case f.OpenOnly && !req.Status.IsOpen():
		case f.ProductID != 0 && req.ProductID != f.ProductID:
		case f.StoreID != 0 && req.SourceStoreID != f.StoreID && req.DestinationStoreID != f.StoreID:
		default:
			out = append(out, req)
		}
	}
	slices.Reverse(out)
	return out, nil
}

// InsertDispatch stores a dispatch header.
func (t *Tx) InsertDispatch(_ context.Context, d dispatch.Dispatch) (dispatch.Dispatch, error) {
	for _, cur := range t.state.dispatches {
		if cur.DispatchNumber == d.DispatchNumber {
			return dispatch.Dispatch{}, fmt.Errorf("dispatch number %s: %w", d.DispatchNumber, shared.ErrConflict)
		}
	}
	d.ID = t.state.id()
	d.CreatedAt = t.now()
	d.UpdatedAt = d.CreatedAt
	d.Items = nil
	t.state.dispatches[d.ID] = d
	return d, nil
}

// GetDispatch loads a dispatch header.
func (t *Tx) GetDispatch(_ context.Context, id int64) (dispatch.Dispatch, error) {
	d, ok := t.state.dispatches[id]
	if !ok {
		return dispatch.Dispatch{}, dispatch.ErrNotFound
	}
	return d, nil
}

// GetDispatchForUpdate loads a dispatch header; transactions are already serialized.
func (t *Tx) GetDispatchForUpdate(ctx context.Context, id int64) (dispatch.Dispatch, error) {
	return t.GetDispatch(ctx, id)
}

// UpdateDispatch replaces a dispatch header.
func (t *Tx) UpdateDispatch(_ context.Context, d dispatch.Dispatch) error {
	if _, ok := t.state.dispatches[d.ID]; !ok {
		return dispatch.ErrNotFound
	}
	d.UpdatedAt = t.now()
	d.Items = nil
	t.state.dispatches[d.ID] = d
	return nil
}

// ListDispatches returns headers matching filter, newest first.
func (t *Tx) ListDispatches(_ context.Context, f dispatch.ListFilter) ([]dispatch.Dispatch, error) {
	var out []dispatch.Dispatch
	for _, d := range sortedValues(t.state.dispatches) {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.StoreID != 0 && d.SourceStoreID != f.StoreID && d.DestinationStoreID != f.StoreID {
			continue
		}
		out = append(out, d)
	}
	slices.Reverse(out)
	return out, nil
}

// ListDispatchItems returns a dispatch's items in insertion order.
func (t *Tx) ListDispatchItems(_ context.Context, dispatchID int64) ([]dispatch.Item, error) {
	var out []dispatch.Item
	for _, it := range sortedValues(t.state.dispatchItems) {
		if it.DispatchID == dispatchID {
			out = append(out, it)
		}
	}
	return out, nil
}

// InsertDispatchItem stores a line.
func (t *Tx) InsertDispatchItem(_ context.Context, it dispatch.Item) (dispatch.Item, error) {
	it.ID = t.state.id()
	t.state.dispatchItems[it.ID] = it
	return it, nil
}

// UpdateDispatchItem replaces a line.
func (t *Tx) UpdateDispatchItem(_ context.Context, it dispatch.Item) error {
	if err := t.fail("UpdateDispatchItem"); err != nil {
		return err
	}
	if _, ok := t.state.dispatchItems[it.ID]; !ok {
		return dispatch.ErrNotFound
	}
	t.state.dispatchItems[it.ID] = it
	return nil
}

// DeleteDispatchItem removes a line of the dispatch.
func (t *Tx) DeleteDispatchItem(_ context.Context, dispatchID, itemID int64) error {
	it, ok := t.state.dispatchItems[itemID]
	if !ok || it.DispatchID != dispatchID {
		return dispatch.ErrNotFound
	}
	delete(t.state.dispatchItems, itemID)
	return nil
}
