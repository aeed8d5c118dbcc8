// Package memstore is an in-memory transactional store backing every repository port in
// service tests. Transactions run one at a time against a copy of the state that is
// committed only when the callback succeeds.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/dispatch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/rebalancing"
	_ "github.com/odyssey-erp/stockledger/internal/testing/guard"
)

type product struct {
	id          int64
	categoryTax *decimal.Decimal
}

type idempotencyKey struct {
	key, module string
}

type state struct {
	stores        map[int64]batch.Store
	products      map[int64]product
	batches       map[int64]batch.Batch
	units         map[int64]barcode.Unit
	defects       map[int64]barcode.DefectiveProduct
	movements     []movement.Movement
	inventories   map[int64]masterinventory.MasterInventory
	requests      map[int64]rebalancing.Request
	dispatches    map[int64]dispatch.Dispatch
	dispatchItems map[int64]dispatch.Item
	keys          map[idempotencyKey]struct{}
	nextID        int64
}

func newState() *state {
	return &state{
		stores:        make(map[int64]batch.Store),
		products:      make(map[int64]product),
		batches:       make(map[int64]batch.Batch),
		units:         make(map[int64]barcode.Unit),
		defects:       make(map[int64]barcode.DefectiveProduct),
		inventories:   make(map[int64]masterinventory.MasterInventory),
		requests:      make(map[int64]rebalancing.Request),
		dispatches:    make(map[int64]dispatch.Dispatch),
		dispatchItems: make(map[int64]dispatch.Item),
		keys:          make(map[idempotencyKey]struct{}),
	}
}

func (s *state) clone() *state {
	return &state{
		stores:        maps.Clone(s.stores),
		products:      maps.Clone(s.products),
		batches:       maps.Clone(s.batches),
		units:         maps.Clone(s.units),
		defects:       maps.Clone(s.defects),
		movements:     append([]movement.Movement(nil), s.movements...),
		inventories:   maps.Clone(s.inventories),
		requests:      maps.Clone(s.requests),
		dispatches:    maps.Clone(s.dispatches),
		dispatchItems: maps.Clone(s.dispatchItems),
		keys:          maps.Clone(s.keys),
		nextID:        s.nextID,
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store holds committed state.
type Store struct {
	mu       sync.Mutex
	state    *state
	failures map[string]error
	clock    func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state:    newState(),
		failures: make(map[string]error),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes every later call of the named Tx method return err. A nil err clears it.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Atomically runs fn in a serialized transaction. State changes are discarded when fn fails.
func (s *Store) Atomically(ctx context.Context, fn func(context.Context, *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{state: s.state.clone(), failures: s.failures, now: s.clock}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// Tx is one transaction's view of the store.
type Tx struct {
	state    *state
	failures map[string]error
	now      func() time.Time
}

func (t *Tx) fail(method string) error {
	return t.failures[method]
}

// AddStore seeds a store and returns its id.
func (s *Store) AddStore(name string, kind batch.StoreKind, active bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.state.id()
	s.state.stores[id] = batch.Store{ID: id, Name: name, Kind: kind, IsActive: active}
	return id
}

// AddProduct seeds a product whose category carries categoryTax, nil for none.
func (s *Store) AddProduct(categoryTax *decimal.Decimal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.state.id()
	s.state.products[id] = product{id: id, categoryTax: categoryTax}
	return id
}

// AddBatch seeds a batch as given, assigning id and number when unset.
func (s *Store) AddBatch(b batch.Batch) batch.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.state.id()
	if b.BatchNumber == "" {
		b.BatchNumber = batch.NewBatchNumber(s.clock())
	}
	b.CreatedAt = s.clock()
	b.UpdatedAt = b.CreatedAt
	s.state.batches[b.ID] = b
	return b
}

// AddUnit seeds a barcode unit as given.
func (s *Store) AddUnit(u barcode.Unit) barcode.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.state.id()
	u.CreatedAt = s.clock()
	u.UpdatedAt = u.CreatedAt
	s.state.units[u.ID] = u
	return u
}

// SetThresholds seeds the aggregate thresholds for a product.
func (s *Store) SetThresholds(productID int64, t masterinventory.Thresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.state.inventories[productID]
	if !ok {
		inv = masterinventory.MasterInventory{ID: s.state.id(), ProductID: productID, CreatedAt: s.clock()}
	}
	inv.Thresholds = t
	s.state.inventories[productID] = inv
}

// Batch returns the committed batch.
func (s *Store) Batch(id int64) (batch.Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.batches[id]
	return b, ok
}

// BatchesAt returns committed batches of a product held at storeID.
func (s *Store) BatchesAt(productID, storeID int64) []batch.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []batch.Batch
	for _, b := range sortedValues(s.state.batches) {
		if b.ProductID == productID && b.StoreID == storeID {
			out = append(out, b)
		}
	}
	return out
}

// Unit returns the committed unit.
func (s *Store) Unit(id int64) (barcode.Unit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.units[id]
	return u, ok
}

// Units returns committed units of a product ordered by id.
func (s *Store) Units(productID int64) []barcode.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []barcode.Unit
	for _, u := range sortedValues(s.state.units) {
		if u.ProductID == productID {
			out = append(out, u)
		}
	}
	return out
}

// Movements returns every committed movement in insertion order.
func (s *Store) Movements() []movement.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]movement.Movement(nil), s.state.movements...)
}

// Inventory returns the committed aggregate of a product.
func (s *Store) Inventory(productID int64) (masterinventory.MasterInventory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.state.inventories[productID]
	return inv, ok
}
