package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
)

// MemoryRepository keeps items, ledger and holds in process memory. It
// enforces the same version check and row constraints as the Postgres schema.
type MemoryRepository struct {
	mu           sync.RWMutex
	items        map[string]*model.Item
	ledger       map[string][]model.LedgerEntry
	reservations map[string]*model.Reservation
	resOrder     map[string]uint64
	seq          uint64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:        make(map[string]*model.Item),
		ledger:       make(map[string][]model.LedgerEntry),
		reservations: make(map[string]*model.Reservation),
		resOrder:     make(map[string]uint64),
	}
}

func (r *MemoryRepository) GetItem(_ context.Context, id string) (*model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, stock.ErrItemNotFound
	}
	return item.Clone(), nil
}

func (r *MemoryRepository) ListItems(_ context.Context, f *dto.ItemFilters) ([]model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[model.ItemStatus]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses[s] = true
	}

	items := []model.Item{}
	for _, it := range r.items {
		if f.TenantID != "" && it.TenantID != f.TenantID {
			continue
		}
		if len(statuses) > 0 && !statuses[it.Status] {
			continue
		}
		if f.ActiveOnly && !it.IsActive {
			continue
		}
		if f.ExpiringAfter != nil || f.ExpiringBefore != nil {
			if !it.IsExpirable || it.ExpiryDate == nil {
				continue
			}
			if f.ExpiringAfter != nil && it.ExpiryDate.Before(*f.ExpiringAfter) {
				continue
			}
			if f.ExpiringBefore != nil && it.ExpiryDate.After(*f.ExpiringBefore) {
				continue
			}
		}
		items = append(items, *it.Clone())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, nil
}

func (r *MemoryRepository) IsSKUUnique(_ context.Context, tenantID, sku string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.TenantID == tenantID && it.SKU == sku {
			return false, nil
		}
	}
	return true, nil
}

func (r *MemoryRepository) IsBarcodeUnique(_ context.Context, tenantID, barcode string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.TenantID == tenantID && it.Barcode != nil && *it.Barcode == barcode {
			return false, nil
		}
	}
	return true, nil
}

func (r *MemoryRepository) CreateItem(_ context.Context, item *model.Item, entry *model.LedgerEntry) error {
	if err := checkItem(item); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; ok {
		return stock.ErrDuplicateItem
	}
	for _, it := range r.items {
		if it.TenantID != item.TenantID {
			continue
		}
		if it.SKU == item.SKU {
			return stock.ErrDuplicateItem
		}
		if item.Barcode != nil && it.Barcode != nil && *it.Barcode == *item.Barcode {
			return stock.ErrDuplicateItem
		}
	}

	r.items[item.ID] = item.Clone()
	if entry != nil {
		r.ledger[item.ID] = append(r.ledger[item.ID], *entry)
	}
	return nil
}

func (r *MemoryRepository) CASUpdateItem(_ context.Context, m *stock.Mutation) error {
	if err := checkItem(m.Item); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[m.Item.ID]
	if !ok {
		return stock.ErrItemNotFound
	}
	if stored.Version != m.ExpectedVersion {
		return stock.ErrVersionConflict
	}
	if m.Entry != nil && m.Entry.Reference != nil {
		for _, e := range r.ledger[m.Item.ID] {
			if e.Reference != nil && *e.Reference == *m.Entry.Reference {
				return stock.ErrVersionConflict
			}
		}
	}
	holds := m.Holds
	if m.Reservation != nil {
		holds = append([]*model.Reservation{m.Reservation}, holds...)
	}
	for _, h := range holds {
		if h.Quantity <= 0 {
			return fmt.Errorf("%w: reservation %s quantity %d <= 0", stock.ErrConstraintViolation, h.ID, h.Quantity)
		}
	}

	r.items[m.Item.ID] = m.Item.Clone()
	if m.Entry != nil {
		r.ledger[m.Item.ID] = append(r.ledger[m.Item.ID], *m.Entry)
	}
	for _, h := range holds {
		res := *h
		if _, ok := r.resOrder[res.ID]; !ok {
			r.seq++
			r.resOrder[res.ID] = r.seq
		}
		r.reservations[res.ID] = &res
	}
	return nil
}

func (r *MemoryRepository) ListLedgerEntries(_ context.Context, itemID string, rng dto.LedgerRange) ([]model.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := []model.LedgerEntry{}
	for _, e := range r.ledger[itemID] {
		if rng.Contains(e.CreatedAt) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ItemVersion < entries[j].ItemVersion })
	return entries, nil
}

func (r *MemoryRepository) GetLedgerEntryByReference(_ context.Context, itemID, reference string) (*model.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.ledger[itemID] {
		if e.Reference != nil && *e.Reference == reference {
			out := e
			return &out, nil
		}
	}
	return nil, stock.ErrEntryNotFound
}

func (r *MemoryRepository) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, stock.ErrReservationNotFound
	}
	out := *res
	return &out, nil
}

func (r *MemoryRepository) ListActiveReservations(_ context.Context, itemID string) ([]model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Reservation{}
	for _, res := range r.reservations {
		if res.ItemID == itemID && res.Status == model.ReservationActive {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return r.resOrder[out[i].ID] < r.resOrder[out[j].ID]
	})
	return out, nil
}

func (r *MemoryRepository) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Reservation{}
	for _, res := range r.reservations {
		if res.Status == model.ReservationActive && !res.ExpiresAt.After(now) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// checkItem mirrors the table CHECK constraints.
func checkItem(item *model.Item) error {
	if item.Quantity < 0 {
		return fmt.Errorf("%w: quantity %d < 0", stock.ErrConstraintViolation, item.Quantity)
	}
	if item.ReservedQuantity < 0 || item.ReservedQuantity > item.Quantity {
		return fmt.Errorf("%w: reserved %d outside [0, %d]", stock.ErrConstraintViolation, item.ReservedQuantity, item.Quantity)
	}
	return nil
}

var _ stock.Repository = (*MemoryRepository)(nil)
