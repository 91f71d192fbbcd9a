package stock

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
)

// Mutation is one atomic unit of work against the store: the new item state,
// guarded by ExpectedVersion, plus an optional ledger entry and reservation.
// Holds lists other reservations of the item shrunk or closed by the change.
type Mutation struct {
	Item            *model.Item
	ExpectedVersion int64
	Entry           *model.LedgerEntry
	Reservation     *model.Reservation
	Holds           []*model.Reservation
}

type Repository interface {
	// Items
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context, filters *dto.ItemFilters) ([]model.Item, error)
	IsSKUUnique(ctx context.Context, tenantID, sku string) (bool, error)
	IsBarcodeUnique(ctx context.Context, tenantID, barcode string) (bool, error)
	CreateItem(ctx context.Context, item *model.Item, entry *model.LedgerEntry) error

	// CASUpdateItem persists m as a single atomic unit. It returns
	// ErrVersionConflict, and changes nothing, when the stored item version
	// differs from m.ExpectedVersion.
	CASUpdateItem(ctx context.Context, m *Mutation) error

	// Ledger
	ListLedgerEntries(ctx context.Context, itemID string, r dto.LedgerRange) ([]model.LedgerEntry, error)
	GetLedgerEntryByReference(ctx context.Context, itemID, reference string) (*model.LedgerEntry, error)

	// Reservations
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// ListActiveReservations returns the item's ACTIVE holds, oldest first.
	ListActiveReservations(ctx context.Context, itemID string) ([]model.Reservation, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
}
