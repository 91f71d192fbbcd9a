package stock

import (
	"context"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
)

type UseCase interface {
	// Catalog
	CreateItem(ctx context.Context, input *dto.CreateItemInput) (*model.Item, error)
	GetItem(ctx context.Context, tenantID, itemID string) (*model.Item, error)
	SetOperatorStatus(ctx context.Context, input *dto.SetStatusInput) (*model.Item, error)
	DeactivateItem(ctx context.Context, tenantID, itemID string) (*model.Item, error)

	// Stock movements
	ApplyTransaction(ctx context.Context, input *dto.ApplyTransactionInput) (*model.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, tenantID, itemID string, r dto.LedgerRange) ([]model.LedgerEntry, error)

	// Holds
	Reserve(ctx context.Context, input *dto.ReserveInput) (*model.Reservation, error)
	Release(ctx context.Context, input *dto.ReleaseInput) (*model.Item, error)
	ReleaseReservation(ctx context.Context, tenantID, reservationID string) (*model.Reservation, error)
	ExpireReservation(ctx context.Context, reservationID string) (*model.Reservation, error)
	CommitReservation(ctx context.Context, input *dto.CommitReservationInput) (*model.LedgerEntry, error)

	// Queries
	ListLowStock(ctx context.Context, tenantID string) ([]model.Item, error)
	ListExpiring(ctx context.Context, tenantID string, days int) ([]model.Item, error)
}
