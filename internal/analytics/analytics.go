package analytics

import (
	"context"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
)

// Repository is the read-only slice of the item and ledger stores the
// aggregator consumes.
type Repository interface {
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context, filters *dto.ItemFilters) ([]model.Item, error)
	ListLedgerEntries(ctx context.Context, itemID string, r dto.LedgerRange) ([]model.LedgerEntry, error)
}

type UseCase interface {
	GetValuation(ctx context.Context, tenantID string) (*model.Valuation, error)
	GetTurnover(ctx context.Context, tenantID, itemID string, windowDays int) (*model.Turnover, error)
	GetTenantTurnover(ctx context.Context, tenantID string, windowDays int) (*model.TenantTurnover, error)
}
