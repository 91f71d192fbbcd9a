package alert

import (
	"context"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
)

// Repository is the read side of the item store the scanner needs.
type Repository interface {
	ListItems(ctx context.Context, filters *dto.ItemFilters) ([]model.Item, error)
}

type UseCase interface {
	// Scan runs every check against one snapshot of the tenant's items.
	// horizonDays <= 0 uses the configured default expiry horizon.
	Scan(ctx context.Context, tenantID string, horizonDays int) ([]model.Alert, error)
	LowStock(ctx context.Context, tenantID string) ([]model.Alert, error)
	Expiring(ctx context.Context, tenantID string, horizonDays int) ([]model.Alert, error)
	MaintenanceDue(ctx context.Context, tenantID string) ([]model.Alert, error)
	Overstock(ctx context.Context, tenantID string) ([]model.Alert, error)
}
