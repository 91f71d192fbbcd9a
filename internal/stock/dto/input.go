package dto

import (
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type CreateItemInput struct {
	TenantID            string
	SKU                 string
	Barcode             string
	Name                string
	Unit                model.Unit
	InitialQuantity     int64
	MinQuantity         int64
	MaxQuantity         *int64
	CostPrice           *decimal.Decimal
	SellingPrice        *decimal.Decimal
	IsExpirable         bool
	ExpiryDate          *time.Time
	IsMaintainable      bool
	NextMaintenanceDate *time.Time
	ActorID             string
}

type ApplyTransactionInput struct {
	TenantID  string
	ItemID    string
	Type      model.TransactionType
	Quantity  int64
	UnitPrice *decimal.Decimal // defaults to the item's cost price
	ActorID   string
	Location  string
	Remarks   string
	// Reference makes the call idempotent per item: a second call with the
	// same reference returns the entry already recorded.
	Reference string
}

type ReserveInput struct {
	TenantID string
	ItemID   string
	Quantity int64
	TTL      time.Duration // zero uses the configured default
}

type ReleaseInput struct {
	TenantID string
	ItemID   string
	Quantity int64
}

type CommitReservationInput struct {
	TenantID      string
	ReservationID string
	ActorID       string
	Location      string
	Remarks       string
}

type SetStatusInput struct {
	TenantID string
	ItemID   string
	Status   model.ItemStatus
}
