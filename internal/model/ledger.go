package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxPurchase   TransactionType = "PURCHASE"
	TxSale       TransactionType = "SALE"
	TxReturn     TransactionType = "RETURN"
	TxDamage     TransactionType = "DAMAGE"
	TxLoss       TransactionType = "LOSS"
	TxExpiry     TransactionType = "EXPIRY"
	TxAdjustment TransactionType = "ADJUSTMENT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxPurchase, TxSale, TxReturn, TxDamage, TxLoss, TxExpiry, TxAdjustment:
		return true
	}
	return false
}

// IsInbound reports types that add stock.
func (t TransactionType) IsInbound() bool {
	return t == TxPurchase || t == TxReturn
}

// IsOutbound reports types that remove stock and can run short.
func (t TransactionType) IsOutbound() bool {
	switch t {
	case TxSale, TxDamage, TxLoss, TxExpiry:
		return true
	}
	return false
}

// LedgerEntry is immutable once appended.
type LedgerEntry struct {
	ID               string          `db:"id" json:"id"`
	ItemID           string          `db:"item_id" json:"item_id"`
	TenantID         string          `db:"tenant_id" json:"tenant_id"`
	Type             TransactionType `db:"type" json:"type"`
	QuantityDelta    int64           `db:"quantity_delta" json:"quantity_delta"`
	PreviousQuantity int64           `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int64           `db:"new_quantity" json:"new_quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	ActorID          string          `db:"actor_id" json:"actor_id"`
	Location         *string         `db:"location" json:"location"`
	Remarks          *string         `db:"remarks" json:"remarks"`
	Reference        *string         `db:"reference" json:"reference,omitempty"`
	ItemVersion      int64           `db:"item_version" json:"item_version"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
