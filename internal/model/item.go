package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemStatus string

const (
	StatusAvailable        ItemStatus = "AVAILABLE"
	StatusLowStock         ItemStatus = "LOW_STOCK"
	StatusOutOfStock       ItemStatus = "OUT_OF_STOCK"
	StatusDiscontinued     ItemStatus = "DISCONTINUED"
	StatusUnderMaintenance ItemStatus = "UNDER_MAINTENANCE"
	StatusReserved         ItemStatus = "RESERVED"
	StatusDamaged          ItemStatus = "DAMAGED"
	StatusExpired          ItemStatus = "EXPIRED"
)

// IsOperatorSet reports whether s can only be reached by explicit operator
// action rather than quantity changes.
func (s ItemStatus) IsOperatorSet() bool {
	switch s {
	case StatusUnderMaintenance, StatusReserved, StatusDamaged, StatusExpired:
		return true
	}
	return false
}

type Unit string

const (
	UnitPiece Unit = "PIECE"
	UnitBox   Unit = "BOX"
	UnitPack  Unit = "PACK"
	UnitSet   Unit = "SET"
	UnitPair  Unit = "PAIR"
	UnitKg    Unit = "KG"
	UnitGram  Unit = "GRAM"
	UnitLiter Unit = "LITER"
	UnitMl    Unit = "ML"
	UnitMeter Unit = "METER"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitPiece, UnitBox, UnitPack, UnitSet, UnitPair, UnitKg, UnitGram, UnitLiter, UnitMl, UnitMeter:
		return true
	}
	return false
}

type Item struct {
	ID                  string              `db:"id" json:"id"`
	TenantID            string              `db:"tenant_id" json:"tenant_id"`
	SKU                 string              `db:"sku" json:"sku"`
	Barcode             *string             `db:"barcode" json:"barcode"`
	Name                string              `db:"name" json:"name"`
	Quantity            int64               `db:"quantity" json:"quantity"`
	MinQuantity         int64               `db:"min_quantity" json:"min_quantity"`
	MaxQuantity         *int64              `db:"max_quantity" json:"max_quantity"`
	ReservedQuantity    int64               `db:"reserved_quantity" json:"reserved_quantity"`
	Unit                Unit                `db:"unit" json:"unit"`
	CostPrice           decimal.NullDecimal `db:"cost_price" json:"cost_price"`
	SellingPrice        decimal.NullDecimal `db:"selling_price" json:"selling_price"`
	Status              ItemStatus          `db:"status" json:"status"`
	IsExpirable         bool                `db:"is_expirable" json:"is_expirable"`
	ExpiryDate          *time.Time          `db:"expiry_date" json:"expiry_date"`
	IsMaintainable      bool                `db:"is_maintainable" json:"is_maintainable"`
	NextMaintenanceDate *time.Time          `db:"next_maintenance_date" json:"next_maintenance_date"`
	IsActive            bool                `db:"is_active" json:"is_active"`
	DeletedAt           *time.Time          `db:"deleted_at" json:"deleted_at"`
	Version             int64               `db:"version" json:"version"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

// Available is the quantity not held by reservations.
func (i *Item) Available() int64 {
	return i.Quantity - i.ReservedQuantity
}

// Clone returns a deep copy so stores never share pointers with callers.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	c.Barcode = cloneString(i.Barcode)
	c.MaxQuantity = cloneInt64(i.MaxQuantity)
	c.ExpiryDate = cloneTime(i.ExpiryDate)
	c.NextMaintenanceDate = cloneTime(i.NextMaintenanceDate)
	c.DeletedAt = cloneTime(i.DeletedAt)
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
