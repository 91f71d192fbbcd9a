package model

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Reservation is a hold on stock. Its quantity is counted in the item's
// ReservedQuantity while Status is ACTIVE.
type Reservation struct {
	ID        string            `db:"id" json:"id"`
	ItemID    string            `db:"item_id" json:"item_id"`
	TenantID  string            `db:"tenant_id" json:"tenant_id"`
	Quantity  int64             `db:"quantity" json:"quantity"`
	Status    ReservationStatus `db:"status" json:"status"`
	ExpiresAt time.Time         `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}
