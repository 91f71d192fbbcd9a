package dto

import (
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

type ItemFilters struct {
	TenantID       string
	Statuses       []model.ItemStatus
	ActiveOnly     bool
	ExpiringAfter  *time.Time // inclusive
	ExpiringBefore *time.Time // inclusive
}

// LedgerRange bounds created_at, both ends inclusive; nil means open.
type LedgerRange struct {
	From *time.Time
	To   *time.Time
}

func (r LedgerRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}
