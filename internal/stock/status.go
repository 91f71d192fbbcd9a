package stock

import "github.com/fekuna/omnipos-stock-ledger/internal/model"

// DeriveStatus maps quantity-related fields to the item status. It is pure:
// identical inputs always produce the same status. reservedQuantity is
// accepted but does not affect the result.
func DeriveStatus(quantity, minQuantity, reservedQuantity int64, isActive bool) model.ItemStatus {
	_ = reservedQuantity
	switch {
	case !isActive:
		return model.StatusDiscontinued
	case quantity <= 0:
		return model.StatusOutOfStock
	case quantity <= minQuantity:
		return model.StatusLowStock
	default:
		return model.StatusAvailable
	}
}

// NextStatus is the status item should carry after a mutation. An
// operator-set status survives mutations that leave quantity untouched and
// is overridden by the first one that changes it.
func NextStatus(item *model.Item, quantityChanged bool) model.ItemStatus {
	derived := DeriveStatus(item.Quantity, item.MinQuantity, item.ReservedQuantity, item.IsActive)
	if derived == model.StatusDiscontinued {
		return derived
	}
	if !quantityChanged && item.Status.IsOperatorSet() {
		return item.Status
	}
	return derived
}
