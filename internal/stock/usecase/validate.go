package usecase

import (
	"fmt"

	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
)

func validateCreateItem(in *dto.CreateItemInput) error {
	switch {
	case in.TenantID == "":
		return invalid("tenant id is required")
	case in.SKU == "":
		return invalid("sku is required")
	case in.Name == "":
		return invalid("name is required")
	case !in.Unit.Valid():
		return invalid(fmt.Sprintf("unknown unit %q", in.Unit))
	case in.InitialQuantity < 0:
		return invalid("initial quantity cannot be negative")
	case in.MinQuantity < 0:
		return invalid("min quantity cannot be negative")
	case in.MaxQuantity != nil && *in.MaxQuantity < in.MinQuantity:
		return invalid("max quantity is below min quantity")
	case in.CostPrice != nil && in.CostPrice.IsNegative():
		return invalid("cost price cannot be negative")
	case in.SellingPrice != nil && in.SellingPrice.IsNegative():
		return invalid("selling price cannot be negative")
	case in.IsExpirable && in.ExpiryDate == nil:
		return invalid("expirable items need an expiry date")
	case in.IsMaintainable && in.NextMaintenanceDate == nil:
		return invalid("maintainable items need a next maintenance date")
	}
	return nil
}

func validateTransaction(in *dto.ApplyTransactionInput) error {
	if in.ItemID == "" {
		return invalid("item id is required")
	}
	if !in.Type.Valid() {
		return invalid(fmt.Sprintf("unknown transaction type %q", in.Type))
	}
	if in.Type.IsInbound() || in.Type.IsOutbound() {
		if in.Quantity <= 0 {
			return invalid("quantity must be positive")
		}
	} else if in.Quantity < 0 {
		return invalid("adjusted quantity cannot be negative")
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return invalid("unit price cannot be negative")
	}
	return nil
}
