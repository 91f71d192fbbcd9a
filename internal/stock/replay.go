package stock

import (
	"fmt"
	"sort"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

// ReplayQuantity rebuilds an item's quantity from its ledger starting at 0.
// Entries are applied in item-version order; every entry must continue from
// the quantity the previous one left.
func ReplayQuantity(entries []model.LedgerEntry) (int64, error) {
	sorted := make([]model.LedgerEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ItemVersion < sorted[j].ItemVersion
	})

	var qty int64
	for _, e := range sorted {
		if e.PreviousQuantity != qty {
			return 0, fmt.Errorf("ledger gap at entry %s: expected previous %d, got %d", e.ID, qty, e.PreviousQuantity)
		}
		if e.NewQuantity != e.PreviousQuantity+e.QuantityDelta {
			return 0, fmt.Errorf("ledger entry %s is inconsistent", e.ID)
		}
		qty = e.NewQuantity
	}
	return qty, nil
}
