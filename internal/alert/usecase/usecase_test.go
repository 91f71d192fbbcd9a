package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/fekuna/omnipos-stock-ledger/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type fakeRepo struct {
	items []model.Item
	err   error
}

func (f *fakeRepo) ListItems(_ context.Context, filters *dto.ItemFilters) ([]model.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Item
	for _, it := range f.items {
		if it.TenantID == filters.TenantID {
			out = append(out, it)
		}
	}
	return out, nil
}

func item(id string, mutate func(*model.Item)) model.Item {
	it := model.Item{
		ID:          id,
		TenantID:    "t1",
		SKU:         id,
		Name:        id,
		Quantity:    50,
		MinQuantity: 5,
		Status:      model.StatusAvailable,
		IsActive:    true,
	}
	if mutate != nil {
		mutate(&it)
	}
	return it
}

func at(days float64) *time.Time {
	t := now.Add(time.Duration(days * 24 * float64(time.Hour)))
	return &t
}

func newTestAlerts(items []model.Item, m *metrics.StockMetrics) *alertUseCase {
	uc := newAlertUseCase(&fakeRepo{items: items}, 0, m, logger.NewNop())
	uc.now = func() time.Time { return now }
	return uc
}

func TestLowStock(t *testing.T) {
	uc := newTestAlerts([]model.Item{
		item("ok", nil),
		item("low", func(it *model.Item) { it.Quantity = 3; it.Status = model.StatusLowStock }),
		item("out", func(it *model.Item) { it.Quantity = 0; it.Status = model.StatusOutOfStock }),
		item("gone", func(it *model.Item) { it.Quantity = 0; it.Status = model.StatusOutOfStock; it.IsActive = false }),
	}, nil)

	alerts, err := uc.LowStock(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "low", alerts[0].ItemID)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "out", alerts[1].ItemID)
	assert.Equal(t, model.SeverityCritical, alerts[1].Severity)
}

func TestExpiring(t *testing.T) {
	expirable := func(days float64) func(*model.Item) {
		return func(it *model.Item) {
			it.IsExpirable = true
			it.ExpiryDate = at(days)
		}
	}
	uc := newTestAlerts([]model.Item{
		item("past", expirable(-1)),
		item("d3", expirable(3)),
		item("d7", expirable(7)),
		item("d10", expirable(10)),
		item("d14", expirable(14)),
		item("d20", expirable(20)),
		item("d45", expirable(45)),
		item("no-date", func(it *model.Item) { it.IsExpirable = true }),
	}, nil)

	alerts, err := uc.Expiring(context.Background(), "t1", 0)
	require.NoError(t, err)

	got := map[string]model.AlertSeverity{}
	for _, a := range alerts {
		got[a.ItemID] = a.Severity
		require.NotNil(t, a.DaysRemaining)
	}
	assert.Equal(t, map[string]model.AlertSeverity{
		"d3":  model.SeverityCritical,
		"d7":  model.SeverityCritical,
		"d10": model.SeverityHigh,
		"d14": model.SeverityHigh,
		"d20": model.SeverityMedium,
	}, got)

	alerts, err = uc.Expiring(context.Background(), "t1", 60)
	require.NoError(t, err)
	assert.Len(t, alerts, 6)
}

func TestMaintenanceDue(t *testing.T) {
	maintainable := func(days float64, active bool) func(*model.Item) {
		return func(it *model.Item) {
			it.IsMaintainable = true
			it.NextMaintenanceDate = at(days)
			it.IsActive = active
		}
	}
	uc := newTestAlerts([]model.Item{
		item("overdue", maintainable(-3, true)),
		item("today", maintainable(0, true)),
		item("later", maintainable(2, true)),
		item("retired", maintainable(-3, false)),
	}, nil)

	alerts, err := uc.MaintenanceDue(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "overdue", alerts[0].ItemID)
	assert.Equal(t, "today", alerts[1].ItemID)
}

func TestOverstock(t *testing.T) {
	ceiling := int64(40)
	uc := newTestAlerts([]model.Item{
		item("over", func(it *model.Item) { it.MaxQuantity = &ceiling }),
		item("at", func(it *model.Item) { it.Quantity = 40; it.MaxQuantity = &ceiling }),
		item("unbounded", nil),
	}, nil)

	alerts, err := uc.Overstock(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "over", alerts[0].ItemID)
	assert.Equal(t, model.SeverityMedium, alerts[0].Severity)
}

func TestScan(t *testing.T) {
	m := metrics.NewStockMetrics("test")
	uc := newTestAlerts([]model.Item{
		item("low", func(it *model.Item) { it.Quantity = 0; it.Status = model.StatusOutOfStock }),
		item("exp", func(it *model.Item) { it.IsExpirable = true; it.ExpiryDate = at(2) }),
		item("svc", func(it *model.Item) { it.IsMaintainable = true; it.NextMaintenanceDate = at(-1) }),
		item("other-tenant", func(it *model.Item) { it.TenantID = "t2"; it.Status = model.StatusLowStock }),
	}, m)

	alerts, err := uc.Scan(context.Background(), "t1", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, model.AlertLowStock, alerts[0].Kind)
	assert.Equal(t, model.AlertExpiry, alerts[1].Kind)
	assert.Equal(t, model.AlertMaintenance, alerts[2].Kind)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Alerts.WithLabelValues("t1", "LOW_STOCK")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Alerts.WithLabelValues("t1", "OVERSTOCK")))
}

func TestScan_Errors(t *testing.T) {
	uc := newTestAlerts(nil, nil)
	_, err := uc.Scan(context.Background(), "", 0)
	assert.ErrorIs(t, err, stock.ErrInvalidArgument)

	uc.repo = &fakeRepo{err: errors.New("db down")}
	_, err = uc.Scan(context.Background(), "t1", 0)
	assert.Error(t, err)
}
