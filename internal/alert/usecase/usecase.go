package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/alert"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/fekuna/omnipos-stock-ledger/pkg/metrics"
	"go.uber.org/zap"
)

const DefaultHorizonDays = 30

var errTenantRequired = fmt.Errorf("%w: tenant id is required", stock.ErrInvalidArgument)

type alertUseCase struct {
	repo        alert.Repository
	horizonDays int
	metrics     *metrics.StockMetrics
	logger      logger.ZapLogger
	now         func() time.Time
}

func NewAlertUseCase(repo alert.Repository, horizonDays int, m *metrics.StockMetrics, log logger.ZapLogger) alert.UseCase {
	return newAlertUseCase(repo, horizonDays, m, log)
}

func newAlertUseCase(repo alert.Repository, horizonDays int, m *metrics.StockMetrics, log logger.ZapLogger) *alertUseCase {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &alertUseCase{
		repo:        repo,
		horizonDays: horizonDays,
		metrics:     m,
		logger:      log,
		now:         time.Now,
	}
}

func (uc *alertUseCase) Scan(ctx context.Context, tenantID string, horizonDays int) ([]model.Alert, error) {
	items, err := uc.items(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := uc.now()

	low := lowStock(items)
	expiring := expiring(items, now, uc.horizon(horizonDays))
	due := maintenanceDue(items, now)
	over := overstock(items)

	uc.metrics.SetAlerts(tenantID, string(model.AlertLowStock), len(low))
	uc.metrics.SetAlerts(tenantID, string(model.AlertExpiry), len(expiring))
	uc.metrics.SetAlerts(tenantID, string(model.AlertMaintenance), len(due))
	uc.metrics.SetAlerts(tenantID, string(model.AlertOverstock), len(over))

	alerts := make([]model.Alert, 0, len(low)+len(expiring)+len(due)+len(over))
	alerts = append(alerts, low...)
	alerts = append(alerts, expiring...)
	alerts = append(alerts, due...)
	alerts = append(alerts, over...)

	uc.logger.Debug("alert scan finished",
		zap.String("tenant_id", tenantID),
		zap.Int("items", len(items)),
		zap.Int("alerts", len(alerts)),
	)
	return alerts, nil
}

func (uc *alertUseCase) LowStock(ctx context.Context, tenantID string) ([]model.Alert, error) {
	items, err := uc.items(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return lowStock(items), nil
}

func (uc *alertUseCase) Expiring(ctx context.Context, tenantID string, horizonDays int) ([]model.Alert, error) {
	items, err := uc.items(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return expiring(items, uc.now(), uc.horizon(horizonDays)), nil
}

func (uc *alertUseCase) MaintenanceDue(ctx context.Context, tenantID string) ([]model.Alert, error) {
	items, err := uc.items(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return maintenanceDue(items, uc.now()), nil
}

func (uc *alertUseCase) Overstock(ctx context.Context, tenantID string) ([]model.Alert, error) {
	items, err := uc.items(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return overstock(items), nil
}

func (uc *alertUseCase) items(ctx context.Context, tenantID string) ([]model.Item, error) {
	if tenantID == "" {
		return nil, errTenantRequired
	}
	items, err := uc.repo.ListItems(ctx, &dto.ItemFilters{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (uc *alertUseCase) horizon(days int) int {
	if days <= 0 {
		return uc.horizonDays
	}
	return days
}

func lowStock(items []model.Item) []model.Alert {
	var out []model.Alert
	for _, it := range items {
		if !it.IsActive {
			continue
		}
		if it.Status != model.StatusLowStock && it.Status != model.StatusOutOfStock {
			continue
		}
		severity := model.SeverityHigh
		if it.Quantity == 0 {
			severity = model.SeverityCritical
		}
		out = append(out, newAlert(it, model.AlertLowStock, severity,
			fmt.Sprintf("%s has %d left (minimum %d)", it.Name, it.Quantity, it.MinQuantity)))
	}
	return out
}

func expiring(items []model.Item, now time.Time, horizonDays int) []model.Alert {
	limit := now.AddDate(0, 0, horizonDays)
	var out []model.Alert
	for _, it := range items {
		if !it.IsExpirable || it.ExpiryDate == nil {
			continue
		}
		exp := *it.ExpiryDate
		if exp.Before(now) || exp.After(limit) {
			continue
		}
		days := daysUntil(now, exp)
		severity := model.SeverityMedium
		switch {
		case days <= 7:
			severity = model.SeverityCritical
		case days <= 14:
			severity = model.SeverityHigh
		}
		a := newAlert(it, model.AlertExpiry, severity, fmt.Sprintf("%s expires in %d days", it.Name, days))
		a.DaysRemaining = &days
		a.DueDate = &exp
		out = append(out, a)
	}
	return out
}

func maintenanceDue(items []model.Item, now time.Time) []model.Alert {
	var out []model.Alert
	for _, it := range items {
		if !it.IsMaintainable || !it.IsActive || it.NextMaintenanceDate == nil {
			continue
		}
		due := *it.NextMaintenanceDate
		if due.After(now) {
			continue
		}
		a := newAlert(it, model.AlertMaintenance, model.SeverityHigh, fmt.Sprintf("%s is due for maintenance", it.Name))
		a.DueDate = &due
		out = append(out, a)
	}
	return out
}

func overstock(items []model.Item) []model.Alert {
	var out []model.Alert
	for _, it := range items {
		if !it.IsActive || it.MaxQuantity == nil || it.Quantity <= *it.MaxQuantity {
			continue
		}
		out = append(out, newAlert(it, model.AlertOverstock, model.SeverityMedium,
			fmt.Sprintf("%s has %d on hand (maximum %d)", it.Name, it.Quantity, *it.MaxQuantity)))
	}
	return out
}

// daysUntil counts whole days, rounding a partial day up.
func daysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

func newAlert(it model.Item, kind model.AlertKind, severity model.AlertSeverity, msg string) model.Alert {
	return model.Alert{
		Kind:     kind,
		Severity: severity,
		TenantID: it.TenantID,
		ItemID:   it.ID,
		SKU:      it.SKU,
		Name:     it.Name,
		Quantity: it.Quantity,
		Message:  msg,
	}
}
