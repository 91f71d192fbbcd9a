package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/analytics"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const turnoverConcurrency = 8

type analyticsUseCase struct {
	repo   analytics.Repository
	logger logger.ZapLogger
	now    func() time.Time
}

func NewAnalyticsUseCase(repo analytics.Repository, log logger.ZapLogger) analytics.UseCase {
	return &analyticsUseCase{repo: repo, logger: log, now: time.Now}
}

func (uc *analyticsUseCase) GetValuation(ctx context.Context, tenantID string) (*model.Valuation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", stock.ErrInvalidArgument)
	}
	items, err := uc.repo.ListItems(ctx, &dto.ItemFilters{TenantID: tenantID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stock.ErrStoreUnavailable, err)
	}

	v := &model.Valuation{TenantID: tenantID, TotalValue: decimal.Zero}
	for _, it := range items {
		// Items without a cost price contribute units but no value.
		v.TotalValue = v.TotalValue.Add(it.CostPrice.Decimal.Mul(decimal.NewFromInt(it.Quantity)))
		v.TotalUnits += it.Quantity
		v.ItemCount++
	}
	return v, nil
}

func (uc *analyticsUseCase) GetTurnover(ctx context.Context, tenantID, itemID string, windowDays int) (*model.Turnover, error) {
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", stock.ErrInvalidArgument)
	}
	if windowDays <= 0 {
		return nil, fmt.Errorf("%w: window days must be positive", stock.ErrInvalidArgument)
	}
	item, err := uc.repo.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, stock.ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", stock.ErrStoreUnavailable, err)
	}
	if tenantID != "" && item.TenantID != tenantID {
		return nil, stock.ErrItemNotFound
	}
	return uc.turnover(ctx, itemID, windowDays, uc.now())
}

func (uc *analyticsUseCase) GetTenantTurnover(ctx context.Context, tenantID string, windowDays int) (*model.TenantTurnover, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", stock.ErrInvalidArgument)
	}
	if windowDays <= 0 {
		return nil, fmt.Errorf("%w: window days must be positive", stock.ErrInvalidArgument)
	}
	items, err := uc.repo.ListItems(ctx, &dto.ItemFilters{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stock.ErrStoreUnavailable, err)
	}

	now := uc.now()
	results := make([]model.Turnover, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(turnoverConcurrency)
	for i := range items {
		g.Go(func() error {
			t, err := uc.turnover(gctx, items[i].ID, windowDays, now)
			if err != nil {
				return err
			}
			results[i] = *t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &model.TenantTurnover{TenantID: tenantID, WindowDays: windowDays, Items: results}
	var sum float64
	for _, t := range results {
		if t.Rate == 0 {
			continue
		}
		sum += t.Rate
		out.ItemsCounted++
	}
	if out.ItemsCounted > 0 {
		out.AverageRate = sum / float64(out.ItemsCounted)
	}

	uc.logger.Debug("tenant turnover computed",
		zap.String("tenant_id", tenantID),
		zap.Int("items", len(items)),
		zap.Int("counted", out.ItemsCounted),
	)
	return out, nil
}

// turnover = sold / ((sold + purchased) / 2) over [now-windowDays, now],
// and 0 when nothing moved.
func (uc *analyticsUseCase) turnover(ctx context.Context, itemID string, windowDays int, now time.Time) (*model.Turnover, error) {
	start := now.AddDate(0, 0, -windowDays)
	entries, err := uc.repo.ListLedgerEntries(ctx, itemID, dto.LedgerRange{From: &start, To: &now})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stock.ErrStoreUnavailable, err)
	}

	t := &model.Turnover{ItemID: itemID, WindowStart: start, WindowEnd: now}
	for _, e := range entries {
		switch e.Type {
		case model.TxSale:
			t.TotalSold += -e.QuantityDelta
		case model.TxPurchase:
			t.TotalPurchased += e.QuantityDelta
		}
	}
	t.AverageStock = float64(t.TotalSold+t.TotalPurchased) / 2
	if t.AverageStock > 0 {
		t.Rate = float64(t.TotalSold) / t.AverageStock
	}
	return t, nil
}
