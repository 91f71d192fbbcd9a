package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-ledger/pkg/cache"
	"github.com/fekuna/omnipos-stock-ledger/pkg/lock"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/fekuna/omnipos-stock-ledger/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts    = 5
	defaultRetryBackoff   = 10 * time.Millisecond
	defaultReservationTTL = 15 * time.Minute
	defaultCacheTTL       = 5 * time.Minute
	defaultCacheRedelete  = 500 * time.Millisecond
	systemActor           = "system"
)

// errAlreadyRecorded stops a mutation whose reference is already in the ledger.
var errAlreadyRecorded = errors.New("already recorded")

type Config struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	ReservationTTL time.Duration
	CacheTTL       time.Duration
	// CacheRedelete is how long after a mutation its cache keys are deleted
	// a second time.
	CacheRedelete  time.Duration
}

// EventPublisher receives every committed ledger entry, keyed by item id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Deps are optional collaborators. A nil Locker falls back to an in-process
// keyed mutex; nil Cache, Publisher and Metrics disable those concerns.
type Deps struct {
	Locker    lock.Locker
	Cache     cache.Cache
	Publisher EventPublisher
	Metrics   *metrics.StockMetrics
}

type stockUseCase struct {
	repo      stock.Repository
	locker    lock.Locker
	items     *cache.ReadThrough[*model.Item]
	lists     *cache.ReadThrough[[]model.Item]
	publisher EventPublisher
	metrics   *metrics.StockMetrics
	tracer    trace.Tracer
	logger    logger.ZapLogger
	cfg       Config
	now       func() time.Time
}

func NewStockUseCase(repo stock.Repository, deps Deps, cfg Config, log logger.ZapLogger) stock.UseCase {
	return newStockUseCase(repo, deps, cfg, log)
}

func newStockUseCase(repo stock.Repository, deps Deps, cfg Config, log logger.ZapLogger) *stockUseCase {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = defaultReservationTTL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheRedelete <= 0 {
		cfg.CacheRedelete = defaultCacheRedelete
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}

	uc := &stockUseCase{
		repo:      repo,
		locker:    locker,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		tracer:    otel.Tracer("github.com/fekuna/omnipos-stock-ledger/internal/stock"),
		logger:    log,
		cfg:       cfg,
		now:       time.Now,
	}
	if deps.Cache != nil {
		uc.items = cache.NewReadThrough[*model.Item](deps.Cache, cfg.CacheTTL, log).WithRedelete(cfg.CacheRedelete)
		uc.lists = cache.NewReadThrough[[]model.Item](deps.Cache, cfg.CacheTTL, log).WithRedelete(cfg.CacheRedelete)
	}
	return uc
}

// ---------------------------------------------------------------------------
// Catalog

func (uc *stockUseCase) CreateItem(ctx context.Context, input *dto.CreateItemInput) (item *model.Item, err error) {
	ctx, finish := uc.begin(ctx, "create_item", attribute.String("tenant.id", input.TenantID))
	defer func() { finish(err) }()

	if err := validateCreateItem(input); err != nil {
		return nil, err
	}

	unique, err := uc.repo.IsSKUUnique(ctx, input.TenantID, input.SKU)
	if err != nil {
		return nil, storeErr(err)
	}
	if !unique {
		return nil, fmt.Errorf("%w: sku %q", stock.ErrDuplicateItem, input.SKU)
	}
	if input.Barcode != "" {
		unique, err := uc.repo.IsBarcodeUnique(ctx, input.TenantID, input.Barcode)
		if err != nil {
			return nil, storeErr(err)
		}
		if !unique {
			return nil, fmt.Errorf("%w: barcode %q", stock.ErrDuplicateItem, input.Barcode)
		}
	}

	now := uc.now()
	item = &model.Item{
		ID:                  uuid.New().String(),
		TenantID:            input.TenantID,
		SKU:                 input.SKU,
		Name:                input.Name,
		Quantity:            input.InitialQuantity,
		MinQuantity:         input.MinQuantity,
		MaxQuantity:         input.MaxQuantity,
		Unit:                input.Unit,
		IsExpirable:         input.IsExpirable,
		ExpiryDate:          input.ExpiryDate,
		IsMaintainable:      input.IsMaintainable,
		NextMaintenanceDate: input.NextMaintenanceDate,
		IsActive:            true,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if input.Barcode != "" {
		barcode := input.Barcode
		item.Barcode = &barcode
	}
	if input.CostPrice != nil {
		item.CostPrice = decimal.NullDecimal{Decimal: *input.CostPrice, Valid: true}
	}
	if input.SellingPrice != nil {
		item.SellingPrice = decimal.NullDecimal{Decimal: *input.SellingPrice, Valid: true}
	}
	item.Status = stock.DeriveStatus(item.Quantity, item.MinQuantity, item.ReservedQuantity, item.IsActive)

	// Opening stock goes through the ledger so replay from zero stays exact.
	var entry *model.LedgerEntry
	if item.Quantity > 0 {
		entry = uc.newEntry(item, model.TxPurchase, 0, item.Quantity, item.CostPrice.Decimal, actorOrSystem(input.ActorID), "", "Opening balance")
		entry.ItemVersion = item.Version
	}

	if err := uc.repo.CreateItem(ctx, item, entry); err != nil {
		if errors.Is(err, stock.ErrDuplicateItem) {
			return nil, err
		}
		return nil, storeErr(err)
	}

	uc.invalidate(ctx, item)
	if entry != nil {
		uc.publish(ctx, entry)
	}
	uc.logger.Info("stock item created",
		zap.String("item_id", item.ID),
		zap.String("tenant_id", item.TenantID),
		zap.String("sku", item.SKU),
		zap.Int64("quantity", item.Quantity),
	)
	return item, nil
}

func (uc *stockUseCase) GetItem(ctx context.Context, tenantID, itemID string) (*model.Item, error) {
	if itemID == "" {
		return nil, invalid("item id is required")
	}

	item, err := uc.items.Get(ctx, itemKey(itemID), func(ctx context.Context) (*model.Item, error) {
		return uc.repo.GetItem(ctx, itemID)
	})
	if err != nil {
		if errors.Is(err, stock.ErrItemNotFound) {
			return nil, err
		}
		return nil, storeErr(err)
	}
	if tenantID != "" && item.TenantID != tenantID {
		return nil, stock.ErrItemNotFound
	}
	return item, nil
}

func (uc *stockUseCase) SetOperatorStatus(ctx context.Context, input *dto.SetStatusInput) (item *model.Item, err error) {
	ctx, finish := uc.begin(ctx, "set_status", attribute.String("item.id", input.ItemID))
	defer func() { finish(err) }()

	if input.ItemID == "" {
		return nil, invalid("item id is required")
	}
	switch {
	case input.Status.IsOperatorSet():
	case input.Status == model.StatusAvailable, input.Status == model.StatusLowStock, input.Status == model.StatusOutOfStock:
		// Any quantity-driven status clears the override; the deriver decides which.
	default:
		return nil, invalid(fmt.Sprintf("status %q cannot be set by an operator", input.Status))
	}

	m, err := uc.mutate(ctx, "set_status", input.TenantID, input.ItemID, func(item *model.Item) (*stock.Mutation, error) {
		if !item.IsActive {
			return nil, invalid("item is discontinued")
		}
		if input.Status.IsOperatorSet() {
			item.Status = input.Status
		} else {
			item.Status = stock.DeriveStatus(item.Quantity, item.MinQuantity, item.ReservedQuantity, item.IsActive)
		}
		return &stock.Mutation{Item: item}, nil
	})
	if err != nil {
		return nil, err
	}
	return m.Item, nil
}

func (uc *stockUseCase) DeactivateItem(ctx context.Context, tenantID, itemID string) (item *model.Item, err error) {
	ctx, finish := uc.begin(ctx, "deactivate", attribute.String("item.id", itemID))
	defer func() { finish(err) }()

	if itemID == "" {
		return nil, invalid("item id is required")
	}

	m, err := uc.mutate(ctx, "deactivate", tenantID, itemID, func(item *model.Item) (*stock.Mutation, error) {
		if !item.IsActive {
			return &stock.Mutation{Item: item}, nil
		}
		now := uc.now()
		item.IsActive = false
		item.DeletedAt = &now
		item.Status = stock.NextStatus(item, false)
		return &stock.Mutation{Item: item}, nil
	})
	if err != nil {
		return nil, err
	}
	return m.Item, nil
}

// ---------------------------------------------------------------------------
// Stock movements

func (uc *stockUseCase) ApplyTransaction(ctx context.Context, input *dto.ApplyTransactionInput) (entry *model.LedgerEntry, err error) {
	ctx, finish := uc.begin(ctx, "apply_transaction",
		attribute.String("item.id", input.ItemID),
		attribute.String("tx.type", string(input.Type)),
		attribute.Int64("tx.quantity", input.Quantity),
	)
	defer func() { finish(err) }()

	if err := validateTransaction(input); err != nil {
		return nil, err
	}

	var recorded *model.LedgerEntry
	m, err := uc.mutate(ctx, "apply_transaction", input.TenantID, input.ItemID, func(item *model.Item) (*stock.Mutation, error) {
		if input.Reference != "" {
			e, err := uc.repo.GetLedgerEntryByReference(ctx, item.ID, input.Reference)
			switch {
			case err == nil:
				recorded = e
				return nil, errAlreadyRecorded
			case !errors.Is(err, stock.ErrEntryNotFound):
				return nil, storeErr(err)
			}
		}

		prev := item.Quantity
		var next int64
		switch {
		case input.Type.IsInbound():
			if prev > math.MaxInt64-input.Quantity {
				return nil, invalid(fmt.Sprintf("quantity %d would overflow stock on hand %d", input.Quantity, prev))
			}
			next = prev + input.Quantity
		case input.Type.IsOutbound():
			if input.Quantity > prev {
				return nil, fmt.Errorf("%w: requested %d, on hand %d", stock.ErrInsufficientStock, input.Quantity, prev)
			}
			next = prev - input.Quantity
		default: // ADJUSTMENT sets the quantity outright
			next = input.Quantity
		}

		price := item.CostPrice.Decimal
		if input.UnitPrice != nil {
			price = *input.UnitPrice
		}

		holds, err := uc.releaseHolds(ctx, item.ID, "", item.ReservedQuantity-next)
		if err != nil {
			return nil, err
		}
		item.Quantity = next
		uc.clampReserved(item)
		item.Status = stock.NextStatus(item, true)

		entry := uc.newEntry(item, input.Type, prev, next, price, actorOrSystem(input.ActorID), input.Location, input.Remarks)
		if input.Reference != "" {
			ref := input.Reference
			entry.Reference = &ref
		}
		return &stock.Mutation{Item: item, Entry: entry, Holds: holds}, nil
	})
	if errors.Is(err, errAlreadyRecorded) {
		uc.logger.Info("transaction already recorded",
			zap.String("item_id", input.ItemID), zap.String("reference", input.Reference))
		return recorded, nil
	}
	if err != nil {
		return nil, err
	}

	uc.metrics.Moved(string(input.Type), m.Entry.QuantityDelta)
	uc.publish(ctx, m.Entry)
	return m.Entry, nil
}

func (uc *stockUseCase) ListLedgerEntries(ctx context.Context, tenantID, itemID string, r dto.LedgerRange) ([]model.LedgerEntry, error) {
	if itemID == "" {
		return nil, invalid("item id is required")
	}
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return nil, invalid("range start is after range end")
	}
	if tenantID != "" {
		if _, err := uc.GetItem(ctx, tenantID, itemID); err != nil {
			return nil, err
		}
	}
	entries, err := uc.repo.ListLedgerEntries(ctx, itemID, r)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Holds

func (uc *stockUseCase) Reserve(ctx context.Context, input *dto.ReserveInput) (res *model.Reservation, err error) {
	ctx, finish := uc.begin(ctx, "reserve",
		attribute.String("item.id", input.ItemID),
		attribute.Int64("reserve.quantity", input.Quantity),
	)
	defer func() { finish(err) }()

	if input.ItemID == "" {
		return nil, invalid("item id is required")
	}
	if input.Quantity <= 0 {
		return nil, invalid("quantity must be positive")
	}
	if input.TTL < 0 {
		return nil, invalid("ttl cannot be negative")
	}
	ttl := input.TTL
	if ttl == 0 {
		ttl = uc.cfg.ReservationTTL
	}

	m, err := uc.mutate(ctx, "reserve", input.TenantID, input.ItemID, func(item *model.Item) (*stock.Mutation, error) {
		if !item.IsActive {
			return nil, invalid("item is discontinued")
		}
		if item.Available() < input.Quantity {
			return nil, fmt.Errorf("%w: requested %d, available %d",
				stock.ErrInsufficientAvailableStock, input.Quantity, item.Available())
		}
		item.ReservedQuantity += input.Quantity
		item.Status = stock.NextStatus(item, false)

		now := uc.now()
		return &stock.Mutation{
			Item: item,
			Reservation: &model.Reservation{
				ID:        uuid.New().String(),
				ItemID:    item.ID,
				TenantID:  item.TenantID,
				Quantity:  input.Quantity,
				Status:    model.ReservationActive,
				ExpiresAt: now.Add(ttl),
				CreatedAt: now,
				UpdatedAt: now,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return m.Reservation, nil
}

func (uc *stockUseCase) Release(ctx context.Context, input *dto.ReleaseInput) (item *model.Item, err error) {
	ctx, finish := uc.begin(ctx, "release",
		attribute.String("item.id", input.ItemID),
		attribute.Int64("release.quantity", input.Quantity),
	)
	defer func() { finish(err) }()

	if input.ItemID == "" {
		return nil, invalid("item id is required")
	}
	if input.Quantity <= 0 {
		return nil, invalid("quantity must be positive")
	}

	m, err := uc.mutate(ctx, "release", input.TenantID, input.ItemID, func(item *model.Item) (*stock.Mutation, error) {
		released := input.Quantity
		if released > item.ReservedQuantity {
			uc.logger.Warn("release exceeds reserved quantity, clamping",
				zap.String("item_id", item.ID),
				zap.Int64("requested", input.Quantity),
				zap.Int64("reserved", item.ReservedQuantity),
			)
			released = item.ReservedQuantity
		}
		holds, err := uc.releaseHolds(ctx, item.ID, "", released)
		if err != nil {
			return nil, err
		}
		item.ReservedQuantity -= released
		item.Status = stock.NextStatus(item, false)
		return &stock.Mutation{Item: item, Holds: holds}, nil
	})
	if err != nil {
		return nil, err
	}
	return m.Item, nil
}

func (uc *stockUseCase) ReleaseReservation(ctx context.Context, tenantID, reservationID string) (res *model.Reservation, err error) {
	ctx, finish := uc.begin(ctx, "release_reservation", attribute.String("reservation.id", reservationID))
	defer func() { finish(err) }()

	m, err := uc.settle(ctx, "release_reservation", tenantID, reservationID, model.ReservationReleased)
	if err != nil {
		return nil, err
	}
	return m.Reservation, nil
}

func (uc *stockUseCase) ExpireReservation(ctx context.Context, reservationID string) (res *model.Reservation, err error) {
	ctx, finish := uc.begin(ctx, "expire_reservation", attribute.String("reservation.id", reservationID))
	defer func() { finish(err) }()

	m, err := uc.settle(ctx, "expire_reservation", "", reservationID, model.ReservationExpired)
	if err != nil {
		return nil, err
	}
	return m.Reservation, nil
}

// settle returns an active hold's quantity to availability and closes it
// with the given status.
func (uc *stockUseCase) settle(ctx context.Context, op, tenantID, reservationID string, status model.ReservationStatus) (*stock.Mutation, error) {
	if reservationID == "" {
		return nil, invalid("reservation id is required")
	}
	hold, err := uc.loadReservation(ctx, tenantID, reservationID)
	if err != nil {
		return nil, err
	}

	return uc.mutate(ctx, op, tenantID, hold.ItemID, func(item *model.Item) (*stock.Mutation, error) {
		// Re-read under the item lock: another caller may have settled it.
		res, err := uc.activeReservation(ctx, reservationID)
		if err != nil {
			return nil, err
		}
		released := res.Quantity
		if released > item.ReservedQuantity {
			uc.logger.Warn("reservation exceeds reserved quantity, clamping",
				zap.String("reservation_id", res.ID),
				zap.Int64("hold", res.Quantity),
				zap.Int64("reserved", item.ReservedQuantity),
			)
			released = item.ReservedQuantity
		}
		item.ReservedQuantity -= released
		item.Status = stock.NextStatus(item, false)

		res.Status = status
		res.UpdatedAt = uc.now()
		return &stock.Mutation{Item: item, Reservation: res}, nil
	})
}

// CommitReservation turns a hold into a SALE: stock on hand and the reserved
// quantity drop together in one atomic unit.
func (uc *stockUseCase) CommitReservation(ctx context.Context, input *dto.CommitReservationInput) (entry *model.LedgerEntry, err error) {
	ctx, finish := uc.begin(ctx, "commit_reservation", attribute.String("reservation.id", input.ReservationID))
	defer func() { finish(err) }()

	if input.ReservationID == "" {
		return nil, invalid("reservation id is required")
	}
	hold, err := uc.loadReservation(ctx, input.TenantID, input.ReservationID)
	if err != nil {
		return nil, err
	}

	m, err := uc.mutate(ctx, "commit_reservation", input.TenantID, hold.ItemID, func(item *model.Item) (*stock.Mutation, error) {
		res, err := uc.activeReservation(ctx, input.ReservationID)
		if err != nil {
			return nil, err
		}
		prev := item.Quantity
		if res.Quantity > prev {
			return nil, fmt.Errorf("%w: hold %d, on hand %d", stock.ErrInsufficientStock, res.Quantity, prev)
		}
		next := prev - res.Quantity

		item.ReservedQuantity -= min(res.Quantity, item.ReservedQuantity)
		holds, err := uc.releaseHolds(ctx, item.ID, res.ID, item.ReservedQuantity-next)
		if err != nil {
			return nil, err
		}
		item.Quantity = next
		uc.clampReserved(item)
		item.Status = stock.NextStatus(item, true)

		res.Status = model.ReservationCommitted
		res.UpdatedAt = uc.now()

		return &stock.Mutation{
			Item:        item,
			Entry:       uc.newEntry(item, model.TxSale, prev, next, item.CostPrice.Decimal, actorOrSystem(input.ActorID), input.Location, input.Remarks),
			Reservation: res,
			Holds:       holds,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.Moved(string(model.TxSale), m.Entry.QuantityDelta)
	uc.publish(ctx, m.Entry)
	return m.Entry, nil
}

func (uc *stockUseCase) loadReservation(ctx context.Context, tenantID, id string) (*model.Reservation, error) {
	res, err := uc.repo.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, stock.ErrReservationNotFound) {
			return nil, err
		}
		return nil, storeErr(err)
	}
	if tenantID != "" && res.TenantID != tenantID {
		return nil, stock.ErrReservationNotFound
	}
	return res, nil
}

func (uc *stockUseCase) activeReservation(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := uc.repo.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, stock.ErrReservationNotFound) {
			return nil, err
		}
		return nil, storeErr(err)
	}
	if res.Status != model.ReservationActive {
		return nil, fmt.Errorf("%w: status %s", stock.ErrReservationNotActive, res.Status)
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Queries

func (uc *stockUseCase) ListLowStock(ctx context.Context, tenantID string) ([]model.Item, error) {
	if tenantID == "" {
		return nil, invalid("tenant id is required")
	}
	items, err := uc.lists.Get(ctx, listKey(tenantID, "low_stock"), func(ctx context.Context) ([]model.Item, error) {
		return uc.repo.ListItems(ctx, &dto.ItemFilters{
			TenantID:   tenantID,
			Statuses:   []model.ItemStatus{model.StatusLowStock, model.StatusOutOfStock},
			ActiveOnly: true,
		})
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

func (uc *stockUseCase) ListExpiring(ctx context.Context, tenantID string, days int) ([]model.Item, error) {
	if tenantID == "" {
		return nil, invalid("tenant id is required")
	}
	if days <= 0 {
		return nil, invalid("days must be positive")
	}
	items, err := uc.lists.Get(ctx, listKey(tenantID, fmt.Sprintf("expiring:%d", days)), func(ctx context.Context) ([]model.Item, error) {
		now := uc.now()
		horizon := now.AddDate(0, 0, days)
		return uc.repo.ListItems(ctx, &dto.ItemFilters{
			TenantID:       tenantID,
			ExpiringAfter:  &now,
			ExpiringBefore: &horizon,
		})
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Mutation core

// mutate runs one locked read-transition-write cycle and then drops the
// item's cached reads. The cache is only touched after the lock is released.
func (uc *stockUseCase) mutate(ctx context.Context, op, tenantID, itemID string, fn func(item *model.Item) (*stock.Mutation, error)) (*stock.Mutation, error) {
	m, err := uc.mutateLocked(ctx, op, tenantID, itemID, fn)
	if err != nil {
		return nil, err
	}
	uc.invalidate(ctx, m.Item)
	return m, nil
}

// mutateLocked serializes on the item id, reads the authoritative item, lets
// fn compute the next state and writes it back with compare-and-swap. Lost
// races and store faults are retried up to MaxAttempts; errors from fn and
// constraint violations are returned immediately.
func (uc *stockUseCase) mutateLocked(ctx context.Context, op, tenantID, itemID string, fn func(item *model.Item) (*stock.Mutation, error)) (*stock.Mutation, error) {
	unlock, err := uc.locker.Lock(ctx, itemID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, fmt.Errorf("%w: item %s is busy", stock.ErrConcurrentUpdateConflict, itemID)
		}
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= uc.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			uc.metrics.Retry(op)
			if err := uc.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		item, err := uc.repo.GetItem(ctx, itemID)
		if err != nil {
			if errors.Is(err, stock.ErrItemNotFound) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = storeErr(err)
			continue
		}
		if tenantID != "" && item.TenantID != tenantID {
			return nil, stock.ErrItemNotFound
		}

		expected := item.Version
		m, err := fn(item)
		if err != nil {
			return nil, err
		}
		m.ExpectedVersion = expected
		m.Item.Version = expected + 1
		m.Item.UpdatedAt = uc.now()
		if m.Entry != nil {
			m.Entry.ItemVersion = m.Item.Version
		}

		err = uc.repo.CASUpdateItem(ctx, m)
		if err == nil {
			return m, nil
		}
		if errors.Is(err, stock.ErrConstraintViolation) {
			uc.logger.Error("store rejected mutation", zap.String("op", op), zap.String("item_id", itemID), zap.Error(err))
			return nil, err
		}
		if errors.Is(err, stock.ErrVersionConflict) {
			uc.logger.Debug("lost compare-and-swap race",
				zap.String("op", op), zap.String("item_id", itemID), zap.Int("attempt", attempt))
			lastErr = fmt.Errorf("%w: item %s after %d attempts", stock.ErrConcurrentUpdateConflict, itemID, attempt)
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		uc.logger.Warn("store write failed", zap.String("op", op), zap.String("item_id", itemID), zap.Error(err))
		lastErr = storeErr(err)
	}
	return nil, lastErr
}

func (uc *stockUseCase) backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(uc.cfg.RetryBackoff * time.Duration(attempt-1))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// releaseHolds takes n units off the item's ACTIVE holds, oldest first,
// so the holds keep summing to the item's reserved quantity. A hold that is
// used up is closed as RELEASED; a partly used one shrinks. skip names a hold
// the caller settles itself.
func (uc *stockUseCase) releaseHolds(ctx context.Context, itemID, skip string, n int64) ([]*model.Reservation, error) {
	if n <= 0 {
		return nil, nil
	}
	active, err := uc.repo.ListActiveReservations(ctx, itemID)
	if err != nil {
		return nil, storeErr(err)
	}
	now := uc.now()
	var changed []*model.Reservation
	for i := range active {
		if n == 0 {
			break
		}
		h := &active[i]
		if h.ID == skip {
			continue
		}
		if n >= h.Quantity {
			n -= h.Quantity
			h.Status = model.ReservationReleased
		} else {
			h.Quantity -= n
			n = 0
		}
		h.UpdatedAt = now
		changed = append(changed, h)
	}
	return changed, nil
}

// clampReserved keeps 0 <= reserved <= quantity after stock on hand shrinks.
func (uc *stockUseCase) clampReserved(item *model.Item) {
	if item.ReservedQuantity > item.Quantity {
		uc.logger.Warn("reserved quantity exceeds stock on hand, clamping",
			zap.String("item_id", item.ID),
			zap.Int64("reserved", item.ReservedQuantity),
			zap.Int64("quantity", item.Quantity),
		)
		item.ReservedQuantity = item.Quantity
	}
}

func (uc *stockUseCase) newEntry(item *model.Item, txType model.TransactionType, prev, next int64, price decimal.Decimal, actor, location, remarks string) *model.LedgerEntry {
	delta := next - prev
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	entry := &model.LedgerEntry{
		ID:               uuid.New().String(),
		ItemID:           item.ID,
		TenantID:         item.TenantID,
		Type:             txType,
		QuantityDelta:    delta,
		PreviousQuantity: prev,
		NewQuantity:      next,
		UnitPrice:        price,
		TotalAmount:      price.Mul(decimal.NewFromInt(abs)),
		ActorID:          actor,
		CreatedAt:        uc.now(),
	}
	if location != "" {
		entry.Location = &location
	}
	if remarks != "" {
		entry.Remarks = &remarks
	}
	return entry
}

func (uc *stockUseCase) invalidate(ctx context.Context, item *model.Item) {
	uc.items.Invalidate(ctx, itemKey(item.ID))
	uc.lists.InvalidatePrefix(ctx, listPrefix(item.TenantID))
}

type ledgerEvent struct {
	EventType string             `json:"event_type"`
	Payload   *model.LedgerEntry `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

// publish is best effort: the entry is already committed, so a broker
// failure is logged and never reported to the caller.
func (uc *stockUseCase) publish(ctx context.Context, entry *model.LedgerEntry) {
	if uc.publisher == nil {
		return
	}
	data, err := json.Marshal(ledgerEvent{EventType: "LedgerEntryRecorded", Payload: entry, Timestamp: uc.now()})
	if err != nil {
		uc.logger.Error("failed to encode ledger event", zap.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := uc.publisher.Publish(pubCtx, entry.ItemID, data); err != nil {
		uc.logger.Error("failed to publish ledger event",
			zap.String("entry_id", entry.ID), zap.String("item_id", entry.ItemID), zap.Error(err))
	}
}

func (uc *stockUseCase) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := uc.tracer.Start(ctx, "stock."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		uc.metrics.Observe(op, start, err)
	}
}

func itemKey(itemID string) string {
	return "stock:item:" + itemID
}

func listPrefix(tenantID string) string {
	return "stock:list:" + tenantID + ":"
}

func listKey(tenantID, name string) string {
	return listPrefix(tenantID) + name
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return systemActor
	}
	return actor
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", stock.ErrInvalidArgument, msg)
}

func storeErr(err error) error {
	if errors.Is(err, stock.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", stock.ErrStoreUnavailable, err)
}
