package handler

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/alert"
	"github.com/fekuna/omnipos-stock-ledger/internal/analytics"
	"github.com/fekuna/omnipos-stock-ledger/internal/auth"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type StockHandler struct {
	uc        stock.UseCase
	alerts    alert.UseCase
	analytics analytics.UseCase
	logger    logger.ZapLogger
}

func NewStockHandler(uc stock.UseCase, alerts alert.UseCase, an analytics.UseCase, log logger.ZapLogger) *StockHandler {
	return &StockHandler{
		uc:        uc,
		alerts:    alerts,
		analytics: an,
		logger:    log,
	}
}

func (h *StockHandler) CreateItem(ctx context.Context, req *CreateItemRequest) (*model.Item, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	item, err := h.uc.CreateItem(ctx, &dto.CreateItemInput{
		TenantID:            tenantID,
		SKU:                 req.SKU,
		Barcode:             req.Barcode,
		Name:                req.Name,
		Unit:                req.Unit,
		InitialQuantity:     req.InitialQuantity,
		MinQuantity:         req.MinQuantity,
		MaxQuantity:         req.MaxQuantity,
		CostPrice:           req.CostPrice,
		SellingPrice:        req.SellingPrice,
		IsExpirable:         req.IsExpirable,
		ExpiryDate:          req.ExpiryDate,
		IsMaintainable:      req.IsMaintainable,
		NextMaintenanceDate: req.NextMaintenanceDate,
		ActorID:             auth.GetUserID(ctx),
	})
	if err != nil {
		return nil, h.toStatus("CreateItem", err)
	}
	return item, nil
}

func (h *StockHandler) GetItem(ctx context.Context, req *ItemRequest) (*model.Item, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	item, err := h.uc.GetItem(ctx, tenantID, req.ItemID)
	if err != nil {
		return nil, h.toStatus("GetItem", err)
	}
	return item, nil
}

func (h *StockHandler) SetItemStatus(ctx context.Context, req *SetItemStatusRequest) (*model.Item, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	item, err := h.uc.SetOperatorStatus(ctx, &dto.SetStatusInput{TenantID: tenantID, ItemID: req.ItemID, Status: req.Status})
	if err != nil {
		return nil, h.toStatus("SetItemStatus", err)
	}
	return item, nil
}

func (h *StockHandler) DeactivateItem(ctx context.Context, req *ItemRequest) (*model.Item, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	item, err := h.uc.DeactivateItem(ctx, tenantID, req.ItemID)
	if err != nil {
		return nil, h.toStatus("DeactivateItem", err)
	}
	return item, nil
}

func (h *StockHandler) ApplyTransaction(ctx context.Context, req *ApplyTransactionRequest) (*model.LedgerEntry, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := h.uc.ApplyTransaction(ctx, &dto.ApplyTransactionInput{
		TenantID:  tenantID,
		ItemID:    req.ItemID,
		Type:      req.Type,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		ActorID:   auth.GetUserID(ctx),
		Location:  req.Location,
		Remarks:   req.Remarks,
		Reference: req.Reference,
	})
	if err != nil {
		return nil, h.toStatus("ApplyTransaction", err)
	}
	return entry, nil
}

func (h *StockHandler) ListLedgerEntries(ctx context.Context, req *ListLedgerEntriesRequest) (*ListLedgerEntriesResponse, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := h.uc.ListLedgerEntries(ctx, tenantID, req.ItemID, dto.LedgerRange{From: req.From, To: req.To})
	if err != nil {
		return nil, h.toStatus("ListLedgerEntries", err)
	}
	return &ListLedgerEntriesResponse{Entries: entries}, nil
}

func (h *StockHandler) Reserve(ctx context.Context, req *ReserveRequest) (*model.Reservation, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.uc.Reserve(ctx, &dto.ReserveInput{
		TenantID: tenantID,
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		TTL:      time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, h.toStatus("Reserve", err)
	}
	return res, nil
}

func (h *StockHandler) Release(ctx context.Context, req *ReleaseRequest) (*model.Item, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	item, err := h.uc.Release(ctx, &dto.ReleaseInput{TenantID: tenantID, ItemID: req.ItemID, Quantity: req.Quantity})
	if err != nil {
		return nil, h.toStatus("Release", err)
	}
	return item, nil
}

func (h *StockHandler) ReleaseReservation(ctx context.Context, req *ReservationRequest) (*model.Reservation, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.uc.ReleaseReservation(ctx, tenantID, req.ReservationID)
	if err != nil {
		return nil, h.toStatus("ReleaseReservation", err)
	}
	return res, nil
}

func (h *StockHandler) CommitReservation(ctx context.Context, req *ReservationRequest) (*model.LedgerEntry, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := h.uc.CommitReservation(ctx, &dto.CommitReservationInput{
		TenantID:      tenantID,
		ReservationID: req.ReservationID,
		ActorID:       auth.GetUserID(ctx),
		Location:      req.Location,
		Remarks:       req.Remarks,
	})
	if err != nil {
		return nil, h.toStatus("CommitReservation", err)
	}
	return entry, nil
}

func (h *StockHandler) ListLowStock(ctx context.Context, _ *TenantRequest) (*ListItemsResponse, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	items, err := h.uc.ListLowStock(ctx, tenantID)
	if err != nil {
		return nil, h.toStatus("ListLowStock", err)
	}
	return &ListItemsResponse{Items: items}, nil
}

func (h *StockHandler) ListExpiring(ctx context.Context, req *ListExpiringRequest) (*ListItemsResponse, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	items, err := h.uc.ListExpiring(ctx, tenantID, req.Days)
	if err != nil {
		return nil, h.toStatus("ListExpiring", err)
	}
	return &ListItemsResponse{Items: items}, nil
}

func (h *StockHandler) ScanAlerts(ctx context.Context, req *ScanAlertsRequest) (*AlertsResponse, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := h.alerts.Scan(ctx, tenantID, req.HorizonDays)
	if err != nil {
		return nil, h.toStatus("ScanAlerts", err)
	}
	return &AlertsResponse{Alerts: alerts}, nil
}

func (h *StockHandler) GetValuation(ctx context.Context, _ *TenantRequest) (*model.Valuation, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	v, err := h.analytics.GetValuation(ctx, tenantID)
	if err != nil {
		return nil, h.toStatus("GetValuation", err)
	}
	return v, nil
}

func (h *StockHandler) GetTurnover(ctx context.Context, req *TurnoverRequest) (*model.Turnover, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	t, err := h.analytics.GetTurnover(ctx, tenantID, req.ItemID, req.WindowDays)
	if err != nil {
		return nil, h.toStatus("GetTurnover", err)
	}
	return t, nil
}

func (h *StockHandler) GetTenantTurnover(ctx context.Context, req *TurnoverRequest) (*model.TenantTurnover, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	t, err := h.analytics.GetTenantTurnover(ctx, tenantID, req.WindowDays)
	if err != nil {
		return nil, h.toStatus("GetTenantTurnover", err)
	}
	return t, nil
}

func requireTenant(ctx context.Context) (string, error) {
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		return "", status.Error(codes.InvalidArgument, "missing x-tenant-id")
	}
	return tenantID, nil
}

// toStatus maps use case errors onto gRPC codes. Server-side faults are
// logged here; caller errors are not.
func (h *StockHandler) toStatus(method string, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, stock.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, stock.ErrInsufficientAvailableStock),
		errors.Is(err, stock.ErrReservationNotActive):
		code = codes.FailedPrecondition
	case errors.Is(err, stock.ErrItemNotFound), errors.Is(err, stock.ErrReservationNotFound):
		code = codes.NotFound
	case errors.Is(err, stock.ErrDuplicateItem):
		code = codes.AlreadyExists
	case errors.Is(err, stock.ErrConcurrentUpdateConflict):
		code = codes.Aborted
	case errors.Is(err, stock.ErrStoreUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}

	switch code {
	case codes.Internal, codes.Unavailable, codes.Aborted:
		h.logger.Error("stock request failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(code, err.Error())
}

var _ StockServiceServer = (*StockHandler)(nil)
