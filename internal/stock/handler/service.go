package handler

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/rpc"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
)

const ServiceName = "omnipos.stock.v1.StockService"

type CreateItemRequest struct {
	SKU                 string           `json:"sku"`
	Barcode             string           `json:"barcode,omitempty"`
	Name                string           `json:"name"`
	Unit                model.Unit       `json:"unit"`
	InitialQuantity     int64            `json:"initial_quantity"`
	MinQuantity         int64            `json:"min_quantity"`
	MaxQuantity         *int64           `json:"max_quantity,omitempty"`
	CostPrice           *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice        *decimal.Decimal `json:"selling_price,omitempty"`
	IsExpirable         bool             `json:"is_expirable"`
	ExpiryDate          *time.Time       `json:"expiry_date,omitempty"`
	IsMaintainable      bool             `json:"is_maintainable"`
	NextMaintenanceDate *time.Time       `json:"next_maintenance_date,omitempty"`
}

type ItemRequest struct {
	ItemID string `json:"item_id"`
}

type SetItemStatusRequest struct {
	ItemID string           `json:"item_id"`
	Status model.ItemStatus `json:"status"`
}

type ApplyTransactionRequest struct {
	ItemID    string                `json:"item_id"`
	Type      model.TransactionType `json:"type"`
	Quantity  int64                 `json:"quantity"`
	UnitPrice *decimal.Decimal      `json:"unit_price,omitempty"`
	Location  string                `json:"location,omitempty"`
	Remarks   string                `json:"remarks,omitempty"`
	Reference string                `json:"reference,omitempty"`
}

type ListLedgerEntriesRequest struct {
	ItemID string     `json:"item_id"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

type ListLedgerEntriesResponse struct {
	Entries []model.LedgerEntry `json:"entries"`
}

type ReserveRequest struct {
	ItemID     string `json:"item_id"`
	Quantity   int64  `json:"quantity"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

type ReleaseRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

type ReservationRequest struct {
	ReservationID string `json:"reservation_id"`
	Location      string `json:"location,omitempty"`
	Remarks       string `json:"remarks,omitempty"`
}

type TenantRequest struct{}

type ListExpiringRequest struct {
	Days int `json:"days"`
}

type ListItemsResponse struct {
	Items []model.Item `json:"items"`
}

type ScanAlertsRequest struct {
	HorizonDays int `json:"horizon_days,omitempty"`
}

type AlertsResponse struct {
	Alerts []model.Alert `json:"alerts"`
}

type TurnoverRequest struct {
	ItemID     string `json:"item_id,omitempty"`
	WindowDays int    `json:"window_days"`
}

// StockServiceServer is the server API for the stock service.
type StockServiceServer interface {
	CreateItem(context.Context, *CreateItemRequest) (*model.Item, error)
	GetItem(context.Context, *ItemRequest) (*model.Item, error)
	SetItemStatus(context.Context, *SetItemStatusRequest) (*model.Item, error)
	DeactivateItem(context.Context, *ItemRequest) (*model.Item, error)
	ApplyTransaction(context.Context, *ApplyTransactionRequest) (*model.LedgerEntry, error)
	ListLedgerEntries(context.Context, *ListLedgerEntriesRequest) (*ListLedgerEntriesResponse, error)
	Reserve(context.Context, *ReserveRequest) (*model.Reservation, error)
	Release(context.Context, *ReleaseRequest) (*model.Item, error)
	ReleaseReservation(context.Context, *ReservationRequest) (*model.Reservation, error)
	CommitReservation(context.Context, *ReservationRequest) (*model.LedgerEntry, error)
	ListLowStock(context.Context, *TenantRequest) (*ListItemsResponse, error)
	ListExpiring(context.Context, *ListExpiringRequest) (*ListItemsResponse, error)
	ScanAlerts(context.Context, *ScanAlertsRequest) (*AlertsResponse, error)
	GetValuation(context.Context, *TenantRequest) (*model.Valuation, error)
	GetTurnover(context.Context, *TurnoverRequest) (*model.Turnover, error)
	GetTenantTurnover(context.Context, *TurnoverRequest) (*model.TenantTurnover, error)
}

var StockService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateItem", StockServiceServer.CreateItem),
		unary("GetItem", StockServiceServer.GetItem),
		unary("SetItemStatus", StockServiceServer.SetItemStatus),
		unary("DeactivateItem", StockServiceServer.DeactivateItem),
		unary("ApplyTransaction", StockServiceServer.ApplyTransaction),
		unary("ListLedgerEntries", StockServiceServer.ListLedgerEntries),
		unary("Reserve", StockServiceServer.Reserve),
		unary("Release", StockServiceServer.Release),
		unary("ReleaseReservation", StockServiceServer.ReleaseReservation),
		unary("CommitReservation", StockServiceServer.CommitReservation),
		unary("ListLowStock", StockServiceServer.ListLowStock),
		unary("ListExpiring", StockServiceServer.ListExpiring),
		unary("ScanAlerts", StockServiceServer.ScanAlerts),
		unary("GetValuation", StockServiceServer.GetValuation),
		unary("GetTurnover", StockServiceServer.GetTurnover),
		unary("GetTenantTurnover", StockServiceServer.GetTenantTurnover),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/stock/v1/stock.json",
}

func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&StockService_ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(StockServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StockServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(StockServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// StockServiceClient calls the stock service over a JSON-coded connection.
type StockServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStockServiceClient(cc grpc.ClientConnInterface) *StockServiceClient {
	return &StockServiceClient{cc: cc}
}

// Invoke calls method (e.g. "GetItem") with in and decodes the reply into out.
func (c *StockServiceClient) Invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpc.CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
