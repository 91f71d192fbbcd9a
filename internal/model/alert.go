package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertKind string

const (
	AlertLowStock    AlertKind = "LOW_STOCK"
	AlertExpiry      AlertKind = "EXPIRY"
	AlertMaintenance AlertKind = "MAINTENANCE"
	AlertOverstock   AlertKind = "OVERSTOCK"
)

type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
)

type Alert struct {
	Kind          AlertKind     `json:"kind"`
	Severity      AlertSeverity `json:"severity"`
	TenantID      string        `json:"tenant_id"`
	ItemID        string        `json:"item_id"`
	SKU           string        `json:"sku"`
	Name          string        `json:"name"`
	Quantity      int64         `json:"quantity"`
	Message       string        `json:"message"`
	DaysRemaining *int          `json:"days_remaining,omitempty"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
}

type Valuation struct {
	TenantID   string          `json:"tenant_id"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalUnits int64           `json:"total_units"`
	ItemCount  int             `json:"item_count"`
}

type Turnover struct {
	ItemID         string    `json:"item_id"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	TotalSold      int64     `json:"total_sold"`
	TotalPurchased int64     `json:"total_purchased"`
	AverageStock   float64   `json:"average_stock"`
	Rate           float64   `json:"rate"`
}

type TenantTurnover struct {
	TenantID     string     `json:"tenant_id"`
	WindowDays   int        `json:"window_days"`
	AverageRate  float64    `json:"average_rate"`
	ItemsCounted int        `json:"items_counted"`
	Items        []Turnover `json:"items"`
}
