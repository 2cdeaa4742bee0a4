package ctrader

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deal is a single execution fill belonging to an order, possibly partial.
type Deal struct {
	ID         int64
	OrderID    int64
	PositionID int64
	SymbolID   int64

	Direction TradeDirection
	Status    DealStatus
	Rejection RejectReason
	Purpose   OrderPurpose

	// Volumes in symbol units, price in quote currency.
	Volume         decimal.Decimal
	FilledVolume   decimal.Decimal
	ExecutionPrice decimal.Decimal

	// Monetary fields in deposit currency. GrossProfit is populated for
	// closing deals only.
	Commission  decimal.Decimal
	Swap        decimal.Decimal
	GrossProfit decimal.Decimal

	ExecutedAt time.Time
}
