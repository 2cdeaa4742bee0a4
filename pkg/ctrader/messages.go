package ctrader

import (
	"strconv"

	"github.com/pkg/errors"
)

// Command payload types. Names follow the Open API proxy message names.
const (
	commandTraderInfo       = "ProtoOATraderReq"
	commandAssetList        = "ProtoOAAssetListReq"
	commandSymbolList       = "ProtoOASymbolsListReq"
	commandSymbolByID       = "ProtoOASymbolByIdReq"
	commandReconcile        = "ProtoOAReconcileReq"
	commandSubscribeSpots   = "ProtoOASubscribeSpotsReq"
	commandUnsubscribeSpots = "ProtoOAUnsubscribeSpotsReq"
	commandNewOrder         = "ProtoOANewOrderReq"
	commandAmendProtection  = "ProtoOAAmendPositionSLTPReq"
	commandOrderList        = "ProtoOAOrderListReq"
	commandDealList         = "ProtoOADealListReq"
	commandConversionChain  = "ProtoOASymbolsForConversionReq"
	commandTrendbars        = "ProtoOAGetTrendbarsReq"
)

// Push event names.
const (
	eventExecution     = "ProtoOAExecutionEvent"
	eventSpot          = "ProtoOASpotEvent"
	eventOrderError    = "ProtoOAOrderErrorEvent"
	eventMarginChanged = "ProtoOAMarginChangedEvent"
	eventSymbolChanged = "ProtoOASymbolChangedEvent"
)

// Execution event kinds.
const (
	executionOrderAccepted    = "ORDER_ACCEPTED"
	executionOrderFilled      = "ORDER_FILLED"
	executionOrderPartialFill = "ORDER_PARTIAL_FILL"
	executionOrderRejected    = "ORDER_REJECTED"
	executionOrderCancelled   = "ORDER_CANCELLED"
	executionOrderExpired     = "ORDER_EXPIRED"
	executionOrderReplaced    = "ORDER_REPLACED"
	executionSwap             = "SWAP"
)

// Wire order status and type codes.
const (
	wireOrderStatusAccepted  = "ORDER_STATUS_ACCEPTED"
	wireOrderStatusFilled    = "ORDER_STATUS_FILLED"
	wireOrderStatusRejected  = "ORDER_STATUS_REJECTED"
	wireOrderStatusExpired   = "ORDER_STATUS_EXPIRED"
	wireOrderStatusCancelled = "ORDER_STATUS_CANCELLED"

	wireOrderTypeMarket      = "MARKET"
	wireOrderTypeLimit       = "LIMIT"
	wireOrderTypeStop        = "STOP"
	wireOrderTypeStopLimit   = "STOP_LIMIT"
	wireOrderTypeMarketRange = "MARKET_RANGE"

	wireDealStatusFilled          = "FILLED"
	wireDealStatusPartiallyFilled = "PARTIALLY_FILLED"
	wireDealStatusMissed          = "MISSED"
	wireDealStatusRejected        = "REJECTED"
	wireDealStatusError           = "ERROR"
	wireDealStatusInternalReject  = "INTERNALLY_REJECTED"

	wirePositionStatusOpen   = "POSITION_STATUS_OPEN"
	wirePositionStatusClosed = "POSITION_STATUS_CLOSED"
)

// Entity ids travel as decimal strings on the wire.
func parseWireID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.WithMessage(err, "ctrader: fail parse wire id "+value)
	}
	return id, nil
}

type wireTradeData struct {
	SymbolID      int64  `json:"symbolId"`
	Volume        int64  `json:"volume"`
	TradeSide     string `json:"tradeSide"`
	OpenTimestamp uint64 `json:"openTimestamp"`
}

type wireOrder struct {
	OrderID         string        `json:"orderId"`
	TradeData       wireTradeData `json:"tradeData"`
	OrderType       string        `json:"orderType"`
	OrderStatus     string        `json:"orderStatus"`
	LimitPrice      int64         `json:"limitPrice,omitempty"`
	StopPrice       int64         `json:"stopPrice,omitempty"`
	ExecutionPrice  int64         `json:"executionPrice,omitempty"`
	ExecutedVolume  int64         `json:"executedVolume,omitempty"`
	ClosingOrder    bool          `json:"closingOrder"`
	PositionID      string        `json:"positionId,omitempty"`
	ClientOrderID   string        `json:"clientOrderId,omitempty"`
	UpdateTimestamp uint64        `json:"utcLastUpdateTimestamp"`
}

type wireClosePositionDetail struct {
	GrossProfit  int64 `json:"grossProfit"`
	Swap         int64 `json:"swap"`
	Commission   int64 `json:"commission"`
	Balance      int64 `json:"balance"`
	ClosedVolume int64 `json:"closedVolume"`
}

type wireDeal struct {
	DealID              string                   `json:"dealId"`
	OrderID             string                   `json:"orderId"`
	PositionID          string                   `json:"positionId"`
	SymbolID            int64                    `json:"symbolId"`
	Volume              int64                    `json:"volume"`
	FilledVolume        int64                    `json:"filledVolume"`
	TradeSide           string                   `json:"tradeSide"`
	DealStatus          string                   `json:"dealStatus"`
	Commission          int64                    `json:"commission,omitempty"`
	ExecutionPrice      int64                    `json:"executionPrice,omitempty"`
	ExecutionTimestamp  uint64                   `json:"executionTimestamp"`
	ClosePositionDetail *wireClosePositionDetail `json:"closePositionDetail,omitempty"`
}

type wirePosition struct {
	PositionID       string        `json:"positionId"`
	TradeData        wireTradeData `json:"tradeData"`
	PositionStatus   string        `json:"positionStatus"`
	Price            int64         `json:"price,omitempty"`
	StopLoss         int64         `json:"stopLoss,omitempty"`
	TakeProfit       int64         `json:"takeProfit,omitempty"`
	TrailingStopLoss bool          `json:"trailingStopLoss"`
	Commission       int64         `json:"commission,omitempty"`
	Swap             int64         `json:"swap,omitempty"`
	UsedMargin       int64         `json:"usedMargin,omitempty"`
	UpdateTimestamp  uint64        `json:"utcLastUpdateTimestamp"`
}

type executionEvent struct {
	AccountID     int64         `json:"accountId"`
	EventKind     string        `json:"eventKind"`
	Order         *wireOrder    `json:"order,omitempty"`
	Deal          *wireDeal     `json:"deal,omitempty"`
	Position      *wirePosition `json:"position,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`

	// rejectCode and rejectOrderID are filled locally when a rejection
	// arrives through the separate order-error push; they never travel on
	// the wire here.
	rejectCode    string
	rejectOrderID int64
}

// spotEvent price sides use 0 as the "unchanged" sentinel, never as an
// actual zero price.
type spotEvent struct {
	AccountID int64  `json:"accountId"`
	SymbolID  int64  `json:"symbolId"`
	Bid       int64  `json:"bid,omitempty"`
	Ask       int64  `json:"ask,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty"`
}

type orderErrorEvent struct {
	AccountID     int64  `json:"accountId"`
	OrderID       string `json:"orderId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	ErrorCode     string `json:"errorCode"`
	Description   string `json:"description,omitempty"`
}

type marginChangedEvent struct {
	AccountID  int64  `json:"accountId"`
	PositionID string `json:"positionId"`
	UsedMargin int64  `json:"usedMargin"`
}

type symbolChangedEvent struct {
	AccountID int64   `json:"accountId"`
	SymbolIDs []int64 `json:"symbolId"`
}

type wireAsset struct {
	AssetID int64  `json:"assetId"`
	Name    string `json:"name"`
}

type wireLightSymbol struct {
	SymbolID     int64  `json:"symbolId"`
	SymbolName   string `json:"symbolName"`
	BaseAssetID  int64  `json:"baseAssetId"`
	QuoteAssetID int64  `json:"quoteAssetId"`
}

type wireScheduleInterval struct {
	StartSecond uint32 `json:"startSecond"`
	EndSecond   uint32 `json:"endSecond"`
}

type wireSymbolDetails struct {
	SymbolID  int64                  `json:"symbolId"`
	LotSize   int64                  `json:"lotSize"`
	MinVolume int64                  `json:"minVolume"`
	MaxVolume int64                  `json:"maxVolume"`
	Schedule  []wireScheduleInterval `json:"schedule,omitempty"`
}

type wireTrader struct {
	AccountID                  int64  `json:"accountId"`
	Balance                    int64  `json:"balance"`
	DepositAssetID             int64  `json:"depositAssetId"`
	AccountType                string `json:"accountType"`
	LeverageInCents            int64  `json:"leverageInCents"`
	TotalMarginCalculationType string `json:"totalMarginCalculationType,omitempty"`
}

type wireTrendbar struct {
	Low                   int64 `json:"low"`
	DeltaOpen             int64 `json:"deltaOpen"`
	DeltaHigh             int64 `json:"deltaHigh"`
	DeltaLow              int64 `json:"deltaLow"`
	DeltaClose            int64 `json:"deltaClose"`
	Volume                int64 `json:"volume"`
	UtcTimestampInMinutes int64 `json:"utcTimestampInMinutes"`
}

// Command parameter and response shapes.

type paramsTraderInfo struct {
	AccountID int64 `json:"accountId"`
}

type responseTraderInfo struct {
	Trader *wireTrader `json:"trader,omitempty"`
}

type responseAssetList struct {
	Asset []wireAsset `json:"asset"`
}

type responseSymbolList struct {
	Symbol []wireLightSymbol `json:"symbol"`
}

type paramsSymbolByID struct {
	SymbolID []int64 `json:"symbolId"`
}

type responseSymbolByID struct {
	Symbol []wireSymbolDetails `json:"symbol"`
}

type responseReconcile struct {
	Position []wirePosition `json:"position"`
	Order    []wireOrder    `json:"order"`
}

type paramsSpots struct {
	SymbolID []int64 `json:"symbolId"`
}

type paramsNewOrder struct {
	SymbolID         int64  `json:"symbolId"`
	OrderType        string `json:"orderType"`
	TradeSide        string `json:"tradeSide"`
	Volume           int64  `json:"volume"`
	LimitPrice       int64  `json:"limitPrice,omitempty"`
	StopPrice        int64  `json:"stopPrice,omitempty"`
	PositionID       int64  `json:"positionId,omitempty"`
	StopLoss         int64  `json:"stopLoss,omitempty"`
	TakeProfit       int64  `json:"takeProfit,omitempty"`
	TrailingStopLoss bool   `json:"trailingStopLoss,omitempty"`
	ClientOrderID    string `json:"clientOrderId"`
}

type paramsAmendProtection struct {
	PositionID       int64 `json:"positionId"`
	StopLoss         int64 `json:"stopLoss,omitempty"`
	TakeProfit       int64 `json:"takeProfit,omitempty"`
	TrailingStopLoss bool  `json:"trailingStopLoss,omitempty"`
}

type paramsHistoryList struct {
	FromTimestamp uint64 `json:"fromTimestamp"`
	ToTimestamp   uint64 `json:"toTimestamp"`
}

type responseOrderList struct {
	Order []wireOrder `json:"order"`
}

type responseDealList struct {
	Deal []wireDeal `json:"deal"`
}

type paramsConversionChain struct {
	FirstAssetID int64 `json:"firstAssetId"`
	LastAssetID  int64 `json:"lastAssetId"`
}

type responseConversionChain struct {
	Symbol []wireLightSymbol `json:"symbol"`
}

type paramsTrendbars struct {
	SymbolID      int64  `json:"symbolId"`
	Period        string `json:"period"`
	FromTimestamp uint64 `json:"fromTimestamp"`
	ToTimestamp   uint64 `json:"toTimestamp"`
}

type responseTrendbars struct {
	Trendbar []wireTrendbar `json:"trendbar"`
}
