package ctrader

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Protection groups the stop-loss, take-profit and trailing-stop settings of
// a position.
type Protection struct {
	StopLoss         decimal.Decimal
	TakeProfit       decimal.Decimal
	TrailingStopLoss bool
}

func (p Protection) isZero() bool {
	return p.StopLoss.IsZero() && p.TakeProfit.IsZero() && !p.TrailingStopLoss
}

// Order is a live order entity. It consumes the account bus through its own
// serializer, so its lifecycle events are applied strictly in arrival order.
// The id stays zero until the server assigns one; until then push events are
// matched by the correlation token used at placement.
type Order struct {
	account *Account
	logger  *zap.Logger

	mx             sync.RWMutex
	id             int64
	correlationID  string
	symbol         *Symbol
	direction      TradeDirection
	purpose        OrderPurpose
	isMarket       bool
	requestedLots  decimal.Decimal
	limitPrice     decimal.Decimal
	stopPrice      decimal.Decimal
	executionPrice decimal.Decimal
	status         OrderStatus
	rejection      RejectReason
	rejected       bool
	positionID     int64
	trades         []*Deal
	createdAt      time.Time
	updatedAt      time.Time

	// pendingProtection is protection requested on a market order; the wire
	// does not accept it at placement, so it is applied through a follow-up
	// command once the order is executed.
	pendingProtection *Protection

	resolveOn  map[OrderStatus]struct{}
	call       *orderCall
	serializer *serializer[*executionEvent]
	busID      uint64
	listening  bool
}

func (o *Order) ID() int64 {
	o.mx.RLock()
	defer o.mx.RUnlock()
	return o.id
}

func (o *Order) CorrelationID() string {
	return o.correlationID
}

func (o *Order) Symbol() *Symbol {
	return o.symbol
}

func (o *Order) Direction() TradeDirection {
	return o.direction
}

func (o *Order) Purpose() OrderPurpose {
	o.mx.RLock()
	defer o.mx.RUnlock()
	return o.purpose
}

func (o *Order) Status() OrderStatus {
	o.mx.RLock()
	defer o.mx.RUnlock()
	return o.status
}

func (o *Order) RequestedLots() decimal.Decimal {
	o.mx.RLock()
	defer o.mx.RUnlock()
	return o.requestedLots
}

func (o *Order) ExecutionPrice() decimal.Decimal {
	o.mx.RLock()
	defer o.mx.RUnlock()
	return o.executionPrice
}

func (o *Order) LimitPrice() decimal.Decimal {
	return o.limitPrice
}

func (o *Order) StopPrice() decimal.Decimal {
	return o.stopPrice
}

func (o *Order) PositionID() int64 {
	o.mx.RLock()
	defer o.mx.RUnlock()
	return o.positionID
}

// Rejection returns the rejection reason for a REJECTED order.
func (o *Order) Rejection() (RejectReason, bool) {
	o.mx.RLock()
	defer o.mx.RUnlock()
	return o.rejection, o.rejected
}

// Trades lists the execution fills observed for this order so far.
func (o *Order) Trades() []*Deal {
	o.mx.RLock()
	defer o.mx.RUnlock()
	trades := make([]*Deal, len(o.trades))
	copy(trades, o.trades)
	return trades
}

func (o *Order) listen() {
	o.serializer = newSerializer(o.logger, "order", o.handleEvent)
	o.busID = o.account.bus.subscribe(o.dispatch)
	o.listening = true
}

// dispatch runs on the account fan-out path: it only filters relevance, the
// actual mutation is serialized per order.
func (o *Order) dispatch(ev *executionEvent) {
	if o.matches(ev) {
		o.serializer.submit(ev)
	}
}

func (o *Order) matches(ev *executionEvent) bool {
	o.mx.RLock()
	defer o.mx.RUnlock()
	if ev.Order != nil {
		if id, err := parseWireID(ev.Order.OrderID); err == nil && id != 0 && id == o.id {
			return true
		}
		if o.id == 0 && ev.CorrelationID != "" && ev.CorrelationID == o.correlationID {
			return true
		}
		if ev.Order.ClientOrderID != "" && ev.Order.ClientOrderID == o.correlationID {
			return true
		}
	}
	if ev.Deal != nil {
		if id, err := parseWireID(ev.Deal.OrderID); err == nil && id != 0 && id == o.id {
			return true
		}
	}
	if ev.Order == nil && ev.Deal == nil && ev.EventKind == executionOrderRejected {
		if ev.rejectOrderID != 0 && ev.rejectOrderID == o.id {
			return true
		}
		if ev.CorrelationID != "" && ev.CorrelationID == o.correlationID {
			return true
		}
	}
	return false
}

func (o *Order) handleEvent(ev *executionEvent) error {
	if ev.Order == nil && ev.Deal == nil && ev.EventKind == executionOrderRejected {
		o.applyRejection(ev.rejectCode)
	}
	if ev.Order != nil {
		if err := o.applyWireOrder(ev); err != nil {
			return err
		}
	}
	if ev.Deal != nil {
		if err := o.applyWireDeal(ev.Deal); err != nil {
			return err
		}
	}

	status := o.Status()

	if status == OrderStatusExecuted {
		o.applyPendingProtection()
	}

	o.resolveCall(status)

	if status.IsTerminal() {
		o.teardown()
	}
	return nil
}

func (o *Order) applyWireOrder(ev *executionEvent) error {
	wire := ev.Order
	id, err := parseWireID(wire.OrderID)
	if err != nil {
		return err
	}
	status, err := normalizeOrderStatus(wire.OrderStatus, wire.OrderType)
	if err != nil {
		return err
	}
	if ev.EventKind == executionOrderPartialFill && !status.IsTerminal() {
		status = OrderStatusPartiallyFilled
	}
	direction, err := DirectionStrToType(wire.TradeData.TradeSide)
	if err != nil {
		return err
	}

	// Resolving the requested volume needs the complete symbol descriptor;
	// the fetch may suspend, the serialization claim is held meanwhile.
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	details, err := o.account.SymbolDetails(ctx, wire.TradeData.SymbolID)
	if err != nil {
		return err
	}
	symbol, err := o.account.SymbolByID(wire.TradeData.SymbolID)
	if err != nil {
		return err
	}

	var positionID int64
	if wire.PositionID != "" {
		if positionID, err = parseWireID(wire.PositionID); err != nil {
			return err
		}
	}

	o.mx.Lock()
	if o.id == 0 && id != 0 {
		o.mx.Unlock()
		o.account.adoptOrderID(o, id)
		o.mx.Lock()
		o.id = id
	}
	if o.symbol == nil {
		o.symbol = symbol
	}
	o.direction = direction
	o.isMarket = isMarketOrderType(wire.OrderType)
	o.purpose = normalizeOrderPurpose(wire)
	o.status = status
	o.requestedLots = lotsFromWire(wire.TradeData.Volume, details.wireLotSize)
	if wire.LimitPrice != 0 {
		o.limitPrice = priceFromWire(wire.LimitPrice)
	}
	if wire.StopPrice != 0 {
		o.stopPrice = priceFromWire(wire.StopPrice)
	}
	if wire.ExecutionPrice != 0 {
		o.executionPrice = priceFromWire(wire.ExecutionPrice)
	}
	if positionID != 0 {
		o.positionID = positionID
	}
	if wire.TradeData.OpenTimestamp != 0 {
		o.createdAt = time.UnixMilli(int64(wire.TradeData.OpenTimestamp)).UTC()
	}
	if wire.UpdateTimestamp != 0 {
		o.updatedAt = time.UnixMilli(int64(wire.UpdateTimestamp)).UTC()
	}
	if status == OrderStatusRejected {
		o.rejected = true
		o.rejection = getRejectByCode(ev.rejectCode)
		if ev.rejectCode != "" {
			rejectCounters.WithLabelValues(ev.rejectCode).Inc()
		}
		if o.rejection == RejectUnknown && ev.rejectCode != "" {
			o.logger.Error("ctrader: unexpected order reject code",
				zap.String("code", ev.rejectCode))
		}
	}
	o.mx.Unlock()
	return nil
}

// applyRejection handles the order-error push: the rejection arrives outside
// the regular execution payload, carrying only a code.
func (o *Order) applyRejection(code string) {
	rejectCounters.WithLabelValues(code).Inc()
	o.mx.Lock()
	o.status = OrderStatusRejected
	o.rejected = true
	o.rejection = getRejectByCode(code)
	unknown := o.rejection == RejectUnknown && code != ""
	o.mx.Unlock()
	if unknown {
		o.logger.Error("ctrader: unexpected order reject code", zap.String("code", code))
	}
}

func (o *Order) applyWireDeal(wire *wireDeal) error {
	deal, err := o.account.normalizeDeal(wire)
	if err != nil {
		return err
	}
	o.mx.Lock()
	defer o.mx.Unlock()
	for i, known := range o.trades {
		if known.ID == deal.ID {
			// re-normalization produced a newer snapshot, swap the stale one
			o.trades[i] = deal
			return nil
		}
	}
	o.trades = append(o.trades, deal)
	return nil
}

// applyPendingProtection issues the deferred protection-change command for a
// market order that just executed.
func (o *Order) applyPendingProtection() {
	o.mx.Lock()
	protection := o.pendingProtection
	positionID := o.positionID
	o.pendingProtection = nil
	o.mx.Unlock()

	if protection == nil || positionID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := o.account.amendProtection(ctx, positionID, *protection); err != nil {
		o.logger.Error("ctrader: fail apply deferred protection",
			zap.Int64("position", positionID), zap.Error(err))
	}
}

func (o *Order) resolveCall(status OrderStatus) {
	o.mx.Lock()
	call := o.call
	_, resolve := o.resolveOn[status]
	if resolve && call != nil {
		o.call = nil
	}
	o.mx.Unlock()

	if resolve && call != nil {
		call.Reply = o
		call.done()
	}
}

// teardown detaches the bus listener once the order reaches a terminal
// state. A still-unresolved call is resolved so callers never hang on a
// terminal order.
func (o *Order) teardown() {
	o.mx.Lock()
	listening := o.listening
	o.listening = false
	call := o.call
	o.call = nil
	o.mx.Unlock()

	if listening {
		o.account.bus.unsubscribe(o.busID)
	}
	if call != nil {
		call.Reply = o
		call.done()
	}
}
