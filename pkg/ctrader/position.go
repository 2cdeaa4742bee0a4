package ctrader

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Position is a live net-exposure entity. Like orders it consumes the
// account bus through its own serializer; swap charges, commission updates,
// partial fills and protection changes for one position are applied strictly
// in arrival order. CLOSED is terminal, listeners are torn down on entry.
type Position struct {
	account *Account
	logger  *zap.Logger

	mx         sync.RWMutex
	id         int64
	symbol     *Symbol
	direction  TradeDirection
	status     PositionStatus
	volume     decimal.Decimal // symbol units
	lots       decimal.Decimal
	openPrice  decimal.Decimal
	protection Protection
	commission decimal.Decimal
	swap       decimal.Decimal
	usedMargin decimal.Decimal
	orderIDs   []int64
	openedAt   time.Time
	updatedAt  time.Time

	serializer *serializer[*executionEvent]
	busID      uint64
	listening  bool
}

func (p *Position) ID() int64 {
	return p.id
}

func (p *Position) Symbol() *Symbol {
	return p.symbol
}

func (p *Position) Direction() TradeDirection {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.direction
}

func (p *Position) Status() PositionStatus {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.status
}

// Volume returns the open exposure in symbol units.
func (p *Position) Volume() decimal.Decimal {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.volume
}

func (p *Position) Lots() decimal.Decimal {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.lots
}

func (p *Position) OpenPrice() decimal.Decimal {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.openPrice
}

func (p *Position) Protection() Protection {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.protection
}

func (p *Position) Commission() decimal.Decimal {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.commission
}

func (p *Position) Swap() decimal.Decimal {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.swap
}

func (p *Position) UsedMargin() decimal.Decimal {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.usedMargin
}

// Orders lists ids of the orders discovered for this position, in the order
// their events arrived.
func (p *Position) Orders() []int64 {
	p.mx.RLock()
	defer p.mx.RUnlock()
	ids := make([]int64, len(p.orderIDs))
	copy(ids, p.orderIDs)
	return ids
}

// setUsedMargin applies a margin-changed push.
func (p *Position) setUsedMargin(margin decimal.Decimal) {
	p.mx.Lock()
	p.usedMargin = margin
	p.mx.Unlock()
}

func (p *Position) listen() {
	p.serializer = newSerializer(p.logger, "position", p.handleEvent)
	p.busID = p.account.bus.subscribe(p.dispatch)
	p.listening = true
}

func (p *Position) dispatch(ev *executionEvent) {
	if p.matches(ev) {
		p.serializer.submit(ev)
	}
}

func (p *Position) matches(ev *executionEvent) bool {
	if ev.Position != nil {
		if id, err := parseWireID(ev.Position.PositionID); err == nil && id == p.id {
			return true
		}
	}
	if ev.Deal != nil {
		if id, err := parseWireID(ev.Deal.PositionID); err == nil && id == p.id {
			return true
		}
	}
	if ev.Order != nil && ev.Order.PositionID != "" {
		if id, err := parseWireID(ev.Order.PositionID); err == nil && id == p.id {
			return true
		}
	}
	return false
}

func (p *Position) handleEvent(ev *executionEvent) error {
	if ev.Position != nil {
		if err := p.applyWirePosition(ev.Position); err != nil {
			return err
		}
	}
	if ev.Deal != nil {
		if err := p.applyWireDeal(ev.Deal); err != nil {
			return err
		}
	}
	if ev.Order != nil {
		if err := p.associateOrder(ev.Order); err != nil {
			return err
		}
	}

	if p.Status() == PositionStatusClosed {
		p.teardown()
	}
	return nil
}

func (p *Position) applyWirePosition(wire *wirePosition) error {
	status, err := normalizePositionStatus(wire.PositionStatus)
	if err != nil {
		return err
	}
	direction, err := DirectionStrToType(wire.TradeData.TradeSide)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	details, err := p.account.SymbolDetails(ctx, wire.TradeData.SymbolID)
	if err != nil {
		return err
	}

	p.mx.Lock()
	p.direction = direction
	p.status = status
	p.volume = volumeFromWire(wire.TradeData.Volume)
	p.lots = lotsFromWire(wire.TradeData.Volume, details.wireLotSize)
	if wire.Price != 0 {
		p.openPrice = priceFromWire(wire.Price)
	}
	p.protection = Protection{
		StopLoss:         priceFromWire(wire.StopLoss),
		TakeProfit:       priceFromWire(wire.TakeProfit),
		TrailingStopLoss: wire.TrailingStopLoss,
	}
	if wire.Commission != 0 {
		p.commission = moneyFromCents(wire.Commission)
	}
	if wire.Swap != 0 {
		p.swap = moneyFromCents(wire.Swap)
	}
	if wire.UsedMargin != 0 {
		p.usedMargin = moneyFromCents(wire.UsedMargin)
	}
	if wire.TradeData.OpenTimestamp != 0 {
		p.openedAt = time.UnixMilli(int64(wire.TradeData.OpenTimestamp)).UTC()
	}
	if wire.UpdateTimestamp != 0 {
		p.updatedAt = time.UnixMilli(int64(wire.UpdateTimestamp)).UTC()
	}
	p.mx.Unlock()
	return nil
}

func (p *Position) applyWireDeal(wire *wireDeal) error {
	deal, err := p.account.normalizeDeal(wire)
	if err != nil {
		return err
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	if deal.Status == DealStatusExecuted && deal.Purpose == PurposeOpen && !deal.Commission.IsZero() {
		p.commission = deal.Commission
	}
	return nil
}

func (p *Position) associateOrder(wire *wireOrder) error {
	id, err := parseWireID(wire.OrderID)
	if err != nil {
		return err
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	for _, known := range p.orderIDs {
		if known == id {
			return nil
		}
	}
	p.orderIDs = append(p.orderIDs, id)
	return nil
}

func (p *Position) teardown() {
	p.mx.Lock()
	listening := p.listening
	p.listening = false
	p.mx.Unlock()

	if listening {
		p.account.bus.unsubscribe(p.busID)
	}
}
