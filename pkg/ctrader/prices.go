package ctrader

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PriceSnapshot struct {
	SymbolID  int64
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// SubscribePrices adds a tick subscriber for a symbol. Subscriptions are
// reference counted: only the first subscriber sends the subscribe command,
// later ones reuse the live stream.
func (a *Account) SubscribePrices(ctx context.Context, symbolName string) error {
	symbol, err := a.Symbol(symbolName)
	if err != nil {
		return err
	}
	return a.subscribeSpots(ctx, symbol.ID)
}

func (a *Account) UnsubscribePrices(symbolName string) error {
	symbol, err := a.Symbol(symbolName)
	if err != nil {
		return err
	}
	a.unsubscribeSpots(symbol.ID)
	return nil
}

func (a *Account) subscribeSpots(ctx context.Context, symbolID int64) error {
	a.priceMx.Lock()
	a.spotRefs[symbolID]++
	first := a.spotRefs[symbolID] == 1
	a.priceMx.Unlock()

	if !first {
		return nil
	}
	_, err := a.conn.SendCommand(ctx, commandSubscribeSpots, paramsSpots{SymbolID: []int64{symbolID}}, "")
	if err != nil {
		a.priceMx.Lock()
		a.spotRefs[symbolID]--
		if a.spotRefs[symbolID] == 0 {
			delete(a.spotRefs, symbolID)
		}
		a.priceMx.Unlock()
	}
	return err
}

func (a *Account) unsubscribeSpots(symbolID int64) {
	a.priceMx.Lock()
	if a.spotRefs[symbolID] == 0 {
		a.priceMx.Unlock()
		return
	}
	a.spotRefs[symbolID]--
	last := a.spotRefs[symbolID] == 0
	if last {
		delete(a.spotRefs, symbolID)
	}
	a.priceMx.Unlock()

	if !last {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if _, err := a.conn.SendCommand(ctx, commandUnsubscribeSpots, paramsSpots{SymbolID: []int64{symbolID}}, ""); err != nil {
		a.logger.Error("ctrader: fail unsubscribe spots", zap.Int64("symbol", symbolID), zap.Error(err))
	}
}

// SymbolPrice resolves the current price without keeping a subscriber. With
// a live subscription the cached snapshot is current and returned directly;
// otherwise it subscribes, waits for the first spot event (which always
// carries the latest known snapshot), and unsubscribes again.
func (a *Account) SymbolPrice(ctx context.Context, symbolName string) (PriceSnapshot, error) {
	symbol, err := a.Symbol(symbolName)
	if err != nil {
		return PriceSnapshot{}, err
	}
	return a.symbolPriceByID(ctx, symbol.ID)
}

func (a *Account) symbolPriceByID(ctx context.Context, symbolID int64) (PriceSnapshot, error) {
	a.priceMx.Lock()
	if a.spotRefs[symbolID] > 0 {
		if snapshot, ok := a.prices[symbolID]; ok {
			a.priceMx.Unlock()
			return snapshot, nil
		}
	}
	wait := make(chan PriceSnapshot, 1)
	a.priceWaiters[symbolID] = append(a.priceWaiters[symbolID], wait)
	a.priceMx.Unlock()

	if err := a.subscribeSpots(ctx, symbolID); err != nil {
		a.dropPriceWaiter(symbolID, wait)
		return PriceSnapshot{}, err
	}
	defer a.unsubscribeSpots(symbolID)

	select {
	case snapshot := <-wait:
		return snapshot, nil
	case <-ctx.Done():
		a.dropPriceWaiter(symbolID, wait)
		return PriceSnapshot{}, ctx.Err()
	}
}

func (a *Account) dropPriceWaiter(symbolID int64, wait chan PriceSnapshot) {
	a.priceMx.Lock()
	defer a.priceMx.Unlock()
	waiters := a.priceWaiters[symbolID]
	for i, w := range waiters {
		if w == wait {
			a.priceWaiters[symbolID] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(a.priceWaiters[symbolID]) == 0 {
		delete(a.priceWaiters, symbolID)
	}
}

// handleSpot caches a tick. A zero bid or ask means "unchanged" and is
// replaced with the last known side before caching.
func (a *Account) handleSpot(ev *spotEvent) {
	eventCounters.WithLabelValues("spot").Inc()

	a.priceMx.Lock()
	snapshot := a.prices[ev.SymbolID]
	snapshot.SymbolID = ev.SymbolID
	if ev.Bid != 0 {
		snapshot.Bid = priceFromWire(ev.Bid)
	}
	if ev.Ask != 0 {
		snapshot.Ask = priceFromWire(ev.Ask)
	}
	if ev.Timestamp != 0 {
		snapshot.Timestamp = time.UnixMilli(int64(ev.Timestamp)).UTC()
	}
	a.prices[ev.SymbolID] = snapshot

	waiters := a.priceWaiters[ev.SymbolID]
	delete(a.priceWaiters, ev.SymbolID)
	a.priceMx.Unlock()

	for _, wait := range waiters {
		wait <- snapshot
	}
}
