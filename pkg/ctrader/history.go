package ctrader

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// The protocol enforces a maximum one-week query span, so a cold lookup is
// a backward scan over fixed windows: newest first, at most three pages,
// stopping early on a hit or an empty page. Callers pay O(windows) round
// trips on a miss.
const (
	historyWindow     = 7 * 24 * time.Hour
	historyMaxWindows = 3
)

// Order returns a cached order, falling back to the bounded historical
// search.
func (a *Account) Order(ctx context.Context, id int64) (*Order, error) {
	a.mx.RLock()
	order, ok := a.orders[id]
	a.mx.RUnlock()
	if ok {
		return order, nil
	}
	return a.searchOrderHistory(ctx, id)
}

// Deal returns a cached deal, falling back to the bounded historical search.
func (a *Account) Deal(ctx context.Context, id int64) (*Deal, error) {
	a.mx.RLock()
	deal, ok := a.deals[id]
	a.mx.RUnlock()
	if ok {
		return deal, nil
	}
	return a.searchDealHistory(ctx, id)
}

func (a *Account) searchOrderHistory(ctx context.Context, id int64) (*Order, error) {
	now := time.Now()
	for window := 0; window < historyMaxWindows; window++ {
		to := now.Add(-time.Duration(window) * historyWindow)
		from := to.Add(-historyWindow)
		raw, err := a.conn.SendCommand(ctx, commandOrderList, paramsHistoryList{
			FromTimestamp: uint64(from.UnixMilli()),
			ToTimestamp:   uint64(to.UnixMilli()),
		}, "")
		if err != nil {
			return nil, errors.WithMessage(err, "ctrader: fail fetch order history")
		}
		var resp responseOrderList
		if err = jsoniter.Unmarshal(raw, &resp); err != nil {
			return nil, errors.WithMessage(err, "ctrader: fail parse order history")
		}
		if len(resp.Order) == 0 {
			break
		}
		var found *Order
		for i := range resp.Order {
			order, err := a.mergeHistoricalOrder(&resp.Order[i])
			if err != nil {
				return nil, err
			}
			if order.ID() == id {
				found = order
			}
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, ErrorNotFoundOrder
}

func (a *Account) searchDealHistory(ctx context.Context, id int64) (*Deal, error) {
	now := time.Now()
	for window := 0; window < historyMaxWindows; window++ {
		to := now.Add(-time.Duration(window) * historyWindow)
		from := to.Add(-historyWindow)
		raw, err := a.conn.SendCommand(ctx, commandDealList, paramsHistoryList{
			FromTimestamp: uint64(from.UnixMilli()),
			ToTimestamp:   uint64(to.UnixMilli()),
		}, "")
		if err != nil {
			return nil, errors.WithMessage(err, "ctrader: fail fetch deal history")
		}
		var resp responseDealList
		if err = jsoniter.Unmarshal(raw, &resp); err != nil {
			return nil, errors.WithMessage(err, "ctrader: fail parse deal history")
		}
		if len(resp.Deal) == 0 {
			break
		}
		var found *Deal
		for i := range resp.Deal {
			deal, err := a.normalizeDeal(&resp.Deal[i])
			if err != nil {
				return nil, err
			}
			if deal.ID == id {
				found = deal
			}
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, ErrorNotFoundDeal
}

// mergeHistoricalOrder folds a paged order into the cache. Historical orders
// are terminal snapshots, they never subscribe to the bus.
func (a *Account) mergeHistoricalOrder(wire *wireOrder) (*Order, error) {
	id, err := parseWireID(wire.OrderID)
	if err != nil {
		return nil, err
	}
	a.mx.RLock()
	order, ok := a.orders[id]
	a.mx.RUnlock()
	if !ok {
		order = &Order{account: a, logger: a.logger}
	}
	if err = order.applyWireOrder(&executionEvent{Order: wire}); err != nil {
		return nil, err
	}
	return order, nil
}
