package ctrader

import (
	"time"

	"github.com/pkg/errors"
)

// Wire to domain mapping tables. Deterministic and fixed for the lifetime of
// the process; an unrecognized code is a local invariant violation and fails
// the operation that hit it.

func isMarketOrderType(orderType string) bool {
	return orderType == wireOrderTypeMarket || orderType == wireOrderTypeMarketRange
}

// normalizeOrderStatus maps a wire order status together with the order
// type: an accepted non-market order is PENDING, an accepted market order is
// ACCEPTED.
func normalizeOrderStatus(status, orderType string) (OrderStatus, error) {
	switch status {
	case wireOrderStatusAccepted:
		if isMarketOrderType(orderType) {
			return OrderStatusAccepted, nil
		}
		return OrderStatusPending, nil
	case wireOrderStatusFilled:
		return OrderStatusExecuted, nil
	case wireOrderStatusRejected:
		return OrderStatusRejected, nil
	case wireOrderStatusExpired:
		return OrderStatusExpired, nil
	case wireOrderStatusCancelled:
		return OrderStatusCancelled, nil
	}
	return 0, errors.New("ctrader: unsupported wire order status: " + status)
}

func normalizeDealStatus(status string) (DealStatus, RejectReason, error) {
	switch status {
	case wireDealStatusFilled, wireDealStatusPartiallyFilled:
		return DealStatusExecuted, RejectUnknown, nil
	case wireDealStatusMissed:
		return DealStatusRejected, RejectMissed, nil
	case wireDealStatusRejected:
		return DealStatusRejected, RejectNoLiquidity, nil
	case wireDealStatusError, wireDealStatusInternalReject:
		return DealStatusRejected, RejectUnknown, nil
	}
	return 0, 0, errors.New("ctrader: unsupported wire deal status: " + status)
}

func normalizeOrderPurpose(wire *wireOrder) OrderPurpose {
	if wire.ClosingOrder {
		return PurposeClose
	}
	return PurposeOpen
}

func normalizeDealPurpose(wire *wireDeal) OrderPurpose {
	if wire.ClosePositionDetail != nil {
		return PurposeClose
	}
	return PurposeOpen
}

func normalizePositionStatus(status string) (PositionStatus, error) {
	switch status {
	case wirePositionStatusOpen:
		return PositionStatusOpen, nil
	case wirePositionStatusClosed:
		return PositionStatusClosed, nil
	}
	return 0, errors.New("ctrader: unsupported wire position status: " + status)
}

// normalizeDeal converts a raw deal and merges it into the cache. The cached
// entity is replaced, never mutated in place: a *Deal handed out earlier stays
// a frozen snapshot even while the account, order and position serializers
// process the same fill concurrently.
func (a *Account) normalizeDeal(wire *wireDeal) (*Deal, error) {
	id, err := parseWireID(wire.DealID)
	if err != nil {
		return nil, err
	}
	orderID, err := parseWireID(wire.OrderID)
	if err != nil {
		return nil, err
	}
	positionID, err := parseWireID(wire.PositionID)
	if err != nil {
		return nil, err
	}
	direction, err := DirectionStrToType(wire.TradeSide)
	if err != nil {
		return nil, err
	}
	status, rejection, err := normalizeDealStatus(wire.DealStatus)
	if err != nil {
		return nil, err
	}

	deal := &Deal{
		ID:             id,
		OrderID:        orderID,
		PositionID:     positionID,
		SymbolID:       wire.SymbolID,
		Direction:      direction,
		Status:         status,
		Rejection:      rejection,
		Purpose:        normalizeDealPurpose(wire),
		Volume:         volumeFromWire(wire.Volume),
		FilledVolume:   volumeFromWire(wire.FilledVolume),
		ExecutionPrice: priceFromWire(wire.ExecutionPrice),
		Commission:     moneyFromCents(wire.Commission),
		ExecutedAt:     time.UnixMilli(int64(wire.ExecutionTimestamp)).UTC(),
	}
	if detail := wire.ClosePositionDetail; detail != nil {
		deal.Swap = moneyFromCents(detail.Swap)
		deal.GrossProfit = moneyFromCents(detail.GrossProfit)
		if detail.Commission != 0 {
			deal.Commission = moneyFromCents(detail.Commission)
		}
	}

	a.mx.Lock()
	defer a.mx.Unlock()
	// a replay without the close detail must not erase the close monetaries
	// already learned for this deal
	if prior, ok := a.deals[id]; ok && wire.ClosePositionDetail == nil {
		deal.Swap = prior.Swap
		deal.GrossProfit = prior.GrossProfit
	}
	a.deals[id] = deal
	return deal, nil
}
