package ctrader

type RejectReason uint8

const (
	RejectUnknown RejectReason = iota
	RejectMarketClosed
	RejectSymbolNotFound
	RejectTradingDisabled
	RejectInsufficientFunds
	RejectInvalidVolume
	RejectNoLiquidity
	RejectMissed
)

var rejectMapping = map[RejectReason]string{
	RejectUnknown:           "unknown",
	RejectMarketClosed:      wireRejectMarketClosed,
	RejectSymbolNotFound:    wireRejectSymbolNotFound,
	RejectTradingDisabled:   wireRejectTradingDisabled,
	RejectInsufficientFunds: wireRejectNotEnoughMoney,
	RejectInvalidVolume:     wireRejectInvalidVolume,
	RejectNoLiquidity:       wireRejectNoLiquidity,
	RejectMissed:            wireRejectMissed,
}

func (r RejectReason) String() string {
	return rejectMapping[r]
}

var rejectUnMapping = map[string]RejectReason{
	wireRejectMarketClosed:    RejectMarketClosed,
	wireRejectSymbolNotFound:  RejectSymbolNotFound,
	wireRejectTradingDisabled: RejectTradingDisabled,
	wireRejectNotEnoughMoney:  RejectInsufficientFunds,
	wireRejectInvalidVolume:   RejectInvalidVolume,
	wireRejectNoLiquidity:     RejectNoLiquidity,
	wireRejectMissed:          RejectMissed,
}

// getRejectByCode collapses every unmapped wire code to RejectUnknown; the
// caller is expected to count it via rejectCounters, never to fail on it.
func getRejectByCode(code string) RejectReason {
	if r, ok := rejectUnMapping[code]; ok {
		return r
	}
	return RejectUnknown
}

const (
	wireRejectMarketClosed    = "MARKET_CLOSED"
	wireRejectSymbolNotFound  = "SYMBOL_NOT_FOUND"
	wireRejectTradingDisabled = "TRADING_DISABLED"
	wireRejectNotEnoughMoney  = "NOT_ENOUGH_MONEY"
	wireRejectInvalidVolume   = "INVALID_VOLUME"
	wireRejectNoLiquidity     = "NO_LIQUIDITY"
	wireRejectMissed          = "MISSED"
)
