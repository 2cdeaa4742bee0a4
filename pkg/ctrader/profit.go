package ctrader

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var decimalOne = decimal.NewFromInt(1)
var decimalTwo = decimal.NewFromInt(2)

// grossProfit is the raw unrealized profit in the symbol's quote currency:
// (close-open)*units for a long position, (open-close)*units for a short
// one. closePrice must already be the execution side: bid for long, ask for
// short.
func grossProfit(direction TradeDirection, openPrice, closePrice, units decimal.Decimal) decimal.Decimal {
	if direction == DirectionBuy {
		return closePrice.Sub(openPrice).Mul(units)
	}
	return openPrice.Sub(closePrice).Mul(units)
}

// conversionChain resolves the ordered symbol list bridging the quote asset
// of a symbol to the account's deposit asset. Resolved once per symbol and
// cached for the session.
func (a *Account) conversionChain(ctx context.Context, symbol *Symbol) ([]*Symbol, error) {
	a.mx.RLock()
	chain, ok := a.chains[symbol.ID]
	a.mx.RUnlock()
	if ok {
		return chain, nil
	}

	raw, err := a.conn.SendCommand(ctx, commandConversionChain, paramsConversionChain{
		FirstAssetID: symbol.QuoteAssetID,
		LastAssetID:  a.depositAssetID,
	}, "")
	if err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail fetch conversion chain")
	}
	var resp responseConversionChain
	if err = jsoniter.Unmarshal(raw, &resp); err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail parse conversion chain")
	}

	chain = make([]*Symbol, 0, len(resp.Symbol))
	for _, wire := range resp.Symbol {
		link, err := a.SymbolByID(wire.SymbolID)
		if err != nil {
			link = &Symbol{
				ID:           wire.SymbolID,
				Name:         wire.SymbolName,
				BaseAssetID:  wire.BaseAssetID,
				QuoteAssetID: wire.QuoteAssetID,
			}
		}
		chain = append(chain, link)
	}

	a.mx.Lock()
	a.chains[symbol.ID] = chain
	a.mx.Unlock()
	return chain, nil
}

// conversionRate walks the cached chain starting from the symbol's quote
// asset: a link traversed base to quote multiplies by its ask, a link
// traversed against its direction multiplies by the reciprocal.
func (a *Account) conversionRate(ctx context.Context, symbol *Symbol) (decimal.Decimal, error) {
	if symbol.QuoteAssetID == a.depositAssetID {
		return decimalOne, nil
	}
	chain, err := a.conversionChain(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	rate := decimalOne
	asset := symbol.QuoteAssetID
	for _, link := range chain {
		snapshot, err := a.symbolPriceByID(ctx, link.ID)
		if err != nil {
			return decimal.Decimal{}, err
		}
		if link.BaseAssetID == asset {
			rate = rate.Mul(snapshot.Ask)
			asset = link.QuoteAssetID
		} else {
			rate = rate.Mul(decimalOne.Div(snapshot.Ask))
			asset = link.BaseAssetID
		}
	}
	return rate, nil
}

// UnrealizedGrossProfit derives the current gross profit in the deposit
// currency, priced on the execution side: bid closes a long, ask closes a
// short.
func (p *Position) UnrealizedGrossProfit(ctx context.Context) (decimal.Decimal, error) {
	snapshot, err := p.account.symbolPriceByID(ctx, p.symbol.ID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	p.mx.RLock()
	direction := p.direction
	openPrice := p.openPrice
	units := p.volume
	p.mx.RUnlock()

	closePrice := snapshot.Bid
	if direction == DirectionSell {
		closePrice = snapshot.Ask
	}

	raw := grossProfit(direction, openPrice, closePrice, units)
	rate, err := p.account.conversionRate(ctx, p.symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return raw.Mul(rate), nil
}

// UnrealizedNetProfit adds the stored commission twice (it is charged at
// open and at close but stored once) and the accumulated swap.
func (p *Position) UnrealizedNetProfit(ctx context.Context) (decimal.Decimal, error) {
	gross, err := p.UnrealizedGrossProfit(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	p.mx.RLock()
	commission := p.commission
	swap := p.swap
	p.mx.RUnlock()
	return gross.Add(commission.Mul(decimalTwo)).Add(swap), nil
}

// RequiredMargin derives the margin for the position's open exposure at the
// indicative account leverage, converted to the deposit currency.
func (p *Position) RequiredMargin(ctx context.Context) (decimal.Decimal, error) {
	rate, err := p.account.conversionRate(ctx, p.symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	p.mx.RLock()
	notional := p.volume.Mul(p.openPrice)
	p.mx.RUnlock()
	if p.account.leverage.IsZero() {
		return notional.Mul(rate), nil
	}
	return notional.Mul(rate).Div(p.account.leverage), nil
}
