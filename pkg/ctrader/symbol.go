package ctrader

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Asset struct {
	ID   int64
	Name string
}

// Symbol is the raw instrument descriptor delivered by the symbol list.
// The complete descriptor (lot size, volume limits, schedule) is fetched
// lazily, at most once, see Account.SymbolDetails.
type Symbol struct {
	ID           int64
	Name         string
	BaseAssetID  int64
	QuoteAssetID int64
}

type ScheduleInterval struct {
	// Seconds from the start of the trading week.
	StartSecond uint32
	EndSecond   uint32
}

type SymbolDetails struct {
	SymbolID    int64
	LotSize     decimal.Decimal
	MinLots     decimal.Decimal
	MaxLots     decimal.Decimal
	Schedule    []ScheduleInterval
	wireLotSize int64
}

type Bar struct {
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// Asset resolves an asset by name.
func (a *Account) Asset(name string) (*Asset, error) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	asset, ok := a.assetsByName[name]
	if !ok {
		return nil, ErrorNotFoundAsset
	}
	return asset, nil
}

// AssetByID resolves an asset by id.
func (a *Account) AssetByID(id int64) (*Asset, error) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	asset, ok := a.assetsByID[id]
	if !ok {
		return nil, ErrorNotFoundAsset
	}
	return asset, nil
}

func (a *Account) Symbol(name string) (*Symbol, error) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	symbol, ok := a.symbolsByName[name]
	if !ok {
		return nil, ErrorNotFoundSymbol
	}
	return symbol, nil
}

func (a *Account) SymbolByID(id int64) (*Symbol, error) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	symbol, ok := a.symbolsByID[id]
	if !ok {
		return nil, ErrorNotFoundSymbol
	}
	return symbol, nil
}

// SymbolDetails returns the complete descriptor for a symbol, fetching it on
// first use. Concurrent callers share one in-flight fetch. The cached entry
// lives until a symbol-changed push evicts it.
func (a *Account) SymbolDetails(ctx context.Context, symbolID int64) (*SymbolDetails, error) {
	for {
		a.mx.Lock()
		if details, ok := a.details[symbolID]; ok {
			a.mx.Unlock()
			return details, nil
		}
		wait, inFlight := a.detailsWait[symbolID]
		if !inFlight {
			wait = make(chan struct{})
			a.detailsWait[symbolID] = wait
		}
		a.mx.Unlock()

		if inFlight {
			select {
			case <-wait:
				// The fetch owner finished; retry against the cache. A miss
				// here means the owner failed, and this caller takes over.
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		details, err := a.fetchSymbolDetails(ctx, symbolID)

		a.mx.Lock()
		if err == nil {
			a.details[symbolID] = details
		}
		delete(a.detailsWait, symbolID)
		close(wait)
		a.mx.Unlock()

		return details, err
	}
}

func (a *Account) fetchSymbolDetails(ctx context.Context, symbolID int64) (*SymbolDetails, error) {
	raw, err := a.conn.SendCommand(ctx, commandSymbolByID, paramsSymbolByID{SymbolID: []int64{symbolID}}, "")
	if err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail fetch symbol details")
	}
	var resp responseSymbolByID
	if err = jsoniter.Unmarshal(raw, &resp); err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail parse symbol details")
	}
	if len(resp.Symbol) == 0 {
		return nil, ErrorNotFoundSymbol
	}
	wire := resp.Symbol[0]
	details := &SymbolDetails{
		SymbolID:    wire.SymbolID,
		LotSize:     lotSizeFromWire(wire.LotSize),
		MinLots:     lotsFromWire(wire.MinVolume, wire.LotSize),
		MaxLots:     lotsFromWire(wire.MaxVolume, wire.LotSize),
		wireLotSize: wire.LotSize,
	}
	for _, interval := range wire.Schedule {
		details.Schedule = append(details.Schedule, ScheduleInterval{
			StartSecond: interval.StartSecond,
			EndSecond:   interval.EndSecond,
		})
	}
	return details, nil
}

// evictSymbolDetails drops cached complete descriptors after a
// symbol-changed push. The next SymbolDetails call refetches.
func (a *Account) evictSymbolDetails(symbolIDs []int64) {
	a.mx.Lock()
	defer a.mx.Unlock()
	for _, id := range symbolIDs {
		if _, ok := a.details[id]; ok {
			a.logger.Info("ctrader: evict symbol details", zap.Int64("symbol", id))
			delete(a.details, id)
		}
	}
}

// PeriodBars fetches historical candles. Bars arrive delta-encoded against
// the base low value and are reconstructed here.
func (a *Account) PeriodBars(ctx context.Context, symbolName, period string, from, to time.Time) ([]Bar, error) {
	symbol, err := a.Symbol(symbolName)
	if err != nil {
		return nil, err
	}
	raw, err := a.conn.SendCommand(ctx, commandTrendbars, paramsTrendbars{
		SymbolID:      symbol.ID,
		Period:        period,
		FromTimestamp: uint64(from.UnixMilli()),
		ToTimestamp:   uint64(to.UnixMilli()),
	}, "")
	if err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail fetch trendbars")
	}
	var resp responseTrendbars
	if err = jsoniter.Unmarshal(raw, &resp); err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail parse trendbars")
	}
	bars := make([]Bar, 0, len(resp.Trendbar))
	for _, wire := range resp.Trendbar {
		bars = append(bars, normalizeTrendbar(wire))
	}
	return bars, nil
}

func normalizeTrendbar(wire wireTrendbar) Bar {
	return Bar{
		Open:      priceFromWire(wire.Low + wire.DeltaOpen),
		High:      priceFromWire(wire.Low + wire.DeltaHigh),
		Low:       priceFromWire(wire.Low + wire.DeltaLow),
		Close:     priceFromWire(wire.Low + wire.DeltaClose),
		Volume:    volumeFromWire(wire.Volume),
		Timestamp: time.Unix(wire.UtcTimestampInMinutes*60, 0).UTC(),
	}
}
