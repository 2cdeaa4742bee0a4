package ctrader

import "github.com/shopspring/decimal"

// Wire numeric convention, must stay bit-exact:
//   - monetary amounts and volumes are integers scaled x100;
//   - prices are integers scaled x100000;
//   - lot size is an integer scaled x100;
//   - trendbar open/high/low/close are delta-encoded against the base low,
//     deltas scaled x100000.

func moneyFromCents(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func priceFromWire(v int64) decimal.Decimal {
	return decimal.New(v, -5)
}

func priceToWire(d decimal.Decimal) int64 {
	return d.Shift(5).IntPart()
}

func volumeFromWire(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func lotSizeFromWire(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// lotsFromWire converts a wire volume into lots. Both operands carry the
// same x100 scale, so the ratio needs no rescaling.
func lotsFromWire(volume, lotSize int64) decimal.Decimal {
	return decimal.New(volume, 0).Div(decimal.New(lotSize, 0))
}

func lotsToWire(lots decimal.Decimal, lotSize int64) int64 {
	return lots.Mul(decimal.New(lotSize, 0)).IntPart()
}
