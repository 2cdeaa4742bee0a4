package ctrader

import (
	"bytes"
	"errors"
	"strconv"
)

type TradeDirection uint8

const (
	DirectionSell TradeDirection = iota
	DirectionBuy

	directionSellStr = "SELL"
	directionBuyStr  = "BUY"
)

var (
	directionSellBytes = []byte(`"SELL"`)
	directionBuyBytes  = []byte(`"BUY"`)
)

// Opposite returns the counter direction, used to tell an exposure-reducing
// order from an exposure-increasing one.
func (d TradeDirection) Opposite() TradeDirection {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

func (d TradeDirection) String() string {
	switch d {
	case DirectionSell:
		return directionSellStr
	case DirectionBuy:
		return directionBuyStr
	}
	panic("invalid trade direction string conversion" + strconv.Itoa(int(d)))
}

func (d TradeDirection) MarshalJSON() ([]byte, error) {
	switch d {
	case DirectionSell:
		return directionSellBytes, nil
	case DirectionBuy:
		return directionBuyBytes, nil
	}
	return nil, errors.New("invalid trade direction json conversion: " + strconv.Itoa(int(d)))
}

func (d *TradeDirection) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, directionSellBytes) {
		*d = DirectionSell
		return nil
	}
	if bytes.Equal(data, directionBuyBytes) {
		*d = DirectionBuy
		return nil
	}
	return errors.New("unsupported trade direction: " + string(data))
}

func DirectionStrToType(value string) (TradeDirection, error) {
	switch value {
	case directionSellStr:
		return DirectionSell, nil
	case directionBuyStr:
		return DirectionBuy, nil
	}
	return 0, errors.New("unsupported trade direction: " + value)
}
