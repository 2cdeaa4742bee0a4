package ctrader

import (
	"errors"
	"strconv"
)

// OrderPurpose tells whether an order opens (or increases) exposure or
// closes (or reduces) an existing position.
type OrderPurpose uint8

const (
	PurposeOpen OrderPurpose = iota
	PurposeClose

	purposeOpenStr  = "open"
	purposeCloseStr = "close"
)

func (p OrderPurpose) String() string {
	switch p {
	case PurposeOpen:
		return purposeOpenStr
	case PurposeClose:
		return purposeCloseStr
	}
	panic("invalid order purpose string conversion" + strconv.Itoa(int(p)))
}

func PurposeStrToType(value string) (OrderPurpose, error) {
	switch value {
	case purposeOpenStr:
		return PurposeOpen, nil
	case purposeCloseStr:
		return PurposeClose, nil
	}
	return 0, errors.New("unsupported order purpose: " + value)
}

type PositionStatus uint8

const (
	PositionStatusOpen PositionStatus = iota
	PositionStatusClosed

	positionStatusOpenStr   = "open"
	positionStatusClosedStr = "closed"
)

func (ps PositionStatus) String() string {
	switch ps {
	case PositionStatusOpen:
		return positionStatusOpenStr
	case PositionStatusClosed:
		return positionStatusClosedStr
	}
	panic("invalid position status string conversion" + strconv.Itoa(int(ps)))
}

type DealStatus uint8

const (
	DealStatusExecuted DealStatus = iota
	DealStatusRejected

	dealStatusExecutedStr = "executed"
	dealStatusRejectedStr = "rejected"
)

func (ds DealStatus) String() string {
	switch ds {
	case DealStatusExecuted:
		return dealStatusExecutedStr
	case DealStatusRejected:
		return dealStatusRejectedStr
	}
	panic("invalid deal status string conversion" + strconv.Itoa(int(ds)))
}
