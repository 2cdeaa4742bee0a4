package ctrader

import (
	"bytes"
	"errors"
	"strconv"
)

type OrderStatus uint8

const (
	OrderStatusRequested OrderStatus = iota
	OrderStatusAccepted
	OrderStatusPending
	OrderStatusPartiallyFilled
	OrderStatusExecuted
	OrderStatusRejected
	OrderStatusCancelled
	OrderStatusExpired

	orderStatusRequestedStr       = "requested"
	orderStatusAcceptedStr        = "accepted"
	orderStatusPendingStr         = "pending"
	orderStatusPartiallyFilledStr = "partiallyFilled"
	orderStatusExecutedStr        = "executed"
	orderStatusRejectedStr        = "rejected"
	orderStatusCancelledStr       = "cancelled"
	orderStatusExpiredStr         = "expired"
)

var (
	orderStatusRequestedBytes       = []byte(`"requested"`)
	orderStatusAcceptedBytes        = []byte(`"accepted"`)
	orderStatusPendingBytes         = []byte(`"pending"`)
	orderStatusPartiallyFilledBytes = []byte(`"partiallyFilled"`)
	orderStatusExecutedBytes        = []byte(`"executed"`)
	orderStatusRejectedBytes        = []byte(`"rejected"`)
	orderStatusCancelledBytes       = []byte(`"cancelled"`)
	orderStatusExpiredBytes         = []byte(`"expired"`)
)

// IsTerminal reports whether no further lifecycle event can follow.
func (os OrderStatus) IsTerminal() bool {
	return os == OrderStatusExecuted ||
		os == OrderStatusRejected ||
		os == OrderStatusCancelled ||
		os == OrderStatusExpired
}

func (os OrderStatus) String() string {
	switch os {
	case OrderStatusRequested:
		return orderStatusRequestedStr
	case OrderStatusAccepted:
		return orderStatusAcceptedStr
	case OrderStatusPending:
		return orderStatusPendingStr
	case OrderStatusPartiallyFilled:
		return orderStatusPartiallyFilledStr
	case OrderStatusExecuted:
		return orderStatusExecutedStr
	case OrderStatusRejected:
		return orderStatusRejectedStr
	case OrderStatusCancelled:
		return orderStatusCancelledStr
	case OrderStatusExpired:
		return orderStatusExpiredStr
	}
	panic("invalid order status string conversion" + strconv.Itoa(int(os)))
}

func (os OrderStatus) MarshalJSON() ([]byte, error) {
	switch os {
	case OrderStatusRequested:
		return orderStatusRequestedBytes, nil
	case OrderStatusAccepted:
		return orderStatusAcceptedBytes, nil
	case OrderStatusPending:
		return orderStatusPendingBytes, nil
	case OrderStatusPartiallyFilled:
		return orderStatusPartiallyFilledBytes, nil
	case OrderStatusExecuted:
		return orderStatusExecutedBytes, nil
	case OrderStatusRejected:
		return orderStatusRejectedBytes, nil
	case OrderStatusCancelled:
		return orderStatusCancelledBytes, nil
	case OrderStatusExpired:
		return orderStatusExpiredBytes, nil
	}
	return nil, errors.New("invalid order status json conversion: " + strconv.Itoa(int(os)))
}

func (os *OrderStatus) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, orderStatusRequestedBytes) {
		*os = OrderStatusRequested
		return nil
	}
	if bytes.Equal(data, orderStatusAcceptedBytes) {
		*os = OrderStatusAccepted
		return nil
	}
	if bytes.Equal(data, orderStatusPendingBytes) {
		*os = OrderStatusPending
		return nil
	}
	if bytes.Equal(data, orderStatusPartiallyFilledBytes) {
		*os = OrderStatusPartiallyFilled
		return nil
	}
	if bytes.Equal(data, orderStatusExecutedBytes) {
		*os = OrderStatusExecuted
		return nil
	}
	if bytes.Equal(data, orderStatusRejectedBytes) {
		*os = OrderStatusRejected
		return nil
	}
	if bytes.Equal(data, orderStatusCancelledBytes) {
		*os = OrderStatusCancelled
		return nil
	}
	if bytes.Equal(data, orderStatusExpiredBytes) {
		*os = OrderStatusExpired
		return nil
	}
	return errors.New("unsupported order status: " + string(data))
}

func OrderStatusStrToType(value string) (OrderStatus, error) {
	switch value {
	case orderStatusRequestedStr:
		return OrderStatusRequested, nil
	case orderStatusAcceptedStr:
		return OrderStatusAccepted, nil
	case orderStatusPendingStr:
		return OrderStatusPending, nil
	case orderStatusPartiallyFilledStr:
		return OrderStatusPartiallyFilled, nil
	case orderStatusExecutedStr:
		return OrderStatusExecuted, nil
	case orderStatusRejectedStr:
		return OrderStatusRejected, nil
	case orderStatusCancelledStr:
		return OrderStatusCancelled, nil
	case orderStatusExpiredStr:
		return OrderStatusExpired, nil
	}
	return 0, errors.New("unsupported order status: " + value)
}
