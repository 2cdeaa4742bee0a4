package ctrader

import (
	"log"
	"sync/atomic"
	"time"
)

var nextCallID uint64

// orderCall is the handle returned by order placement. It resolves once the
// order reaches one of the configured lifecycle statuses.
type orderCall struct {
	id    uint64
	start time.Time
	Reply *Order
	Error error
	Done  chan *orderCall
}

func (call *orderCall) done() {
	placementDurations.Observe(float64(time.Since(call.start) / time.Microsecond))
	select {
	case call.Done <- call:
		// ok
	default:
		// We don't want to block here. The Done channel carries capacity for
		// exactly one resolution; a second fire means the call already
		// resolved earlier.
		log.Println("ctrader: discarding orderCall reply, call already resolved")
	}
}

func createOrderCall() *orderCall {
	return &orderCall{
		id:    atomic.AddUint64(&nextCallID, 1),
		start: time.Now(),
		Done:  make(chan *orderCall, 1),
	}
}

// defaultResolveStatuses is the default event subset that resolves a
// placement call: any terminal status plus PENDING for resting orders.
func defaultResolveStatuses() map[OrderStatus]struct{} {
	return map[OrderStatus]struct{}{
		OrderStatusPending:   {},
		OrderStatusExecuted:  {},
		OrderStatusRejected:  {},
		OrderStatusCancelled: {},
		OrderStatusExpired:   {},
	}
}
