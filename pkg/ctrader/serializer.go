package ctrader

import (
	"sync"

	"go.uber.org/zap"
)

// serializer guarantees in-order, at-most-one-in-flight handling of
// asynchronous events for a single entity. A handler is allowed to block on
// further round trips; events arriving meanwhile are queued, never
// interleaved. A failing handler is logged and the queue keeps draining.
type serializer[T any] struct {
	logger  *zap.Logger
	entity  string
	handler func(T) error

	mx    sync.Mutex
	queue []T
	busy  bool
}

func newSerializer[T any](logger *zap.Logger, entity string, handler func(T) error) *serializer[T] {
	return &serializer[T]{
		logger:  logger,
		entity:  entity,
		handler: handler,
	}
}

func (s *serializer[T]) submit(ev T) {
	s.mx.Lock()
	s.queue = append(s.queue, ev)
	if s.busy {
		s.mx.Unlock()
		return
	}
	s.busy = true
	s.mx.Unlock()
	go s.drain()
}

// drain is iterative on purpose: a burst of events must not grow the stack.
func (s *serializer[T]) drain() {
	for {
		s.mx.Lock()
		if len(s.queue) == 0 {
			s.busy = false
			s.mx.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mx.Unlock()

		s.handle(ev)
	}
}

func (s *serializer[T]) handle(ev T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ctrader: event handler panic",
				zap.String("entity", s.entity), zap.Any("panic", r))
		}
	}()
	if err := s.handler(ev); err != nil {
		s.logger.Error("ctrader: event handler fail",
			zap.String("entity", s.entity), zap.Error(err))
	}
}
