package ctrader

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const heartbeatPayloadType = "ProtoHeartbeatEvent"
const errorPayloadType = "ProtoOAErrorRes"

type wsFrame struct {
	PayloadType string          `json:"payloadType"`
	ClientMsgID string          `json:"clientMsgId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Token       string          `json:"token,omitempty"`
}

type wsErrorPayload struct {
	ErrorCode   string `json:"errorCode"`
	Description string `json:"description,omitempty"`
}

// commandCall is a pending correlated command round trip.
type commandCall struct {
	command string
	start   time.Time
	Reply   json.RawMessage
	Error   error
	Done    chan *commandCall
}

func (call *commandCall) done() {
	commandDurations.WithLabelValues(call.command).Observe(float64(time.Since(call.start) / time.Microsecond))
	select {
	case call.Done <- call:
		// ok
	default:
		// We don't want to block here; the Done channel has capacity for the
		// single resolution a correlated response can produce.
	}
}

type wsListener struct {
	event string
	fn    func(json.RawMessage)
}

// WsConnection implements Connection over a websocket carrying JSON frames
// with a payloadType and an optional clientMsgId correlation field.
type WsConnection struct {
	logger *zap.Logger
	config ConnectionConfig

	writeMx sync.Mutex
	soc     *websocket.Conn

	mx         sync.Mutex
	pending    map[string]*commandCall
	listeners  map[ListenerHandle]wsListener
	nextHandle uint64

	isReady uint32
	closed  chan struct{}
}

func NewWsConnection(logger *zap.Logger, config ConnectionConfig) *WsConnection {
	return &WsConnection{
		logger:    logger,
		config:    config,
		pending:   make(map[string]*commandCall),
		listeners: make(map[ListenerHandle]wsListener),
		closed:    make(chan struct{}),
	}
}

func (c *WsConnection) Open(ctx context.Context) error {
	soc, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.Addr, nil)
	if err != nil {
		return errors.WithMessage(err, "ctrader: fail dial "+c.config.Addr)
	}
	c.soc = soc
	atomic.StoreUint32(&c.isReady, 1)

	go c.readMessages()
	go c.heartbeatLoop()

	c.logger.Info("ctrader: connection open", zap.String("addr", c.config.Addr))
	return nil
}

func (c *WsConnection) IsReady() bool {
	return atomic.LoadUint32(&c.isReady) == 1
}

func (c *WsConnection) Close() error {
	if !c.IsReady() {
		return nil
	}
	atomic.StoreUint32(&c.isReady, 0)
	close(c.closed)
	return c.soc.Close()
}

// SendCommand sends a named command and blocks until the correlated response
// frame arrives. An empty correlationID gets a generated one.
func (c *WsConnection) SendCommand(ctx context.Context, command string, params interface{}, correlationID string) (json.RawMessage, error) {
	if !c.IsReady() {
		return nil, errors.New("ctrader: connection is not open")
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	payload, err := jsoniter.Marshal(params)
	if err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail marshal command "+command)
	}
	frame, err := jsoniter.Marshal(wsFrame{
		PayloadType: command,
		ClientMsgID: correlationID,
		Payload:     payload,
		Token:       c.config.Token,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail marshal frame "+command)
	}

	call := &commandCall{
		command: command,
		start:   time.Now(),
		Done:    make(chan *commandCall, 1),
	}
	c.mx.Lock()
	if _, duplicate := c.pending[correlationID]; duplicate {
		c.mx.Unlock()
		return nil, ErrorDuplicateCorrelation
	}
	c.pending[correlationID] = call
	c.mx.Unlock()
	defer func() {
		c.mx.Lock()
		delete(c.pending, correlationID)
		c.mx.Unlock()
	}()

	if err = c.write(frame); err != nil {
		return nil, errors.WithMessage(err, "ctrader: fail send command "+command)
	}

	select {
	case result := <-call.Done:
		return result.Reply, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errors.New("ctrader: connection closed")
	}
}

func (c *WsConnection) On(event string, handler func(payload json.RawMessage)) ListenerHandle {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.nextHandle++
	handle := ListenerHandle(c.nextHandle)
	c.listeners[handle] = wsListener{event: event, fn: handler}
	return handle
}

func (c *WsConnection) RemoveEventListener(handle ListenerHandle) {
	c.mx.Lock()
	defer c.mx.Unlock()
	delete(c.listeners, handle)
}

func (c *WsConnection) write(frame []byte) error {
	c.writeMx.Lock()
	defer c.writeMx.Unlock()
	return c.soc.WriteMessage(websocket.TextMessage, frame)
}

func (c *WsConnection) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()
	heartbeat, _ := jsoniter.Marshal(wsFrame{PayloadType: heartbeatPayloadType})
	for {
		select {
		case <-ticker.C:
			if err := c.write(heartbeat); err != nil {
				c.logger.Error("ctrader: fail send heartbeat", zap.Error(err))
			}
		case <-c.closed:
			return
		}
	}
}

func (c *WsConnection) readMessages() {
	for {
		_, msg, err := c.soc.ReadMessage()
		if err != nil {
			if c.IsReady() {
				c.logger.Error("ctrader: receive data error", zap.Error(err), zap.String("addr", c.config.Addr))
				atomic.StoreUint32(&c.isReady, 0)
			}
			c.failPending(errors.WithMessage(err, "ctrader: connection lost"))
			return
		}

		var frame wsFrame
		if err = jsoniter.Unmarshal(msg, &frame); err != nil {
			c.logger.Error("ctrader: fail parse frame", zap.Error(err), zap.ByteString("msg", msg))
			continue
		}
		if frame.PayloadType == heartbeatPayloadType {
			eventCounters.WithLabelValues("heartbeat").Inc()
			continue
		}

		if frame.ClientMsgID != "" && c.resolvePending(&frame) {
			continue
		}
		c.dispatch(&frame)
	}
}

func (c *WsConnection) resolvePending(frame *wsFrame) bool {
	c.mx.Lock()
	call, ok := c.pending[frame.ClientMsgID]
	if ok {
		delete(c.pending, frame.ClientMsgID)
	}
	c.mx.Unlock()
	if !ok {
		return false
	}

	if frame.PayloadType == errorPayloadType {
		var fail wsErrorPayload
		if err := jsoniter.Unmarshal(frame.Payload, &fail); err != nil {
			call.Error = errors.WithMessage(err, "ctrader: fail parse error response")
		} else {
			call.Error = errors.New("ctrader: command " + call.command + " rejected: " + fail.ErrorCode + " " + fail.Description)
		}
	} else {
		call.Reply = frame.Payload
	}
	call.done()
	return true
}

func (c *WsConnection) dispatch(frame *wsFrame) {
	c.mx.Lock()
	handlers := make([]func(json.RawMessage), 0, 1)
	for _, listener := range c.listeners {
		if listener.event == frame.PayloadType {
			handlers = append(handlers, listener.fn)
		}
	}
	c.mx.Unlock()

	if len(handlers) == 0 {
		eventCounters.WithLabelValues("unhandled").Inc()
		return
	}
	for _, fn := range handlers {
		fn(frame.Payload)
	}
}

func (c *WsConnection) failPending(err error) {
	c.mx.Lock()
	pending := c.pending
	c.pending = make(map[string]*commandCall)
	c.mx.Unlock()
	for _, call := range pending {
		call.Error = err
		call.done()
	}
}
