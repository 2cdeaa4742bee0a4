package ctrader

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// mockConnection serves stubbed command responses and replays push events to
// the registered handlers, standing in for the websocket gate.
type mockConnection struct {
	mx       sync.Mutex
	nextID   ListenerHandle
	handlers map[string]map[ListenerHandle]func(json.RawMessage)
	byHandle map[ListenerHandle]string
	stubs    map[string]func(params interface{}, correlationID string) (json.RawMessage, error)
	calls    map[string]int
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		handlers: make(map[string]map[ListenerHandle]func(json.RawMessage)),
		byHandle: make(map[ListenerHandle]string),
		stubs:    make(map[string]func(params interface{}, correlationID string) (json.RawMessage, error)),
		calls:    make(map[string]int),
	}
}

func (c *mockConnection) stub(command string, fn func(params interface{}, correlationID string) (json.RawMessage, error)) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.stubs[command] = fn
}

// stubJSON serves a fixed response body for a command.
func (c *mockConnection) stubJSON(command, body string) {
	c.stub(command, func(interface{}, string) (json.RawMessage, error) {
		return json.RawMessage(body), nil
	})
}

func (c *mockConnection) callCount(command string) int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.calls[command]
}

func (c *mockConnection) Open(context.Context) error {
	return nil
}

func (c *mockConnection) SendCommand(ctx context.Context, command string, params interface{}, correlationID string) (json.RawMessage, error) {
	c.mx.Lock()
	c.calls[command]++
	fn, ok := c.stubs[command]
	c.mx.Unlock()
	if !ok {
		return nil, errors.New("unexpected command: " + command)
	}
	return fn(params, correlationID)
}

func (c *mockConnection) On(event string, handler func(payload json.RawMessage)) ListenerHandle {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[ListenerHandle]func(json.RawMessage))
	}
	c.handlers[event][c.nextID] = handler
	c.byHandle[c.nextID] = event
	return c.nextID
}

func (c *mockConnection) RemoveEventListener(handle ListenerHandle) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if event, ok := c.byHandle[handle]; ok {
		delete(c.handlers[event], handle)
		delete(c.byHandle, handle)
	}
}

func (c *mockConnection) Close() error {
	return nil
}

// emit pushes an event to every registered handler, the way the reader loop
// dispatches incoming frames.
func (c *mockConnection) emit(t *testing.T, event string, payload interface{}) {
	t.Helper()
	raw, err := jsoniter.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	c.mx.Lock()
	handlers := make([]func(json.RawMessage), 0, len(c.handlers[event]))
	for _, handler := range c.handlers[event] {
		handlers = append(handlers, handler)
	}
	c.mx.Unlock()
	for _, handler := range handlers {
		handler(raw)
	}
}

// newTestAccount builds an account around a mock connection with a small
// instrument universe preloaded, skipping the network bootstrap.
func newTestAccount(conn Connection) *Account {
	a := &Account{
		logger:         zap.NewNop(),
		conn:           conn,
		id:             1001,
		depositAssetID: 1,
		assetsByID:     make(map[int64]*Asset),
		assetsByName:   make(map[string]*Asset),
		symbolsByID:    make(map[int64]*Symbol),
		symbolsByName:  make(map[string]*Symbol),
		details:        make(map[int64]*SymbolDetails),
		detailsWait:    make(map[int64]chan struct{}),
		orders:         make(map[int64]*Order),
		ordersByToken:  make(map[string]*Order),
		deals:          make(map[int64]*Deal),
		positions:      make(map[int64]*Position),
		chains:         make(map[int64][]*Symbol),
		prices:         make(map[int64]PriceSnapshot),
		priceWaiters:   make(map[int64][]chan PriceSnapshot),
		spotRefs:       make(map[int64]int),
		bus:            newExecutionBus(),
	}
	a.serializer = newSerializer(a.logger, "account", a.handleExecution)

	for _, asset := range []*Asset{
		{ID: 1, Name: "USD"},
		{ID: 2, Name: "EUR"},
		{ID: 3, Name: "GBP"},
		{ID: 4, Name: "AUD"},
	} {
		a.assetsByID[asset.ID] = asset
		a.assetsByName[asset.Name] = asset
	}
	for _, symbol := range []*Symbol{
		{ID: 1, Name: "EURUSD", BaseAssetID: 2, QuoteAssetID: 1},
		{ID: 2, Name: "EURGBP", BaseAssetID: 2, QuoteAssetID: 3},
		{ID: 3, Name: "GBPAUD", BaseAssetID: 3, QuoteAssetID: 4},
		{ID: 4, Name: "USDAUD", BaseAssetID: 1, QuoteAssetID: 4},
	} {
		a.symbolsByID[symbol.ID] = symbol
		a.symbolsByName[symbol.Name] = symbol
		a.details[symbol.ID] = &SymbolDetails{
			SymbolID:    symbol.ID,
			LotSize:     lotSizeFromWire(10000000),
			MinLots:     lotsFromWire(100000, 10000000),
			MaxLots:     lotsFromWire(1000000000, 10000000),
			wireLotSize: 10000000,
		}
	}
	return a
}
