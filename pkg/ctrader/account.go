package ctrader

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const commandTimeout = 10 * time.Second

type AccountMode uint8

const (
	ModeHedged AccountMode = iota
	ModeNetted

	wireAccountTypeHedged = "HEDGED"
	wireAccountTypeNetted = "NETTED"
)

func accountModeStrToType(value string) (AccountMode, error) {
	switch value {
	case wireAccountTypeHedged:
		return ModeHedged, nil
	case wireAccountTypeNetted:
		return ModeNetted, nil
	}
	return 0, errors.New("ctrader: unsupported account type: " + value)
}

// Account mirrors the server-side state of one trading account. All cached
// maps are owned here and mutated from serialized handlers or preload steps
// only; live order and position entities consume the account bus.
type Account struct {
	logger *zap.Logger
	conn   Connection

	id             int64
	mode           AccountMode
	leverage       decimal.Decimal
	depositAssetID int64

	mx            sync.RWMutex
	assetsByID    map[int64]*Asset
	assetsByName  map[string]*Asset
	symbolsByID   map[int64]*Symbol
	symbolsByName map[string]*Symbol
	details       map[int64]*SymbolDetails
	detailsWait   map[int64]chan struct{}
	orders        map[int64]*Order
	ordersByToken map[string]*Order
	deals         map[int64]*Deal
	positions     map[int64]*Position
	chains        map[int64][]*Symbol
	balance       decimal.Decimal

	priceMx      sync.Mutex
	prices       map[int64]PriceSnapshot
	priceWaiters map[int64][]chan PriceSnapshot
	spotRefs     map[int64]int

	serializer *serializer[*executionEvent]
	bus        *executionBus
	handles    []ListenerHandle
}

// OpenAccount resolves the trader descriptor, preloads assets, symbols and
// open positions concurrently, and starts consuming push events. The account
// is ready for queries when this returns.
func OpenAccount(ctx context.Context, logger *zap.Logger, conn Connection, accountID int64) (*Account, error) {
	a := &Account{
		logger:        logger,
		conn:          conn,
		id:            accountID,
		assetsByID:    make(map[int64]*Asset),
		assetsByName:  make(map[string]*Asset),
		symbolsByID:   make(map[int64]*Symbol),
		symbolsByName: make(map[string]*Symbol),
		details:       make(map[int64]*SymbolDetails),
		detailsWait:   make(map[int64]chan struct{}),
		orders:        make(map[int64]*Order),
		ordersByToken: make(map[string]*Order),
		deals:         make(map[int64]*Deal),
		positions:     make(map[int64]*Position),
		chains:        make(map[int64][]*Symbol),
		prices:        make(map[int64]PriceSnapshot),
		priceWaiters:  make(map[int64][]chan PriceSnapshot),
		spotRefs:      make(map[int64]int),
		bus:           newExecutionBus(),
	}
	a.serializer = newSerializer(logger, "account", a.handleExecution)

	if err := a.loadTrader(ctx); err != nil {
		return nil, err
	}
	if err := a.preload(ctx); err != nil {
		return nil, err
	}

	a.handles = append(a.handles,
		conn.On(eventExecution, a.onExecution),
		conn.On(eventSpot, a.onSpot),
		conn.On(eventOrderError, a.onOrderError),
		conn.On(eventMarginChanged, a.onMarginChanged),
		conn.On(eventSymbolChanged, a.onSymbolChanged),
	)
	return a, nil
}

// Close detaches the account from the connection push stream. Cached state
// stays readable; the session is simply dropped.
func (a *Account) Close() {
	for _, handle := range a.handles {
		a.conn.RemoveEventListener(handle)
	}
	a.handles = nil
}

func (a *Account) ID() int64 {
	return a.id
}

func (a *Account) Mode() AccountMode {
	return a.mode
}

func (a *Account) Leverage() decimal.Decimal {
	return a.leverage
}

func (a *Account) DepositAssetID() int64 {
	return a.depositAssetID
}

func (a *Account) loadTrader(ctx context.Context) error {
	raw, err := a.conn.SendCommand(ctx, commandTraderInfo, paramsTraderInfo{AccountID: a.id}, "")
	if err != nil {
		return errors.WithMessage(err, "ctrader: fail fetch trader")
	}
	var resp responseTraderInfo
	if err = jsoniter.Unmarshal(raw, &resp); err != nil {
		return errors.WithMessage(err, "ctrader: fail parse trader")
	}
	if resp.Trader == nil {
		return ErrorNotFoundAccount
	}
	mode, err := accountModeStrToType(resp.Trader.AccountType)
	if err != nil {
		return err
	}
	a.mode = mode
	a.depositAssetID = resp.Trader.DepositAssetID
	a.leverage = moneyFromCents(resp.Trader.LeverageInCents)

	a.mx.Lock()
	a.balance = moneyFromCents(resp.Trader.Balance)
	a.mx.Unlock()
	return nil
}

// preload fetches assets, symbols and the open state concurrently. The
// reconcile payload is applied only after the symbol cache is populated,
// since position entities resolve their symbol during construction.
func (a *Account) preload(ctx context.Context) error {
	var wg sync.WaitGroup
	var reconcile responseReconcile
	errs := make([]error, 3)
	steps := []func(context.Context) error{
		a.loadAssets,
		a.loadSymbols,
		func(ctx context.Context) error {
			return a.fetchOpenState(ctx, &reconcile)
		},
	}
	for i, step := range steps {
		wg.Add(1)
		go func(i int, step func(context.Context) error) {
			defer wg.Done()
			errs[i] = step(ctx)
		}(i, step)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return a.applyOpenState(ctx, &reconcile)
}

func (a *Account) loadAssets(ctx context.Context) error {
	raw, err := a.conn.SendCommand(ctx, commandAssetList, struct{}{}, "")
	if err != nil {
		return errors.WithMessage(err, "ctrader: fail fetch assets")
	}
	var resp responseAssetList
	if err = jsoniter.Unmarshal(raw, &resp); err != nil {
		return errors.WithMessage(err, "ctrader: fail parse assets")
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	for _, wire := range resp.Asset {
		asset := &Asset{ID: wire.AssetID, Name: wire.Name}
		a.assetsByID[asset.ID] = asset
		a.assetsByName[asset.Name] = asset
	}
	return nil
}

func (a *Account) loadSymbols(ctx context.Context) error {
	raw, err := a.conn.SendCommand(ctx, commandSymbolList, struct{}{}, "")
	if err != nil {
		return errors.WithMessage(err, "ctrader: fail fetch symbols")
	}
	var resp responseSymbolList
	if err = jsoniter.Unmarshal(raw, &resp); err != nil {
		return errors.WithMessage(err, "ctrader: fail parse symbols")
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	for _, wire := range resp.Symbol {
		symbol := &Symbol{
			ID:           wire.SymbolID,
			Name:         wire.SymbolName,
			BaseAssetID:  wire.BaseAssetID,
			QuoteAssetID: wire.QuoteAssetID,
		}
		a.symbolsByID[symbol.ID] = symbol
		a.symbolsByName[symbol.Name] = symbol
	}
	return nil
}

func (a *Account) fetchOpenState(ctx context.Context, resp *responseReconcile) error {
	raw, err := a.conn.SendCommand(ctx, commandReconcile, struct{}{}, "")
	if err != nil {
		return errors.WithMessage(err, "ctrader: fail reconcile")
	}
	if err = jsoniter.Unmarshal(raw, resp); err != nil {
		return errors.WithMessage(err, "ctrader: fail parse reconcile")
	}
	return nil
}

// applyOpenState reconciles currently open positions and resting orders.
func (a *Account) applyOpenState(ctx context.Context, resp *responseReconcile) error {
	for i := range resp.Position {
		wire := &resp.Position[i]
		id, err := parseWireID(wire.PositionID)
		if err != nil {
			return err
		}
		position, err := a.trackPosition(ctx, id, wire.TradeData.SymbolID)
		if err != nil {
			return err
		}
		if err = position.applyWirePosition(wire); err != nil {
			return err
		}
	}
	for i := range resp.Order {
		wire := &resp.Order[i]
		id, err := parseWireID(wire.OrderID)
		if err != nil {
			return err
		}
		order := a.trackOrder(id, "")
		if err = order.applyWireOrder(&executionEvent{Order: wire}); err != nil {
			return err
		}
	}
	return nil
}

// Positions lists the currently open positions.
func (a *Account) Positions() []*Position {
	a.mx.RLock()
	defer a.mx.RUnlock()
	positions := make([]*Position, 0, len(a.positions))
	for _, position := range a.positions {
		if position.Status() == PositionStatusOpen {
			positions = append(positions, position)
		}
	}
	return positions
}

func (a *Account) Position(id int64) (*Position, error) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	position, ok := a.positions[id]
	if !ok {
		return nil, ErrorNotFoundPosition
	}
	return position, nil
}

// Balance fetches the current balance. A transport failure fails the query
// outright, it is not retried here.
func (a *Account) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := a.loadTrader(ctx); err != nil {
		return decimal.Decimal{}, err
	}
	a.mx.RLock()
	defer a.mx.RUnlock()
	return a.balance, nil
}

// Equity is balance plus the unrealized net profit over the open positions.
func (a *Account) Equity(ctx context.Context) (decimal.Decimal, error) {
	balance, err := a.Balance(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	equity := balance
	for _, position := range a.Positions() {
		net, err := position.UnrealizedNetProfit(ctx)
		if err != nil {
			return decimal.Decimal{}, err
		}
		equity = equity.Add(net)
	}
	return equity, nil
}

// FreeMargin is equity minus the margin held by open positions.
func (a *Account) FreeMargin(ctx context.Context) (decimal.Decimal, error) {
	equity, err := a.Equity(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return equity.Sub(a.totalUsedMargin()), nil
}

// MarginLevel is equity over used margin, in percent. Zero used margin
// yields zero.
func (a *Account) MarginLevel(ctx context.Context) (decimal.Decimal, error) {
	used := a.totalUsedMargin()
	if used.IsZero() {
		return decimal.Decimal{}, nil
	}
	equity, err := a.Equity(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return equity.Div(used).Mul(decimal.NewFromInt(100)), nil
}

func (a *Account) totalUsedMargin() decimal.Decimal {
	used := decimal.Decimal{}
	for _, position := range a.Positions() {
		used = used.Add(position.UsedMargin())
	}
	return used
}

// ModifyProtection issues a protection change for a position. The outcome is
// reported asynchronously through the execution stream.
func (a *Account) ModifyProtection(ctx context.Context, positionID int64, protection Protection) error {
	if _, err := a.Position(positionID); err != nil {
		return err
	}
	return a.amendProtection(ctx, positionID, protection)
}

func (a *Account) amendProtection(ctx context.Context, positionID int64, protection Protection) error {
	_, err := a.conn.SendCommand(ctx, commandAmendProtection, paramsAmendProtection{
		PositionID:       positionID,
		StopLoss:         priceToWire(protection.StopLoss),
		TakeProfit:       priceToWire(protection.TakeProfit),
		TrailingStopLoss: protection.TrailingStopLoss,
	}, "")
	return err
}

// Push dispatch. Decoding failures are a local invariant violation: logged,
// counted, and the event is dropped without stalling anything else.

func (a *Account) onExecution(raw json.RawMessage) {
	var ev executionEvent
	if err := jsoniter.Unmarshal(raw, &ev); err != nil {
		eventCounters.WithLabelValues("malformed").Inc()
		a.logger.Error("ctrader: fail parse execution event", zap.Error(err))
		return
	}
	if ev.AccountID != a.id {
		return
	}
	a.serializer.submit(&ev)
}

func (a *Account) onSpot(raw json.RawMessage) {
	var ev spotEvent
	if err := jsoniter.Unmarshal(raw, &ev); err != nil {
		eventCounters.WithLabelValues("malformed").Inc()
		a.logger.Error("ctrader: fail parse spot event", zap.Error(err))
		return
	}
	if ev.AccountID != a.id {
		return
	}
	a.handleSpot(&ev)
}

func (a *Account) onOrderError(raw json.RawMessage) {
	var ev orderErrorEvent
	if err := jsoniter.Unmarshal(raw, &ev); err != nil {
		eventCounters.WithLabelValues("malformed").Inc()
		a.logger.Error("ctrader: fail parse order error event", zap.Error(err))
		return
	}
	if ev.AccountID != a.id {
		return
	}
	var orderID int64
	if ev.OrderID != "" {
		id, err := parseWireID(ev.OrderID)
		if err != nil {
			a.logger.Error("ctrader: fail parse order error id", zap.Error(err))
			return
		}
		orderID = id
	}
	a.serializer.submit(&executionEvent{
		AccountID:     ev.AccountID,
		EventKind:     executionOrderRejected,
		CorrelationID: ev.CorrelationID,
		rejectCode:    ev.ErrorCode,
		rejectOrderID: orderID,
	})
}

func (a *Account) onMarginChanged(raw json.RawMessage) {
	var ev marginChangedEvent
	if err := jsoniter.Unmarshal(raw, &ev); err != nil {
		eventCounters.WithLabelValues("malformed").Inc()
		a.logger.Error("ctrader: fail parse margin event", zap.Error(err))
		return
	}
	if ev.AccountID != a.id {
		return
	}
	eventCounters.WithLabelValues("marginChanged").Inc()
	id, err := parseWireID(ev.PositionID)
	if err != nil {
		a.logger.Error("ctrader: fail parse margin position id", zap.Error(err))
		return
	}
	position, err := a.Position(id)
	if err != nil {
		return
	}
	position.setUsedMargin(moneyFromCents(ev.UsedMargin))
}

func (a *Account) onSymbolChanged(raw json.RawMessage) {
	var ev symbolChangedEvent
	if err := jsoniter.Unmarshal(raw, &ev); err != nil {
		eventCounters.WithLabelValues("malformed").Inc()
		a.logger.Error("ctrader: fail parse symbol changed event", zap.Error(err))
		return
	}
	if ev.AccountID != a.id {
		return
	}
	eventCounters.WithLabelValues("symbolChanged").Inc()
	a.evictSymbolDetails(ev.SymbolIDs)
}

// handleExecution runs on the account's own serializer: it makes sure the
// touched entities exist, folds raw deals into the cache, then fans the
// event out to the live entities.
func (a *Account) handleExecution(ev *executionEvent) error {
	eventCounters.WithLabelValues(ev.EventKind).Inc()

	if ev.Order != nil {
		if err := a.ensureOrder(ev); err != nil {
			return err
		}
	}
	if ev.Position != nil {
		if err := a.ensurePosition(ev.Position); err != nil {
			return err
		}
	}
	if ev.Deal != nil {
		if _, err := a.normalizeDeal(ev.Deal); err != nil {
			return err
		}
	}

	a.bus.publish(ev)
	return nil
}

// ensureOrder guarantees a live entity exists for the order an event refers
// to, matching by id once assigned, otherwise by the correlation token used
// at placement.
func (a *Account) ensureOrder(ev *executionEvent) error {
	id, err := parseWireID(ev.Order.OrderID)
	if err != nil {
		return err
	}
	token := ev.CorrelationID
	if token == "" {
		token = ev.Order.ClientOrderID
	}

	a.mx.RLock()
	_, known := a.orders[id]
	if !known && token != "" {
		_, known = a.ordersByToken[token]
	}
	a.mx.RUnlock()
	if known {
		return nil
	}

	// An order this session never placed: track it as a live entity.
	a.trackOrder(id, token)
	return nil
}

// trackOrder registers a live order entity with a preassigned id and
// subscribes it to the bus.
func (a *Account) trackOrder(id int64, token string) *Order {
	a.mx.Lock()
	if existing, ok := a.orders[id]; ok {
		a.mx.Unlock()
		return existing
	}
	order := &Order{
		account:       a,
		logger:        a.logger,
		id:            id,
		correlationID: token,
		status:        OrderStatusRequested,
	}
	a.orders[id] = order
	a.mx.Unlock()
	order.listen()
	return order
}

func (a *Account) ensurePosition(wire *wirePosition) error {
	id, err := parseWireID(wire.PositionID)
	if err != nil {
		return err
	}
	a.mx.RLock()
	_, known := a.positions[id]
	a.mx.RUnlock()
	if known {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, err = a.trackPosition(ctx, id, wire.TradeData.SymbolID)
	return err
}

func (a *Account) trackPosition(ctx context.Context, id, symbolID int64) (*Position, error) {
	symbol, err := a.SymbolByID(symbolID)
	if err != nil {
		return nil, err
	}
	a.mx.Lock()
	if existing, ok := a.positions[id]; ok {
		a.mx.Unlock()
		return existing, nil
	}
	position := &Position{
		account: a,
		logger:  a.logger,
		id:      id,
		symbol:  symbol,
		status:  PositionStatusOpen,
	}
	a.positions[id] = position
	a.mx.Unlock()
	position.listen()
	return position, nil
}

// adoptOrderID is called when the server assigns an id to an order placed by
// this session; from then on events match by id and the correlation entry is
// dropped.
func (a *Account) adoptOrderID(order *Order, id int64) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if order.correlationID != "" {
		delete(a.ordersByToken, order.correlationID)
	}
	if _, ok := a.orders[id]; !ok {
		a.orders[id] = order
	}
}

// OrderDirectives describes an order placement. Exactly one of Symbol or
// PositionID must be set: a position reference implies a market order whose
// direction relative to the position decides whether it increases or reduces
// exposure, and takes no limit or stop price; a symbol opens a new position,
// optionally resting at a limit or stop price.
type OrderDirectives struct {
	Symbol     string
	PositionID int64

	Direction  TradeDirection
	Lots       decimal.Decimal
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	Protection *Protection

	// ResolveOn overrides the lifecycle statuses that resolve the placement
	// call. Empty means the default subset: pending, executed, rejected,
	// cancelled, expired.
	ResolveOn []OrderStatus
}

// PlaceOrder builds and sends the placement command, then blocks until the
// configured lifecycle subset fires or ctx ends. The returned order keeps
// receiving push events either way.
func (a *Account) PlaceOrder(ctx context.Context, directives OrderDirectives) (*Order, error) {
	if directives.Symbol == "" && directives.PositionID == 0 {
		return nil, ErrorMissingDirectives
	}
	if directives.Symbol != "" && directives.PositionID != 0 {
		return nil, ErrorAmbiguousDirectives
	}
	if directives.PositionID != 0 && (!directives.LimitPrice.IsZero() || !directives.StopPrice.IsZero()) {
		return nil, ErrorPositionOrderPrice
	}

	var symbol *Symbol
	purpose := PurposeOpen
	isMarket := directives.LimitPrice.IsZero() && directives.StopPrice.IsZero()

	if directives.PositionID != 0 {
		position, err := a.Position(directives.PositionID)
		if err != nil {
			return nil, err
		}
		symbol = position.Symbol()
		// Relative to the position, an opposite-direction order reduces
		// exposure.
		if directives.Direction == position.Direction().Opposite() {
			purpose = PurposeClose
		}
	} else {
		var err error
		if symbol, err = a.Symbol(directives.Symbol); err != nil {
			return nil, err
		}
	}

	details, err := a.SymbolDetails(ctx, symbol.ID)
	if err != nil {
		return nil, err
	}

	resolveOn := defaultResolveStatuses()
	if len(directives.ResolveOn) > 0 {
		resolveOn = make(map[OrderStatus]struct{}, len(directives.ResolveOn))
		for _, status := range directives.ResolveOn {
			resolveOn[status] = struct{}{}
		}
	}

	token := uuid.NewString()
	order := &Order{
		account:       a,
		logger:        a.logger,
		correlationID: token,
		symbol:        symbol,
		direction:     directives.Direction,
		purpose:       purpose,
		isMarket:      isMarket,
		requestedLots: directives.Lots,
		limitPrice:    directives.LimitPrice,
		stopPrice:     directives.StopPrice,
		status:        OrderStatusRequested,
		positionID:    directives.PositionID,
		resolveOn:     resolveOn,
		call:          createOrderCall(),
		createdAt:     time.Now().UTC(),
	}

	params := paramsNewOrder{
		SymbolID:      symbol.ID,
		TradeSide:     directives.Direction.String(),
		Volume:        lotsToWire(directives.Lots, details.wireLotSize),
		PositionID:    directives.PositionID,
		ClientOrderID: token,
	}
	switch {
	case !directives.LimitPrice.IsZero():
		params.OrderType = wireOrderTypeLimit
		params.LimitPrice = priceToWire(directives.LimitPrice)
	case !directives.StopPrice.IsZero():
		params.OrderType = wireOrderTypeStop
		params.StopPrice = priceToWire(directives.StopPrice)
	default:
		params.OrderType = wireOrderTypeMarket
	}

	if protection := directives.Protection; protection != nil && !protection.isZero() {
		if isMarket {
			// The wire rejects absolute protection on market orders; it is
			// applied through a follow-up command once the order executes.
			order.pendingProtection = protection
		} else {
			params.StopLoss = priceToWire(protection.StopLoss)
			params.TakeProfit = priceToWire(protection.TakeProfit)
			params.TrailingStopLoss = protection.TrailingStopLoss
		}
	}

	a.mx.Lock()
	if _, duplicate := a.ordersByToken[token]; duplicate {
		a.mx.Unlock()
		return nil, ErrorDuplicateCorrelation
	}
	a.ordersByToken[token] = order
	a.mx.Unlock()
	order.listen()

	call := order.call
	if _, err = a.conn.SendCommand(ctx, commandNewOrder, params, token); err != nil {
		order.teardown()
		a.mx.Lock()
		delete(a.ordersByToken, token)
		a.mx.Unlock()
		return nil, err
	}

	select {
	case result := <-call.Done:
		return result.Reply, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
