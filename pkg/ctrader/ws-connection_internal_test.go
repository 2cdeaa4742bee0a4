package ctrader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gotest.tools/assert"
)

// wsTestGate is an in-process websocket peer driven by a per-frame handler.
type wsTestGate struct {
	server *httptest.Server

	mx  sync.Mutex
	soc *websocket.Conn
}

func startWsTestGate(t *testing.T, handle func(gate *wsTestGate, frame *wsFrame)) *wsTestGate {
	t.Helper()
	gate := &wsTestGate{}
	upgrader := websocket.Upgrader{}
	gate.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		soc, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		gate.mx.Lock()
		gate.soc = soc
		gate.mx.Unlock()
		for {
			_, msg, err := soc.ReadMessage()
			if err != nil {
				return
			}
			var frame wsFrame
			if err = jsoniter.Unmarshal(msg, &frame); err != nil {
				t.Error(err)
				return
			}
			if frame.PayloadType == heartbeatPayloadType {
				continue
			}
			handle(gate, &frame)
		}
	}))
	t.Cleanup(gate.server.Close)
	return gate
}

func (gate *wsTestGate) addr() string {
	return "ws" + strings.TrimPrefix(gate.server.URL, "http")
}

func (gate *wsTestGate) send(t *testing.T, frame wsFrame) {
	t.Helper()
	raw, err := jsoniter.Marshal(frame)
	assert.NilError(t, err)

	// the upgrade runs on the server goroutine, wait until it happened
	deadline := time.Now().Add(2 * time.Second)
	for {
		gate.mx.Lock()
		soc := gate.soc
		gate.mx.Unlock()
		if soc != nil {
			assert.NilError(t, soc.WriteMessage(websocket.TextMessage, raw))
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("peer never connected")
		}
		time.Sleep(time.Millisecond)
	}
}

func openWsTestConnection(t *testing.T, gate *wsTestGate) *WsConnection {
	t.Helper()
	conn := NewWsConnection(zap.NewNop(), ConnectionConfig{
		Addr:              gate.addr(),
		Token:             "test-token",
		HeartbeatInterval: time.Second,
	})
	assert.NilError(t, conn.Open(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWsConnection_SendCommand(t *testing.T) {
	gate := startWsTestGate(t, func(gate *wsTestGate, frame *wsFrame) {
		if frame.PayloadType != commandTraderInfo {
			return
		}
		if frame.Token != "test-token" {
			gate.mx.Lock()
			defer gate.mx.Unlock()
			_ = gate.soc.Close()
			return
		}
		raw, _ := jsoniter.Marshal(wsFrame{
			PayloadType: "ProtoOATraderRes",
			ClientMsgID: frame.ClientMsgID,
			Payload:     json.RawMessage(`{"trader":{"accountId":1001}}`),
		})
		gate.mx.Lock()
		defer gate.mx.Unlock()
		_ = gate.soc.WriteMessage(websocket.TextMessage, raw)
	})
	conn := openWsTestConnection(t, gate)

	reply, err := conn.SendCommand(context.Background(), commandTraderInfo, paramsTraderInfo{AccountID: 1001}, "")
	assert.NilError(t, err)

	var resp responseTraderInfo
	assert.NilError(t, jsoniter.Unmarshal(reply, &resp))
	assert.Assert(t, resp.Trader != nil)
	assert.Equal(t, resp.Trader.AccountID, int64(1001))
}

func TestWsConnection_CommandRejected(t *testing.T) {
	gate := startWsTestGate(t, func(gate *wsTestGate, frame *wsFrame) {
		raw, _ := jsoniter.Marshal(wsFrame{
			PayloadType: errorPayloadType,
			ClientMsgID: frame.ClientMsgID,
			Payload:     json.RawMessage(`{"errorCode":"CH_ACCESS_TOKEN_INVALID","description":"token expired"}`),
		})
		gate.mx.Lock()
		defer gate.mx.Unlock()
		_ = gate.soc.WriteMessage(websocket.TextMessage, raw)
	})
	conn := openWsTestConnection(t, gate)

	_, err := conn.SendCommand(context.Background(), commandReconcile, struct{}{}, "")
	assert.ErrorContains(t, err, "CH_ACCESS_TOKEN_INVALID")
	assert.ErrorContains(t, err, commandReconcile)
}

func TestWsConnection_DuplicateCorrelation(t *testing.T) {
	release := make(chan struct{})
	gate := startWsTestGate(t, func(gate *wsTestGate, frame *wsFrame) {
		go func() {
			<-release
			raw, _ := jsoniter.Marshal(wsFrame{
				PayloadType: "ProtoOAReconcileRes",
				ClientMsgID: frame.ClientMsgID,
				Payload:     json.RawMessage(`{}`),
			})
			gate.mx.Lock()
			defer gate.mx.Unlock()
			_ = gate.soc.WriteMessage(websocket.TextMessage, raw)
		}()
	})
	conn := openWsTestConnection(t, gate)

	first := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand(context.Background(), commandReconcile, struct{}{}, "fixed-id")
		first <- err
	}()

	// wait until the first call is parked in the pending table
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.mx.Lock()
		_, parked := conn.pending["fixed-id"]
		conn.mx.Unlock()
		if parked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first call never registered")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := conn.SendCommand(context.Background(), commandReconcile, struct{}{}, "fixed-id")
	assert.Error(t, err, "duplicate correlation token")

	close(release)
	assert.NilError(t, <-first)
}

func TestWsConnection_EventDispatch(t *testing.T) {
	gate := startWsTestGate(t, func(*wsTestGate, *wsFrame) {})
	conn := openWsTestConnection(t, gate)

	received := make(chan json.RawMessage, 2)
	handle := conn.On(eventSpot, func(payload json.RawMessage) {
		received <- payload
	})

	gate.send(t, wsFrame{
		PayloadType: eventSpot,
		Payload:     json.RawMessage(`{"accountId":1001,"symbolId":1,"bid":110000}`),
	})

	select {
	case payload := <-received:
		var ev spotEvent
		assert.NilError(t, jsoniter.Unmarshal(payload, &ev))
		assert.Equal(t, ev.SymbolID, int64(1))
		assert.Equal(t, ev.Bid, int64(110000))
	case <-time.After(2 * time.Second):
		t.Fatal("event never dispatched")
	}

	// a removed listener stops receiving
	conn.RemoveEventListener(handle)
	gate.send(t, wsFrame{
		PayloadType: eventSpot,
		Payload:     json.RawMessage(`{"accountId":1001,"symbolId":1,"bid":110010}`),
	})
	select {
	case <-received:
		t.Fatal("removed listener still receives")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWsConnection_NotOpen(t *testing.T) {
	conn := NewWsConnection(zap.NewNop(), ConnectionConfig{Addr: "ws://127.0.0.1:1", HeartbeatInterval: time.Second})
	_, err := conn.SendCommand(context.Background(), commandReconcile, struct{}{}, "")
	assert.ErrorContains(t, err, "connection is not open")
}

func TestWsConnection_FailPendingOnClose(t *testing.T) {
	gate := startWsTestGate(t, func(gate *wsTestGate, frame *wsFrame) {
		// drop the connection instead of answering
		gate.mx.Lock()
		defer gate.mx.Unlock()
		_ = gate.soc.Close()
	})
	conn := openWsTestConnection(t, gate)

	_, err := conn.SendCommand(context.Background(), commandReconcile, struct{}{}, "")
	assert.Assert(t, err != nil)
}
