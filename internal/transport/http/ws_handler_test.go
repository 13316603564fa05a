package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/proto"
)

type outboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

func dialRoom(t *testing.T, ctx context.Context, baseURL, room, user string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws/notification/" + room

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	payload, _ := json.Marshal(proto.HelloData{User: user})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, Data: payload}); err != nil {
		t.Fatalf("hello %s: %v", user, err)
	}
	return conn
}

func sendMsg(t *testing.T, ctx context.Context, conn *websocket.Conn, text string) {
	t.Helper()

	payload, _ := json.Marshal(proto.MsgData{Text: text})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
		t.Fatalf("send msg: %v", err)
	}
}

// readUntilEvent skips envelopes until one with the wanted event name arrives.
func readUntilEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outboundEnvelope {
	t.Helper()

	for {
		var env outboundEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("read waiting for %q: %v", event, err)
		}
		if env.Type == proto.OutboundTypeEvent && env.Event == event {
			return env
		}
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	ts := startTestServer(t, createTestStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialRoom(t, ctx, ts.URL, "general", "alice")

	// Alice sees her own join announcement and the (empty) backlog.
	joined := readUntilEvent(t, ctx, connA, "user_joined")
	var joinData proto.EventUserJoined
	if err := json.Unmarshal(joined.Data, &joinData); err != nil {
		t.Fatalf("unmarshal join data: %v", err)
	}
	if joinData.User != "alice" || joinData.Room != "general" {
		t.Fatalf("unexpected join payload: %+v", joinData)
	}
	readUntilEvent(t, ctx, connA, "history")

	connB := dialRoom(t, ctx, ts.URL, "general", "bob")
	readUntilEvent(t, ctx, connB, "history")
	readUntilEvent(t, ctx, connA, "user_joined") // bob's arrival

	sendMsg(t, ctx, connA, "hi there")

	env := readUntilEvent(t, ctx, connB, "message")
	var event proto.EventMessage
	if err := json.Unmarshal(env.Data, &event); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if event.User != "alice" || event.Text != "hi there" || event.Room != "general" {
		t.Fatalf("unexpected event payload: %+v", event)
	}

	// No echo to the sender: the next message event Alice sees is Bob's.
	sendMsg(t, ctx, connB, "hello alice")
	env = readUntilEvent(t, ctx, connA, "message")
	if err := json.Unmarshal(env.Data, &event); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if event.User != "bob" || event.Text != "hello alice" {
		t.Fatalf("expected bob's message, got %+v", event)
	}
}

func TestWebSocketHistoryOnJoin(t *testing.T) {
	ts := startTestServer(t, createTestStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialRoom(t, ctx, ts.URL, "general", "alice")
	readUntilEvent(t, ctx, connA, "history")

	sendMsg(t, ctx, connA, "first")
	sendMsg(t, ctx, connA, "second")

	// Give the hub time to persist before the late joiner arrives.
	time.Sleep(200 * time.Millisecond)

	connB := dialRoom(t, ctx, ts.URL, "general", "bob")
	env := readUntilEvent(t, ctx, connB, "history")

	var history proto.EventHistory
	if err := json.Unmarshal(env.Data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if history.Room != "general" {
		t.Fatalf("unexpected history room: %q", history.Room)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(history.Messages))
	}
	if history.Messages[0].Text != "first" || history.Messages[1].Text != "second" {
		t.Fatalf("unexpected history order: %+v", history.Messages)
	}
}

func TestWebSocketRequiresHelloFirst(t *testing.T) {
	ts := startTestServer(t, createTestStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws/notification/general"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	payload, _ := json.Marshal(proto.MsgData{Text: "too eager"})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var env outboundEnvelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != proto.OutboundTypeError || env.Error == nil {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestWebSocketRejectsUnsupportedProtocol(t *testing.T) {
	ts := startTestServer(t, createTestStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws/notification/general"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	payload, _ := json.Marshal(proto.HelloData{User: "alice", Protocol: proto.ProtocolVersion + 1})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, Data: payload}); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	var env outboundEnvelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != proto.OutboundTypeError || env.Error == nil {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestWebSocketRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.MessageRateLimit = 1
	ts := startTestServerWithConfig(t, createTestStore(t), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRoom(t, ctx, ts.URL, "general", "alice")
	readUntilEvent(t, ctx, conn, "history")

	sendMsg(t, ctx, conn, "within budget")
	sendMsg(t, ctx, conn, "over budget")

	for {
		var env outboundEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if env.Type == proto.OutboundTypeError {
			if env.Error == nil || env.Error.Code != core.ErrCodeRateLimited {
				t.Fatalf("expected rate_limited, got %+v", env.Error)
			}
			return
		}
	}
}

func TestWebSocketEmptyMessageRejected(t *testing.T) {
	ts := startTestServer(t, createTestStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRoom(t, ctx, ts.URL, "general", "alice")
	readUntilEvent(t, ctx, conn, "history")

	sendMsg(t, ctx, conn, "   ")

	for {
		var env outboundEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if env.Type == proto.OutboundTypeError {
			if env.Error == nil || env.Error.Code != "bad_request" {
				t.Fatalf("expected bad_request, got %+v", env.Error)
			}
			return
		}
	}
}
