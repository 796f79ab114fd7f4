package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"parley/internal/chat"
	"parley/internal/identity"
	"parley/internal/metrics"
	"parley/internal/presence"
	"parley/internal/router"
	v1 "parley/shared/contracts/chat/v1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newGatewayTestServer wires a gateway over in-memory stores and serves it.
// Origin enforcement is relaxed because test dials carry no Origin header.
// Tests using it must not be parallel (t.Setenv).
func newGatewayTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	t.Setenv("PARLEY_WS_ORIGIN_REQUIRED", "false")

	log := testLogger()
	identities := identity.NewMemoryStore()
	chatStore := chat.NewMemoryStore(identities)
	reg := presence.NewRegistry(log)
	resolver := identity.NewResolver(log, identities, chatStore)
	rt := router.New(log, reg, identities, chat.NewChannelResolver(chatStore), chatStore, nil)
	g := NewWSGateway(log, reg, resolver, rt, metrics.New())

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return srv
}

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	b, err := json.Marshal(v1.Envelope{V: v1.Version, Type: typ, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, wantType string) v1.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read (waiting for %s): %v", wantType, err)
	}

	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != wantType {
		t.Fatalf("envelope type = %q, want %q", env.Type, wantType)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("outbound envelope invalid: %v", err)
	}
	return env
}

// register drives the new-user handshake and drains the self-id and roster
// frames, returning the assigned public id.
func register(t *testing.T, conn *websocket.Conn, displayName string) string {
	t.Helper()

	sendEvent(t, conn, v1.TypeNewUser, v1.NewUserPayload{DisplayName: displayName})

	env := readEvent(t, conn, v1.TypeSelfID)
	var p v1.SelfIDPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal self-id: %v", err)
	}
	if p.PublicID == "" {
		t.Fatalf("self-id carried no public id")
	}

	readEvent(t, conn, v1.TypeUserList)
	return p.PublicID
}

func TestGatewayRegistrationEmitsSelfIDAndRoster(t *testing.T) {
	srv := newGatewayTestServer(t)

	alice := dialGateway(t, srv)
	sendEvent(t, alice, v1.TypeNewUser, v1.NewUserPayload{DisplayName: "Alice"})

	env := readEvent(t, alice, v1.TypeSelfID)
	var self v1.SelfIDPayload
	if err := json.Unmarshal(env.Payload, &self); err != nil {
		t.Fatalf("unmarshal self-id: %v", err)
	}
	if self.PublicID == "" {
		t.Fatalf("self-id carried no public id")
	}

	env = readEvent(t, alice, v1.TypeUserList)
	var list v1.UserListPayload
	if err := json.Unmarshal(env.Payload, &list); err != nil {
		t.Fatalf("unmarshal user-list: %v", err)
	}
	if len(list) != 1 || list[self.PublicID] != "Alice" {
		t.Fatalf("roster after first join = %v, want {%s: Alice}", list, self.PublicID)
	}

	// A second join is announced to both connections.
	bob := dialGateway(t, srv)
	bobPub := register(t, bob, "Bob")

	env = readEvent(t, alice, v1.TypeUserList)
	if err := json.Unmarshal(env.Payload, &list); err != nil {
		t.Fatalf("unmarshal user-list: %v", err)
	}
	if len(list) != 2 || list[self.PublicID] != "Alice" || list[bobPub] != "Bob" {
		t.Fatalf("roster after second join = %v, want both Alice and Bob", list)
	}
}

func TestGatewayPrivateMessageAndHistoryRoundTrip(t *testing.T) {
	srv := newGatewayTestServer(t)

	alice := dialGateway(t, srv)
	alicePub := register(t, alice, "Alice")

	bob := dialGateway(t, srv)
	bobPub := register(t, bob, "Bob")

	// Alice has a pending roster update from Bob's join; it does not affect
	// her ability to send.
	sendEvent(t, alice, v1.TypePrivateMessage, v1.PrivateMessagePayload{
		TargetPublicID: bobPub,
		Content:        "hello over the wire",
	})

	env := readEvent(t, bob, v1.TypeReceivePrivateMessage)
	var recv v1.ReceivePrivateMessagePayload
	if err := json.Unmarshal(env.Payload, &recv); err != nil {
		t.Fatalf("unmarshal receive-private-message: %v", err)
	}
	if recv.SenderPublicID != alicePub || recv.SenderDisplayName != "Alice" {
		t.Fatalf("sender = %s/%s, want %s/Alice", recv.SenderPublicID, recv.SenderDisplayName, alicePub)
	}
	if recv.Content != "hello over the wire" {
		t.Fatalf("content = %q, want %q", recv.Content, "hello over the wire")
	}

	// History over the same socket sees the persisted message, annotated from
	// Bob's viewpoint.
	sendEvent(t, bob, v1.TypeFetchChatHistory, v1.FetchChatHistoryPayload{TargetPublicID: alicePub})

	env = readEvent(t, bob, v1.TypeChatHistory)
	var hist v1.ChatHistoryPayload
	if err := json.Unmarshal(env.Payload, &hist); err != nil {
		t.Fatalf("unmarshal chat-history: %v", err)
	}
	if hist.Error != "" {
		t.Fatalf("history error = %q, want none", hist.Error)
	}
	if len(hist.Messages) != 1 {
		t.Fatalf("history = %+v, want exactly one message", hist.Messages)
	}
	m := hist.Messages[0]
	if m.Message != "hello over the wire" || m.SenderName != "Alice" || m.IsSelf {
		t.Fatalf("history message = %+v, want Alice's message with IsSelf=false", m)
	}
}

func TestGatewayClosesReplacedConnection(t *testing.T) {
	srv := newGatewayTestServer(t)

	first := dialGateway(t, srv)
	register(t, first, "Alice")

	// Reconnecting under the same display name resolves to the same identity
	// and replaces the first session.
	second := dialGateway(t, srv)
	register(t, second, "Alice")

	// The replaced socket must be closed by the server promptly, not left to
	// idle out.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, _, err := first.Read(ctx); err == nil {
		t.Fatalf("read on replaced connection succeeded, want server close")
	}
}

func TestGatewayRequiresSubprotocol(t *testing.T) {
	srv := newGatewayTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatalf("read on subprotocol-less connection succeeded, want close")
	}
}

func TestGatewayRejectsInvalidEnvelope(t *testing.T) {
	srv := newGatewayTestServer(t)

	conn := dialGateway(t, srv)

	b, err := json.Marshal(v1.Envelope{V: "v0", Type: v1.TypeNewUser})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readEvent(t, conn, v1.TypeError)
	var p v1.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if p.Code != "bad_envelope" {
		t.Fatalf("error code = %q, want bad_envelope", p.Code)
	}
}
