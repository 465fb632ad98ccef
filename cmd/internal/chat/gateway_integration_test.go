package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tienda/cmd/internal/auth"
	v1 "tienda/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const gwTestSecret = "integration-secret-0123456789abcdef"

func newTestGateway(t *testing.T) (*Gateway, *auth.Resolver) {
	t.Helper()

	resolver, err := auth.NewResolver([]byte(gwTestSecret))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(log, nil)
	manager := NewSessionManager(log, hub, NewInMemoryStore(), NewPresence(log, hub), nil)
	return NewGateway(log, resolver, manager, nil), resolver
}

func startWSTestServer(t *testing.T, gw *Gateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/chat/ws", gw)
	return httptest.NewServer(mux)
}

func signToken(t *testing.T, r *auth.Resolver, p auth.Principal) string {
	t.Helper()
	tok, err := r.Sign(p, time.Now().UTC(), time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tok
}

func dialWS(t *testing.T, baseHTTPURL string, origin string, bearerToken string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/chat/ws"

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	if strings.TrimSpace(bearerToken) != "" {
		h.Set("Authorization", "Bearer "+bearerToken)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
		HTTPHeader:   h,
	})
}

func writeEnvelopeWS(t *testing.T, conn *websocket.Conn, env v1.Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) v1.Envelope {
	t.Helper()
	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("did not receive envelope type %q", typ)
	return v1.Envelope{}
}

func mustJSONRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

func TestGateway_UnauthorizedRejected(t *testing.T) {
	t.Setenv("TIENDA_WS_ORIGIN_REQUIRED", "false")

	gw, _ := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "", "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_InvalidTokenRejected(t *testing.T) {
	t.Setenv("TIENDA_WS_ORIGIN_REQUIRED", "false")

	gw, _ := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "http://localhost", "not-a-valid-token")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_OriginRequiredRejectsMissingOrigin(t *testing.T) {
	t.Setenv("TIENDA_WS_ORIGIN_REQUIRED", "true")

	gw, resolver := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token := signToken(t, resolver, auth.Principal{ID: "u-1", Username: "cliente", Role: auth.RoleUser})

	_, resp, err := dialWS(t, ts.URL, "", token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected forbidden handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 403, got status=%d err=%v", status, err)
	}
}

func TestGateway_TokenQueryParamAccepted(t *testing.T) {
	t.Setenv("TIENDA_WS_ORIGIN_REQUIRED", "false")

	gw, resolver := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token := signToken(t, resolver, auth.Principal{ID: "u-1", Username: "cliente", Role: auth.RoleUser})

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/chat/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("query-token dial failed: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func TestGateway_UserSendAndHistoryFlow(t *testing.T) {
	t.Setenv("TIENDA_WS_ORIGIN_REQUIRED", "false")

	gw, resolver := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token := signToken(t, resolver, auth.Principal{ID: "u-flow", Username: "cliente", Role: auth.RoleUser})

	conn, resp, err := dialWS(t, ts.URL, "", token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("authorized dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	writeEnvelopeWS(t, conn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeChatMessage,
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, v1.ChatMessageSendPayload{Message: "hola"}),
	})

	echo := readUntilType(t, conn, v1.TypeChatMessage, 4)
	var mp v1.ChatMessagePayload
	if err := json.Unmarshal(echo.Payload, &mp); err != nil {
		t.Fatalf("decode echo: %v", err)
	}
	if mp.Message != "hola" || mp.ConversationID != "user-u-flow" || mp.IsFromAdmin {
		t.Fatalf("echo payload: %+v", mp)
	}

	writeEnvelopeWS(t, conn, v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeRequestHistory,
		TS:   time.Now().UTC(),
	})

	hist := readUntilType(t, conn, v1.TypeConversationHistory, 4)
	var hp v1.ConversationHistoryPayload
	if err := json.Unmarshal(hist.Payload, &hp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if hp.ConversationID != "user-u-flow" || len(hp.Messages) != 1 {
		t.Fatalf("history payload: conv=%q n=%d", hp.ConversationID, len(hp.Messages))
	}
}

func TestGateway_AdminConversationFlow(t *testing.T) {
	t.Setenv("TIENDA_WS_ORIGIN_REQUIRED", "false")

	gw, resolver := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	adminToken := signToken(t, resolver, auth.Principal{ID: "a-1", Username: "soporte", Role: auth.RoleAdmin})
	userToken := signToken(t, resolver, auth.Principal{ID: "u-1", Username: "cliente", Role: auth.RoleUser})

	adminConn, resp, err := dialWS(t, ts.URL, "", adminToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("admin dial failed: %v", err)
	}
	defer func() { _ = adminConn.Close(websocket.StatusNormalClosure, "bye") }()

	userConn, resp, err := dialWS(t, ts.URL, "", userToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("user dial failed: %v", err)
	}
	defer func() { _ = userConn.Close(websocket.StatusNormalClosure, "bye") }()

	// The admin sees the user connect.
	presence := readUntilType(t, adminConn, v1.TypeUserOnline, 4)
	var pp v1.PresencePayload
	if err := json.Unmarshal(presence.Payload, &pp); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if pp.UserID != "u-1" || pp.ConversationID != "user-u-1" {
		t.Fatalf("presence payload: %+v", pp)
	}

	writeEnvelopeWS(t, userConn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeChatMessage,
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, v1.ChatMessageSendPayload{Message: "necesito ayuda"}),
	})

	note := readUntilType(t, adminConn, v1.TypeNewMessageNotification, 4)
	var np v1.NewMessageNotificationPayload
	if err := json.Unmarshal(note.Payload, &np); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if np.ConversationID != "user-u-1" || np.SenderID != "u-1" {
		t.Fatalf("notification payload: %+v", np)
	}

	// The user is a member of its own conversation room, so its own message
	// echoes back first; drain it before asserting on the admin reply.
	echo := readUntilType(t, userConn, v1.TypeChatMessage, 4)
	var up v1.ChatMessagePayload
	if err := json.Unmarshal(echo.Payload, &up); err != nil {
		t.Fatalf("decode echo: %v", err)
	}
	if up.IsFromAdmin || up.Message != "necesito ayuda" {
		t.Fatalf("echo payload: %+v", up)
	}

	writeEnvelopeWS(t, adminConn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeJoinConversation,
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, v1.JoinConversationPayload{ConversationID: "user-u-1"}),
	})

	hist := readUntilType(t, adminConn, v1.TypeConversationHistory, 4)
	var hp v1.ConversationHistoryPayload
	if err := json.Unmarshal(hist.Payload, &hp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hp.Messages) != 1 || hp.Messages[0].Message != "necesito ayuda" {
		t.Fatalf("history payload: %+v", hp)
	}

	writeEnvelopeWS(t, adminConn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeChatMessage,
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, v1.ChatMessageSendPayload{Message: "dime"}),
	})

	delivered := readUntilType(t, userConn, v1.TypeChatMessage, 6)
	var dp v1.ChatMessagePayload
	if err := json.Unmarshal(delivered.Payload, &dp); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	if !dp.IsFromAdmin || dp.Message != "dime" || dp.ReceiverID != "u-1" {
		t.Fatalf("delivered payload: %+v", dp)
	}

	writeEnvelopeWS(t, adminConn, v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeRequestConversations,
		TS:   time.Now().UTC(),
	})

	listing := readUntilType(t, adminConn, v1.TypeConversationsList, 6)
	var rows []v1.ConversationSummary
	if err := json.Unmarshal(listing.Payload, &rows); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(rows) != 1 || rows[0].ConversationID != "user-u-1" || rows[0].SenderID != "u-1" {
		t.Fatalf("listing rows: %+v", rows)
	}
	if rows[0].UnreadCount != 0 {
		t.Fatalf("unread after join: %d", rows[0].UnreadCount)
	}
}

func TestGateway_BadJSONGetsErrorFrame(t *testing.T) {
	t.Setenv("TIENDA_WS_ORIGIN_REQUIRED", "false")

	gw, resolver := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token := signToken(t, resolver, auth.Principal{ID: "u-1", Username: "cliente", Role: auth.RoleUser})

	conn, resp, err := dialWS(t, ts.URL, "", token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("authorized dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}

	errEnv := readUntilType(t, conn, v1.TypeError, 4)
	var ep v1.ErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &ep); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if ep.Code != "bad_json" {
		t.Fatalf("error code: %q", ep.Code)
	}

	// The connection survives a malformed frame.
	writeEnvelopeWS(t, conn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeChatMessage,
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, v1.ChatMessageSendPayload{Message: "sigo aquí"}),
	})
	readUntilType(t, conn, v1.TypeChatMessage, 4)
}
