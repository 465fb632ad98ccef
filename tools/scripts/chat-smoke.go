// Package main provides a CI-friendly WebSocket smoke test for the tienda
// support chat.
//
// It validates:
//   - handshake + subprotocol selection + bearer auth
//   - presence fanout to the admins room
//   - user send -> room echo + admin notification
//   - admin join -> history window
//   - admin reply -> user delivery
//   - conversation listing with counterpart attribution
//   - conversation deletion fanout + success ack
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "tienda/shared/contracts/chat/v1"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSubprotocol = "tienda.chat.v1"
	secretEnvKey       = "TIENDA_JWT_SECRET"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL     = flag.String("url", "ws://127.0.0.1:8080/chat/ws", "WebSocket URL")
		origin    = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		secret    = flag.String("secret", os.Getenv(secretEnvKey), "JWT signing secret (defaults to "+secretEnvKey+")")
		userID    = flag.String("user", "smoke-user-1", "Regular user id")
		userName  = flag.String("username", "cliente", "Regular user username")
		adminID   = flag.String("admin", "smoke-admin-1", "Admin user id")
		adminName = flag.String("admin-username", "soporte", "Admin username")
		text      = flag.String("text", "hola tienda 👋", "Message text to send")
		timeout   = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	if len(strings.TrimSpace(*secret)) < 32 {
		fatalf("invalid -secret: need at least 32 bytes (set %s)", secretEnvKey)
	}

	now := time.Now().UTC()
	userToken := mustSign(*secret, *userID, *userName, "user", now)
	adminToken := mustSign(*secret, *adminID, *adminName, "admin", now)

	root := context.Background()

	admin := mustConnect(root, "admin", *wsURL, *origin, adminToken, *timeout)
	defer closeWS(admin.conn)

	user := mustConnect(root, "user", *wsURL, *origin, userToken, *timeout)
	defer closeWS(user.conn)

	convID := "user-" + *userID

	if *verbose {
		fmt.Printf("connected: user=%s admin=%s conv_id=%s origin=%q\n", *userID, *adminID, convID, *origin)
	}

	// The user connection lands in the admins feed as presence.
	mustAssertPresence(root, admin, v1.TypeUserOnline, *userID, convID, *timeout)

	// User -> own conversation. The user is a member of its own room, so the
	// persisted projection comes straight back.
	mustWriteEnvelope(root, user.conn, v1.TypeChatMessage, v1.ChatMessageSendPayload{Message: *text}, *timeout)

	userMsg := mustReadChatMessage(root, user, convID, *timeout)
	if userMsg.IsFromAdmin {
		fatalf("user echo flagged as admin message")
	}
	if userMsg.Message != *text {
		fatalf("user echo text mismatch: got=%q want=%q", userMsg.Message, *text)
	}

	mustAssertNotification(root, admin, convID, *userID, *text, *timeout)

	// Admin joins and gets the history window containing the message.
	mustWriteEnvelope(root, admin.conn, v1.TypeJoinConversation, v1.JoinConversationPayload{ConversationID: convID}, *timeout)
	mustHistoryContains(root, admin, convID, userMsg.ID, *text, *timeout)

	// Admin reply reaches the user.
	reply := "en qué puedo ayudar?"
	mustWriteEnvelope(root, admin.conn, v1.TypeChatMessage, v1.ChatMessageSendPayload{
		Message:        reply,
		ConversationID: convID,
	}, *timeout)

	adminMsg := mustReadChatMessage(root, user, convID, *timeout)
	if !adminMsg.IsFromAdmin {
		fatalf("admin reply not flagged as admin message")
	}
	if adminMsg.ReceiverID != *userID {
		fatalf("admin reply receiver mismatch: got=%q want=%q", adminMsg.ReceiverID, *userID)
	}

	// Listing attributes the conversation to the user, even though the admin
	// spoke last, and shows no unread because the join flipped the flag.
	mustWriteEnvelope(root, admin.conn, v1.TypeRequestConversations, nil, *timeout)
	mustListingContains(root, admin, convID, *userID, *timeout)

	// Teardown fans out to the room and acks the requester.
	mustWriteEnvelope(root, admin.conn, v1.TypeDeleteConversation, v1.DeleteConversationPayload{ConversationID: convID}, *timeout)
	mustConversationDeleted(root, user, v1.TypeConversationDeleted, convID, *timeout)
	mustConversationDeleted(root, admin, v1.TypeConversationDeletedSuccess, convID, *timeout)

	fmt.Printf("OK: user=%s admin=%s conv_id=%s msg_id=%s\n", *userID, *adminID, convID, userMsg.ID)
}

// mustSign issues an HS256 credential with the storefront's claim layout.
func mustSign(secret, id, username, role string, now time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       id,
		"username": username,
		"role":     role,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		fatalf("sign token for %s: %v", id, err)
	}
	return signed
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustAssertPresence(parent context.Context, c *smokeClient, wantType, userID, convID string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, wantType, stepTimeout)

	var p v1.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal presence payload (%s): %v", c.name, err)
	}
	if p.UserID != userID {
		fatalf("presence user mismatch (%s): got=%q want=%q", c.name, p.UserID, userID)
	}
	if p.ConversationID != convID {
		fatalf("presence conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
}

func mustReadChatMessage(parent context.Context, c *smokeClient, convID string, stepTimeout time.Duration) v1.ChatMessagePayload {
	env := c.mustReadUntilType(parent, v1.TypeChatMessage, stepTimeout)

	var p v1.ChatMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal chat message payload (%s): %v", c.name, err)
	}
	if p.ConversationID != convID {
		fatalf("chat message conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
	if strings.TrimSpace(p.ID) == "" {
		fatalf("chat message missing id (%s)", c.name)
	}
	if p.CreatedAt.IsZero() {
		fatalf("chat message missing createdAt (%s)", c.name)
	}
	return p
}

func mustAssertNotification(parent context.Context, c *smokeClient, convID, senderID, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeNewMessageNotification, stepTimeout)

	var p v1.NewMessageNotificationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal notification payload (%s): %v", c.name, err)
	}
	if p.ConversationID != convID {
		fatalf("notification conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
	if p.SenderID != senderID {
		fatalf("notification sender mismatch (%s): got=%q want=%q", c.name, p.SenderID, senderID)
	}
	if p.Message != text {
		fatalf("notification text mismatch (%s): got=%q want=%q", c.name, p.Message, text)
	}
}

func mustHistoryContains(parent context.Context, c *smokeClient, convID, msgID, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeConversationHistory, stepTimeout)

	var p v1.ConversationHistoryPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal history payload (%s): %v", c.name, err)
	}
	if p.ConversationID != convID {
		fatalf("history conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}

	for _, m := range p.Messages {
		if m.ID == msgID && m.Message == text {
			return
		}
	}
	fatalf("history missing expected message (%s): id=%q", c.name, msgID)
}

func mustListingContains(parent context.Context, c *smokeClient, convID, counterpartID string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeConversationsList, stepTimeout)

	var rows []v1.ConversationSummary
	if err := json.Unmarshal(env.Payload, &rows); err != nil {
		fatalf("unmarshal listing payload (%s): %v", c.name, err)
	}

	for _, row := range rows {
		if row.ConversationID != convID {
			continue
		}
		if row.SenderID != counterpartID {
			fatalf("listing counterpart mismatch (%s): got=%q want=%q", c.name, row.SenderID, counterpartID)
		}
		if row.UnreadCount != 0 {
			fatalf("listing unread after join (%s): got=%d want=0", c.name, row.UnreadCount)
		}
		return
	}
	fatalf("listing missing conversation (%s): conv_id=%q", c.name, convID)
}

func mustConversationDeleted(parent context.Context, c *smokeClient, wantType, convID string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, wantType, stepTimeout)

	var p v1.ConversationDeletedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal deletion payload (%s): %v", c.name, err)
	}
	if p.ConversationID != convID {
		fatalf("deletion conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			// Rooms overlap, so unrelated fanout (notifications, refresh
			// hints, presence) is expected noise while waiting.
		}
	}
}

func mustWriteEnvelope(parent context.Context, conn *websocket.Conn, typ string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	env := v1.Envelope{
		V:    v1.Version,
		Type: typ,
		TS:   time.Now().UTC(),
	}
	if payload != nil {
		env.Payload = mustJSON(payload)
	}

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
