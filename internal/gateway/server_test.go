package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lk2023060901/space-gateway-go/internal/json"
	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
)

type gatewayFixture struct {
	t             *testing.T
	identity      *httptest.Server
	gateway       *httptest.Server
	server        *Server
	identityCalls atomic.Int64
	identityDelay atomic.Duration
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	f := &gatewayFixture{t: t}

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/room/access" {
			http.NotFound(w, r)
			return
		}
		f.identityCalls.Inc()
		if d := f.identityDelay.Load(); d > 0 {
			time.Sleep(d)
		}
		q := r.URL.Query()
		member := service.MemberData{
			UserUUID:               q.Get("userIdentifier"),
			Username:               "visitor",
			CharacterTexturesValid: !slices.Contains(q["characterTextureIds"], "invalid"),
			CompanionTextureValid:  true,
		}
		raw, _ := json.Marshal(member)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}))

	cfg := Config{
		JWTSecret:  "test-secret",
		AdminToken: "admin-token",
		DebounceMS: 5,
	}
	srv, err := NewServer(cfg, service.NewIdentityClient(service.IdentityConfig{BaseURL: identity.URL}), nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())

	f.identity = identity
	f.gateway = ts
	f.server = srv
	t.Cleanup(func() {
		ts.Close()
		identity.Close()
		srv.registry.Close()
	})
	return f
}

// dialRoom opens a client connection with the given query values.
func (f *gatewayFixture) dialRoom(values url.Values) *websocket.Conn {
	f.t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.gateway.URL, "http") + "/room?" + values.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func validQuery(uuid string) url.Values {
	v := url.Values{}
	v.Set("version", ProtocolVersion.String())
	v.Set("playUri", "https://play.test/@/w1/lobby")
	v.Set("name", uuid)
	return v
}

func readServerMessage(t *testing.T, conn *websocket.Conn) wire.ServerMessage {
	t.Helper()
	codec := wire.NewCodec()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		msgType, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType != websocket.BinaryMessage {
			continue
		}
		msg, err := codec.DecodeServer(frame)
		require.NoError(t, err)
		return msg
	}
}

func sendClientMessage(t *testing.T, conn *websocket.Conn, msg wire.ClientMessage) {
	t.Helper()
	frame, err := wire.NewCodec().EncodeClient(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		require.Equal(t, code, closeErr.Code)
		return
	}
}

func TestServerRejectsVersionMismatch(t *testing.T) {
	f := newGatewayFixture(t)

	q := validQuery("alice")
	q.Set("version", "99.0.0")
	conn := f.dialRoom(q)

	msg := readServerMessage(t, conn)
	screen := msg.(*wire.ErrorScreenMessage)
	require.Equal(t, "retry", screen.Code)
	require.True(t, screen.CanRetry)

	expectClose(t, conn, wire.CloseNormal)
	require.Zero(t, f.identityCalls.Load(), "version gate must fire before the profile fetch")
}

func TestServerRejectsInvalidTexture(t *testing.T) {
	f := newGatewayFixture(t)

	q := validQuery("alice")
	q.Set("characterTextureIds", "invalid")
	conn := f.dialRoom(q)

	msg := readServerMessage(t, conn)
	invalid := msg.(*wire.InvalidTextureMessage)
	require.Equal(t, "character", invalid.Entity)
	expectClose(t, conn, wire.CloseNormal)

	// A rejected upgrade allocates nothing, the touched room included.
	require.Zero(t, f.server.manager.Len())
	require.Zero(t, f.server.registry.Len())
	require.Zero(t, f.server.rooms.Len())
}

func TestServerAbortedHandshakeAllocatesNothing(t *testing.T) {
	f := newGatewayFixture(t)
	f.identityDelay.Store(300 * time.Millisecond)

	before := testutil.ToFloat64(metrics.HandshakeRejections.WithLabelValues(rejectAborted))

	// The client gives up while the profile fetch is still in flight; the
	// server must notice the dead transport instead of upgrading it.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(f.gateway.URL, "http") + "/room?" + validQuery("alice").Encode()
	_, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.HandshakeRejections.WithLabelValues(rejectAborted)) > before
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, int64(1), f.identityCalls.Load())
	require.Zero(t, f.server.manager.Len())
	require.Zero(t, f.server.registry.Len())
	require.Zero(t, f.server.rooms.Len())
}

func TestServerRejectsForgedToken(t *testing.T) {
	f := newGatewayFixture(t)

	q := validQuery("alice")
	q.Set("token", "forged.token.value")
	conn := f.dialRoom(q)

	msg := readServerMessage(t, conn)
	require.IsType(t, &wire.TokenExpiredMessage{}, msg)
	expectClose(t, conn, wire.CloseNormal)
}

func TestServerPing(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dialRoom(validQuery("alice"))

	sendClientMessage(t, conn, &wire.PingMessage{})
	msg := readServerMessage(t, conn)
	require.IsType(t, &wire.PingResponseMessage{}, msg)
}

func TestServerClosesOnGarbageFrame(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dialRoom(validQuery("alice"))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	expectClose(t, conn, wire.CloseInvalidMessage)
}

func TestServerSpaceEventsReachWatchers(t *testing.T) {
	f := newGatewayFixture(t)

	alice := f.dialRoom(validQuery("alice"))
	bob := f.dialRoom(validQuery("bob"))

	sendClientMessage(t, alice, &wire.JoinSpaceMessage{SpaceName: "plaza"})
	sendClientMessage(t, alice, &wire.AddSpaceFilterMessage{Filter: wire.SpaceFilter{
		ID: "f1", SpaceName: "plaza", Kind: wire.FilterEverybody,
	}})

	// Wait until the join landed before bob enters.
	require.Eventually(t, func() bool {
		return f.server.registry.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sendClientMessage(t, bob, &wire.JoinSpaceMessage{SpaceName: "plaza"})

	msg := readServerMessage(t, alice)
	batch := msg.(*wire.BatchMessage)
	require.NotEmpty(t, batch.Payload)
	inner, err := batch.Payload[0].Decode()
	require.NoError(t, err)
	joined := inner.(*wire.SpaceUserJoinedMessage)
	require.Equal(t, "w1.plaza", joined.SpaceName)
	require.Equal(t, "bob", joined.User.Name)
}

func TestServerCleanupOnDisconnect(t *testing.T) {
	f := newGatewayFixture(t)

	conn := f.dialRoom(validQuery("alice"))
	sendClientMessage(t, conn, &wire.JoinSpaceMessage{SpaceName: "plaza"})

	require.Eventually(t, func() bool {
		return f.server.registry.Len() == 1 && f.server.manager.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return f.server.registry.Len() == 0 && f.server.manager.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdminSocket(t *testing.T) {
	f := newGatewayFixture(t)
	wsBase := "ws" + strings.TrimPrefix(f.gateway.URL, "http")

	// Without a token the endpoint refuses before upgrading.
	_, resp, err := websocket.DefaultDialer.Dial(wsBase+"/admin/rooms", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Invalid JSON closes with 1007.
	conn, _, err := websocket.DefaultDialer.Dial(wsBase+"/admin/rooms?token=admin-token", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	expectClose(t, conn, wire.CloseInvalidMessage)

	// Touching a room outside the listen set closes with 1008.
	conn, _, err = websocket.DefaultDialer.Dial(wsBase+"/admin/rooms?token=admin-token", nil)
	require.NoError(t, err)
	listen, _ := json.Marshal(map[string]any{"event": "listen", "roomIds": []string{"room-a"}})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, listen))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, ack, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(ack), "ack")

	intrusion, _ := json.Marshal(map[string]any{"event": "user-message", "roomId": "room-b", "message": "hi"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, intrusion))
	expectClose(t, conn, wire.CloseAccessRefused)
}

func TestAdminSocketScopedToken(t *testing.T) {
	f := newGatewayFixture(t)
	wsBase := "ws" + strings.TrimPrefix(f.gateway.URL, "http")
	room := "https://play.test/@/w1/lobby"

	_ = f.dialRoom(validQuery("alice"))
	require.Eventually(t, func() bool {
		return f.server.rooms.Occupancy(room) == 1
	}, 2*time.Second, 10*time.Millisecond)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &service.AdminClaims{
		Rooms: []string{room},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsBase+"/admin/rooms?token="+url.QueryEscape(signed), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Listening inside the scope works and reports live occupancy.
	listen, _ := json.Marshal(map[string]any{"event": "listen", "roomIds": []string{room}})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, listen))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ack adminResponse
	require.NoError(t, json.Unmarshal(raw, &ack))
	require.Equal(t, "ack", ack.Event)
	require.Equal(t, 1, ack.Rooms[room])

	// Listening outside the scope closes the socket with 1008.
	overreach, _ := json.Marshal(map[string]any{"event": "listen", "roomIds": []string{"https://play.test/@/w2/vault"}})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, overreach))
	expectClose(t, conn, wire.CloseAccessRefused)
}
