package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lk2023060901/space-gateway-go/internal/back"
	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/space"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// Server is the websocket front of the gateway: it vets connection
// requests, owns every live session, and bridges them to spaces, the
// identity service and the back uplink.
type Server struct {
	cfg Config

	verifier *service.TokenVerifier
	identity *service.IdentityClient
	presence *service.Presence
	registry *space.Registry
	manager  *SessionManager
	zones    *ZoneIndex
	rooms    *RoomRegistry

	correlator *Correlator
	forwarder  *back.Forwarder
	router     *Router

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

var _ back.Handler = (*Server)(nil)

// NewServer wires a Server. The forwarder is created by the caller so its
// lifecycle (and reconnect loop) outlives server restarts in tests.
func NewServer(cfg Config, identity *service.IdentityClient, forwarder *back.Forwarder) (*Server, error) {
	cfg.fillDefaults()

	registry, err := space.NewRegistry()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:       cfg,
		verifier:  service.NewTokenVerifier(cfg.JWTSecret, cfg.AdminToken),
		identity:  identity,
		presence:  service.NewPresence(identity),
		registry:  registry,
		manager:   NewSessionManager(),
		zones:     NewZoneIndex(defaultZoneCell),
		rooms:     NewRoomRegistry(),
		forwarder: forwarder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway sits behind the platform front proxy which
			// enforces the origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	// A nil *Forwarder must stay a nil uplink, not a non-nil interface
	// wrapping a nil pointer.
	var up uplink
	if forwarder != nil {
		up = forwarder
	}
	srv.correlator = NewCorrelator(identity, up)
	srv.router = NewRouter(registry, srv.correlator, srv.presence, identity, forwarder, srv.manager, srv.zones)
	return srv, nil
}

// Registry exposes the space registry, mainly for tests.
func (srv *Server) Registry() *space.Registry { return srv.registry }

// Manager exposes the session manager, mainly for tests.
func (srv *Server) Manager() *SessionManager { return srv.manager }

// Handler returns the HTTP handler serving every gateway endpoint.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/room", srv.handleRoom)
	mux.HandleFunc("/admin/rooms", srv.handleAdminRooms)
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is canceled, then drains: every session is closed
// with a normal close code before the listener shuts down.
func (srv *Server) Run(ctx context.Context) error {
	srv.httpSrv = &http.Server{
		Addr:    srv.cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", zap.String("addr", srv.cfg.ListenAddr))
		errCh <- srv.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	srv.manager.Range(func(s *Session) bool {
		s.Close(wire.CloseNormal, "server shutting down")
		return true
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.httpSrv.Shutdown(shutdownCtx)
	srv.registry.Close()
	return err
}

// handleRoom runs the upgrade handshake and, when it passes, the session
// read loop. Rejections still upgrade so the client gets a typed reason
// before the close frame, except when the client itself went away, which
// leaves nothing to upgrade or deliver to.
func (srv *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	result, reject := srv.handshake(r)

	if reject != nil {
		metrics.HandshakeRejections.WithLabelValues(reject.reason).Inc()
		if reject.roomID != "" {
			srv.rooms.DeleteIfEmpty(reject.roomID)
		}
		if reject.reason == rejectAborted {
			return
		}
		conn, err := srv.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		srv.deliverRejection(conn, reject)
		return
	}

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		srv.rooms.DeleteIfEmpty(result.playURI)
		return
	}

	s := newSession(context.Background(), sessionParams{
		id:            srv.manager.NextID(),
		conn:          conn,
		claims:        result.claims,
		member:        result.member,
		playURI:       result.playURI,
		world:         result.world,
		name:          result.name,
		ip:            result.ip,
		position:      result.position,
		viewport:      result.viewport,
		availability:  result.availability,
		lastCommandID: result.lastCommandID,
		cfg:           &srv.cfg,
		onClose:       srv.cleanupSession,
	})
	srv.zones.Update(s.ID(), result.viewport)
	if err := srv.manager.Add(s); err != nil {
		log.Error("register session failed", log.FieldSession(s.ID()), zap.Error(err))
		s.Close(wire.CloseNormal, "internal error")
		srv.rooms.DeleteIfEmpty(result.playURI)
		return
	}
	srv.rooms.Join(result.playURI, s.ID())

	log.Info("session opened",
		log.FieldSession(s.ID()),
		zap.String("uuid", s.UUID()),
		log.FieldWorld(s.World()),
		log.FieldRoom(s.PlayURI()))

	// Notices queued while the user was offline are delivered first.
	for _, pending := range result.member.PendingMessages {
		s.SendNow(&wire.SendUserMessage{Type: pending.Type, Message: pending.Message})
		if pending.Type == "ban" {
			s.Close(wire.CloseNormal, "banned")
			return
		}
	}

	srv.readLoop(s)
}

// deliverRejection sends the typed rejection over the fresh connection and
// closes it.
func (srv *Server) deliverRejection(conn *websocket.Conn, reject *rejection) {
	codec := wire.NewCodec()
	deadline := time.Now().Add(srv.cfg.writeTimeout())
	if reject.msg != nil {
		if frame, err := codec.EncodeServer(reject.msg); err == nil {
			_ = conn.SetWriteDeadline(deadline)
			_ = conn.WriteMessage(websocket.BinaryMessage, frame)
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(reject.code, reject.reason), deadline)
	_ = conn.Close()
}

// readLoop pumps inbound frames until the connection dies or the session
// violates the protocol.
func (srv *Server) readLoop(s *Session) {
	codec := wire.NewCodec()
	limiter := rate.NewLimiter(rate.Limit(srv.cfg.MessagesPerSecond), srv.cfg.MessagesPerSecond)

	idle := srv.cfg.idleTimeout()
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(idle))
		msgType, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.Close(wire.CloseNormal, "connection closed")
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		if !limiter.Allow() {
			log.Debug("inbound message rate limited", log.FieldSession(s.ID()))
			continue
		}

		msg, err := codec.DecodeClient(frame)
		if err != nil {
			log.Warn("undecodable client frame", log.FieldSession(s.ID()), zap.Error(err))
			s.Close(wire.CloseInvalidMessage, "invalid message")
			return
		}

		if err := srv.router.Dispatch(s.Context(), s, msg); err != nil {
			log.Warn("dispatch rejected message",
				log.FieldSession(s.ID()),
				log.FieldOp(uint32(msg.ClientKind())),
				zap.Error(err))
			if merr.Code(err) == merr.Code(merr.ErrAdminUnauthorized) {
				s.Close(wire.CloseAccessRefused, "access refused")
			} else {
				s.Close(wire.CloseInvalidMessage, "protocol violation")
			}
			return
		}
	}
}

// cleanupSession detaches a closing session from every shared structure.
// Runs exactly once, from Session.Close.
func (srv *Server) cleanupSession(s *Session) {
	for _, joined := range s.JoinedSpaces() {
		name, err := space.ParseName(joined)
		if err != nil {
			continue
		}
		srv.registry.Leave(name, s.ID())
	}
	srv.zones.Remove(s.ID())
	srv.rooms.Leave(s.PlayURI(), s.ID())
	srv.presence.LeaveAllAreas(s.ID())
	srv.manager.Remove(s.ID())
}

// handleAdminRooms authenticates and serves one admin socket.
func (srv *Server) handleAdminRooms(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	claims, err := srv.verifier.VerifyAdminToken(token)
	if err != nil {
		log.Warn("admin authentication failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("admin upgrade failed", zap.Error(err))
		return
	}
	srv.serveAdmin(conn, claims)
}

// OnBackMessage routes messages pushed by the back over the shared uplink.
// Targeted messages reach their session; untargeted ones fan out to every
// session, which matches the back's broadcast semantics.
func (srv *Server) OnBackMessage(msg wire.ServerMessage) {
	switch m := msg.(type) {
	case *wire.AnswerMessage:
		srv.correlator.OnBackAnswer(m)
	case *wire.SpacePrivateEventMessage:
		if s, err := srv.manager.Get(m.ReceiverUserID); err == nil {
			s.Emit(m)
		}
	case *wire.UserMovedMessage:
		// Movement only reaches sessions whose viewport covers the mover.
		for _, id := range srv.zones.SessionsAt(m.Position) {
			if id == m.UserID {
				continue
			}
			if s, err := srv.manager.Get(id); err == nil {
				s.Emit(m)
			}
		}
	case *wire.SendUserMessage:
		srv.manager.Range(func(s *Session) bool {
			s.SendNow(m)
			return true
		})
	default:
		srv.manager.Range(func(s *Session) bool {
			s.Emit(msg)
			return true
		})
	}
}
