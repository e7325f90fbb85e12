package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/space"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/util/typeutil"
)

// Session is one authenticated client connection.
//
// All writes to the underlying connection go through the send queue and the
// single writer goroutine; events take the batching path (Emit), control
// messages bypass it (SendNow). Close is idempotent and runs the cleanup
// hook exactly once.
type Session struct {
	id   uint64
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	claims *service.Claims
	member *service.MemberData

	playURI       string
	world         string
	name          string
	ipAddress     string
	lastCommandID string

	mu       sync.Mutex
	position wire.Position
	viewport wire.Viewport
	details  wire.SpaceUser
	spaces   typeutil.Set[string]

	sendQueue   chan []byte
	outstanding atomic.Int64
	budget      int64

	writeTimeout time.Duration

	codec   *wire.Codec
	batcher *batcher

	// disconnecting is set the moment teardown starts; the router drops
	// inbound messages and Emit drops outbound events once it is up.
	disconnecting atomic.Bool
	closeOnce     sync.Once
	writerDone    chan struct{}

	onClose func(*Session)
}

var _ space.Watcher = (*Session)(nil)

type sessionParams struct {
	id      uint64
	conn    *websocket.Conn
	claims  *service.Claims
	member  *service.MemberData
	playURI string
	world   string
	name    string
	ip      string

	position      wire.Position
	viewport      wire.Viewport
	availability  int32
	lastCommandID string

	cfg     *Config
	onClose func(*Session)
}

func newSession(parent context.Context, p sessionParams) *Session {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:            p.id,
		conn:          p.conn,
		ctx:           ctx,
		cancel:        cancel,
		claims:        p.claims,
		member:        p.member,
		playURI:       p.playURI,
		world:         p.world,
		name:          p.name,
		ipAddress:     p.ip,
		lastCommandID: p.lastCommandID,
		position:      p.position,
		viewport:      p.viewport,
		spaces:        typeutil.NewSet[string](),
		sendQueue:     make(chan []byte, p.cfg.SendQueueSize),
		budget:        int64(p.cfg.MaxBackpressure),
		writeTimeout:  p.cfg.writeTimeout(),
		codec:         wire.NewCodec(),
		writerDone:    make(chan struct{}),
		onClose:       p.onClose,
	}
	s.batcher = newBatcher(p.cfg.debounce(), p.cfg.MaxBatchSize, s.flushBatch)
	s.details = wire.SpaceUser{
		ID:                 p.id,
		UUID:               p.member.UserUUID,
		Name:               p.name,
		PlayURI:            p.playURI,
		IsLogged:           p.member.IsLogged,
		Color:              colorForName(p.name),
		AvailabilityStatus: p.availability,
		Tags:               p.member.Tags,
		ChatID:             p.member.ChatID,
	}
	if len(p.member.CharacterTextures) > 0 {
		s.details.CharacterTextures = p.member.CharacterTextures
	}

	go s.writeLoop()
	return s
}

// ID implements space.Watcher.
func (s *Session) ID() uint64 { return s.id }

// Context returns the session context; it is canceled when the session
// starts closing.
func (s *Session) Context() context.Context { return s.ctx }

// World returns the world the session belongs to.
func (s *Session) World() string { return s.world }

// PlayURI returns the room URL the session connected to.
func (s *Session) PlayURI() string { return s.playURI }

// Name returns the display name published to spaces.
func (s *Session) Name() string { return s.name }

// UUID returns the member uuid behind the session.
func (s *Session) UUID() string { return s.member.UserUUID }

// Tags returns the member's moderation tags.
func (s *Session) Tags() []string { return s.member.Tags }

// HasTag reports whether the session holds the given tag.
func (s *Session) HasTag(tag string) bool {
	for _, t := range s.member.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Details returns a copy of the presence record published to spaces.
func (s *Session) Details() wire.SpaceUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// UpdateDetails replaces the presence record, preserving the session id.
func (s *Session) UpdateDetails(user wire.SpaceUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.id
	s.details = user
}

// SetPosition records the latest movement report.
func (s *Session) SetPosition(pos wire.Position, vp wire.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = pos
	s.viewport = vp
}

// Position returns the last reported position.
func (s *Session) Position() wire.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Viewport returns the last reported viewport.
func (s *Session) Viewport() wire.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// LastCommandID returns the last map command the client claims to have
// applied, used by the back to skip replaying it.
func (s *Session) LastCommandID() string { return s.lastCommandID }

// TrackSpace remembers a joined space for teardown.
func (s *Session) TrackSpace(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces.Insert(name)
}

// ForgetSpace drops a space from the teardown list.
func (s *Session) ForgetSpace(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces.Remove(name)
}

// JoinedSpaces returns the qualified names of every joined space.
func (s *Session) JoinedSpaces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spaces.Collect()
}

// QualifySpaceName turns a client-local space name into a world-qualified one.
func (s *Session) QualifySpaceName(local string) (space.Name, error) {
	return space.NewName(s.world, local)
}

// Emit implements space.Watcher: the event joins the current batch window.
func (s *Session) Emit(msg wire.ServerMessage) {
	if s.disconnecting.Load() {
		return
	}
	s.batcher.emit(msg)
}

// SendNow ships a message immediately, bypassing the batcher. Used for
// answers to control traffic and for terminal notices.
func (s *Session) SendNow(msg wire.ServerMessage) {
	frame, err := s.codec.EncodeServer(msg)
	if err != nil {
		log.Warn("encode outbound message failed",
			log.FieldSession(s.id),
			zap.Uint32("op", uint32(msg.ServerKind())),
			zap.Error(err))
		return
	}
	s.enqueue(frame)
}

// flushBatch ships a batch unless the connection is saturated.
func (s *Session) flushBatch(batch *wire.BatchMessage) bool {
	if s.outstanding.Load() > s.budget && !s.disconnecting.Load() {
		return false
	}
	frame, err := s.codec.EncodeServer(batch)
	if err != nil {
		log.Warn("encode batch failed", log.FieldSession(s.id), zap.Error(err))
		return true
	}
	s.enqueue(frame)
	return true
}

func (s *Session) enqueue(frame []byte) {
	s.outstanding.Add(int64(len(frame)))
	select {
	case s.sendQueue <- frame:
	case <-s.ctx.Done():
		s.outstanding.Sub(int64(len(frame)))
	default:
		// Queue full on a live session: the client cannot keep up.
		s.outstanding.Sub(int64(len(frame)))
		log.Warn("send queue overflow, closing session", log.FieldSession(s.id))
		go s.Close(wire.CloseNormal, "slow consumer")
	}
}

// writeLoop is the only goroutine writing to the connection.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case frame := <-s.sendQueue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := s.conn.WriteMessage(websocket.BinaryMessage, frame)
			s.outstanding.Sub(int64(len(frame)))
			if err != nil {
				log.Debug("session write failed", log.FieldSession(s.id), zap.Error(err))
				go s.Close(wire.CloseNormal, "write failed")
				return
			}
			if s.outstanding.Load() <= s.budget {
				s.batcher.resume()
			}
		case <-s.ctx.Done():
			// Drain what was queued before teardown started.
			for {
				select {
				case frame := <-s.sendQueue:
					_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
					if s.conn.WriteMessage(websocket.BinaryMessage, frame) != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// Disconnecting reports whether teardown has started.
func (s *Session) Disconnecting() bool {
	return s.disconnecting.Load()
}

// Close tears the session down exactly once: the batcher flushes its tail,
// the cleanup hook detaches the session from spaces and presence, and the
// websocket is closed with the given code.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.disconnecting.Store(true)
		s.batcher.close()

		if s.onClose != nil {
			s.onClose(s)
		}

		s.cancel()
		<-s.writerDone

		deadline := time.Now().Add(s.writeTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		_ = s.conn.Close()

		log.Info("session closed",
			log.FieldSession(s.id),
			zap.Int("code", code),
			zap.String("reason", reason))
	})
}
