package gateway

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

const defaultQueryTimeout = 10 * time.Second

// uplink relays client messages to the back service.
type uplink interface {
	Forward(msg wire.ClientMessage) error
}

// remoteQuery is a query in flight on the back uplink, waiting for its
// answer to come down again.
type remoteQuery struct {
	session *Session
	queryID uint32
	timer   *time.Timer
}

// Correlator answers client queries. Every query produces exactly one
// answer with the query's id: success, a typed error answer on failure,
// and an error answer even when a handler panics.
//
// Kinds the gateway does not resolve itself are passed through to the back
// over the uplink. The uplink is shared by every session, so pass-through
// queries travel under a fresh correlation id and the original id is
// restored when the answer comes back. A timer guarantees the client still
// gets exactly one answer when the back never responds.
type Correlator struct {
	identity *service.IdentityClient
	uplink   uplink
	timeout  time.Duration

	mu         sync.Mutex
	nextRemote uint32
	remote     map[uint32]*remoteQuery
}

// NewCorrelator creates a Correlator backed by the identity client. up may
// be nil when no back uplink exists; pass-through kinds then resolve to an
// error answer locally.
func NewCorrelator(identity *service.IdentityClient, up uplink) *Correlator {
	return &Correlator{
		identity: identity,
		uplink:   up,
		timeout:  defaultQueryTimeout,
		remote:   make(map[uint32]*remoteQuery),
	}
}

// Handle resolves one query and ships the answer on the session.
func (c *Correlator) Handle(ctx context.Context, s *Session, msg *wire.QueryMessage) {
	if c.uplink != nil && !localQueryKind(msg.Query.Kind) {
		c.passThrough(s, msg)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var answer wire.Answer
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				buf = buf[:runtime.Stack(buf, false)]
				log.Ctx(ctx).Error("query handler panicked",
					log.FieldSession(s.ID()),
					zap.String("kind", string(msg.Query.Kind)),
					zap.Any("panic", r),
					zap.ByteString("stack", buf))
				answer = wire.NewErrorAnswer("internal error")
				metrics.QueriesAnswered.WithLabelValues("panic").Inc()
			}
		}()

		result, err := c.resolve(ctx, s, msg.Query)
		if err != nil {
			log.Ctx(ctx).Warn("query failed",
				log.FieldSession(s.ID()),
				zap.String("kind", string(msg.Query.Kind)),
				zap.Error(err))
			answer = wire.NewErrorAnswer(err.Error())
			if merr.Code(err) == merr.Code(merr.ErrQueryUnsupported) {
				metrics.QueriesAnswered.WithLabelValues("unsupported").Inc()
			} else {
				metrics.QueriesAnswered.WithLabelValues("error").Inc()
			}
			return
		}
		answer = result
		metrics.QueriesAnswered.WithLabelValues("ok").Inc()
	}()

	s.SendNow(&wire.AnswerMessage{ID: msg.ID, Answer: answer})
}

// localQueryKind reports whether the gateway resolves the kind itself.
func localQueryKind(k wire.QueryKind) bool {
	switch k {
	case wire.QueryRoomTags, wire.QueryEmbeddableWebsite, wire.QueryRoomsFromSameWorld,
		wire.QuerySearchMember, wire.QuerySearchTags, wire.QueryGetMember,
		wire.QueryChatMembers, wire.QueryCreateChatRoomForArea:
		return true
	}
	return false
}

// passThrough relays the query to the back under a fresh correlation id.
func (c *Correlator) passThrough(s *Session, msg *wire.QueryMessage) {
	rq := &remoteQuery{session: s, queryID: msg.ID}

	c.mu.Lock()
	c.nextRemote++
	id := c.nextRemote
	rq.timer = time.AfterFunc(c.timeout, func() {
		c.finishRemote(id, wire.NewErrorAnswer("backend query timed out"), "timeout")
	})
	c.remote[id] = rq
	c.mu.Unlock()

	fwd := *msg
	fwd.ID = id
	if err := c.uplink.Forward(&fwd); err != nil {
		log.Warn("query pass-through dropped",
			log.FieldSession(s.ID()),
			zap.String("kind", string(msg.Query.Kind)),
			zap.Error(err))
		c.finishRemote(id, wire.NewErrorAnswer("backend unavailable"), "error")
	}
}

// OnBackAnswer resolves a pass-through query with the answer the back
// pushed down. Answers for unknown ids (already timed out, or duplicated)
// are dropped.
func (c *Correlator) OnBackAnswer(msg *wire.AnswerMessage) {
	c.finishRemote(msg.ID, msg.Answer, "ok")
}

func (c *Correlator) finishRemote(id uint32, answer wire.Answer, outcome string) {
	c.mu.Lock()
	rq, ok := c.remote[id]
	if ok {
		delete(c.remote, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	rq.timer.Stop()
	metrics.QueriesAnswered.WithLabelValues(outcome).Inc()
	rq.session.SendNow(&wire.AnswerMessage{ID: rq.queryID, Answer: answer})
}

func (c *Correlator) resolve(ctx context.Context, s *Session, q wire.Query) (wire.Answer, error) {
	switch q.Kind {
	case wire.QueryRoomTags:
		return wire.NewAnswer(q.Kind, wire.RoomTagsAnswer{Tags: s.Tags()})

	case wire.QueryEmbeddableWebsite:
		var req wire.EmbeddableWebsiteQuery
		if err := q.DecodeData(&req); err != nil {
			return wire.Answer{}, merr.WrapErrQueryFailed(0, err.Error())
		}
		resp, err := c.identity.EmbeddableWebsite(ctx, req.URL)
		if err != nil {
			return wire.Answer{}, err
		}
		return wire.NewAnswer(q.Kind, resp)

	case wire.QueryRoomsFromSameWorld:
		rooms, err := c.identity.RoomsFromSameWorld(ctx, s.PlayURI())
		if err != nil {
			return wire.Answer{}, err
		}
		return wire.NewAnswer(q.Kind, wire.RoomsFromSameWorldAnswer{Rooms: rooms})

	case wire.QuerySearchMember:
		var req wire.SearchMemberQuery
		if err := q.DecodeData(&req); err != nil {
			return wire.Answer{}, merr.WrapErrQueryFailed(0, err.Error())
		}
		members, err := c.identity.SearchMembers(ctx, s.PlayURI(), req.SearchText)
		if err != nil {
			return wire.Answer{}, err
		}
		return wire.NewAnswer(q.Kind, wire.SearchMemberAnswer{Members: members})

	case wire.QuerySearchTags:
		var req wire.SearchTagsQuery
		if err := q.DecodeData(&req); err != nil {
			return wire.Answer{}, merr.WrapErrQueryFailed(0, err.Error())
		}
		tags, err := c.identity.SearchTags(ctx, s.PlayURI(), req.SearchText)
		if err != nil {
			return wire.Answer{}, err
		}
		return wire.NewAnswer(q.Kind, wire.SearchTagsAnswer{Tags: tags})

	case wire.QueryGetMember:
		var req wire.GetMemberQuery
		if err := q.DecodeData(&req); err != nil {
			return wire.Answer{}, merr.WrapErrQueryFailed(0, err.Error())
		}
		member, err := c.identity.GetMember(ctx, req.UUID)
		if err != nil {
			return wire.Answer{}, err
		}
		return wire.NewAnswer(q.Kind, wire.GetMemberAnswer{Member: *member})

	case wire.QueryChatMembers:
		var req wire.ChatMembersQuery
		if err := q.DecodeData(&req); err != nil {
			return wire.Answer{}, merr.WrapErrQueryFailed(0, err.Error())
		}
		resp, err := c.identity.ChatMembers(ctx, s.PlayURI(), req.SearchText)
		if err != nil {
			return wire.Answer{}, err
		}
		return wire.NewAnswer(q.Kind, resp)

	case wire.QueryCreateChatRoomForArea:
		var req wire.CreateChatRoomForAreaQuery
		if err := q.DecodeData(&req); err != nil {
			return wire.Answer{}, merr.WrapErrQueryFailed(0, err.Error())
		}
		roomID, err := c.identity.CreateChatRoomForArea(ctx, req.AreaID, req.RoomName)
		if err != nil {
			return wire.Answer{}, err
		}
		return wire.NewAnswer(q.Kind, wire.CreateChatRoomForAreaAnswer{RoomID: roomID})

	default:
		return wire.Answer{}, merr.WrapErrQueryUnsupported(string(q.Kind))
	}
}
