package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
	"github.com/lk2023060901/space-gateway-go/pkg/util/typeutil"
)

// testSession builds a Session without a live connection; outbound frames
// pile up in the send queue where tests can decode them.
func testSession(tags []string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     1,
		ctx:    ctx,
		cancel: cancel,
		member: &service.MemberData{
			UserUUID: "uuid-1",
			Tags:     tags,
		},
		playURI:      "https://play.test/@/w1/lobby",
		world:        "w1",
		name:         "alice",
		spaces:       typeutil.NewSet[string](),
		sendQueue:    make(chan []byte, 64),
		budget:       1 << 20,
		writeTimeout: time.Second,
		codec:        wire.NewCodec(),
		writerDone:   make(chan struct{}),
	}
	s.batcher = newBatcher(time.Millisecond, 16, s.flushBatch)
	s.details = wire.SpaceUser{ID: 1, UUID: "uuid-1", Name: "alice", Tags: tags}
	return s
}

// nextFrame decodes the next queued outbound message.
func nextFrame(t *testing.T, s *Session) wire.ServerMessage {
	t.Helper()
	select {
	case frame := <-s.sendQueue:
		msg, err := s.codec.DecodeServer(frame)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("no outbound frame")
		return nil
	}
}

func requireNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.sendQueue:
		t.Fatal("unexpected extra frame")
	default:
	}
}

func TestQueryRoomTagsAnsweredLocally(t *testing.T) {
	s := testSession([]string{"admin", "editor"})
	c := NewCorrelator(nil, nil)

	query, err := wire.NewQuery(wire.QueryRoomTags, nil)
	require.NoError(t, err)
	c.Handle(context.Background(), s, &wire.QueryMessage{ID: 7, Query: query})

	msg := nextFrame(t, s)
	answer := msg.(*wire.AnswerMessage)
	require.Equal(t, uint32(7), answer.ID)
	require.Equal(t, wire.AnswerKind(wire.QueryRoomTags), answer.Answer.Kind)

	var tags wire.RoomTagsAnswer
	require.NoError(t, answer.Answer.DecodeData(&tags))
	require.Equal(t, []string{"admin", "editor"}, tags.Tags)

	requireNoFrame(t, s)
}

// stubUplink captures forwarded messages in place of a live back uplink.
type stubUplink struct {
	mu   sync.Mutex
	err  error
	msgs []wire.ClientMessage
}

func (u *stubUplink) Forward(msg wire.ClientMessage) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.msgs = append(u.msgs, msg)
	return nil
}

func (u *stubUplink) sent() []wire.ClientMessage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]wire.ClientMessage(nil), u.msgs...)
}

func TestQueryUnknownKindPassedThrough(t *testing.T) {
	s := testSession(nil)
	up := &stubUplink{}
	c := NewCorrelator(nil, up)

	c.Handle(context.Background(), s, &wire.QueryMessage{
		ID:    21,
		Query: wire.Query{Kind: "turnCredentials"},
	})

	// Nothing is answered locally; the query travels upstream under a
	// fresh correlation id.
	requireNoFrame(t, s)
	sent := up.sent()
	require.Len(t, sent, 1)
	fwd := sent[0].(*wire.QueryMessage)
	require.Equal(t, wire.QueryKind("turnCredentials"), fwd.Query.Kind)
	require.NotEqual(t, uint32(21), fwd.ID)

	answer, err := wire.NewAnswer(wire.QueryKind("turnCredentials"), map[string]string{"host": "turn.test"})
	require.NoError(t, err)
	c.OnBackAnswer(&wire.AnswerMessage{ID: fwd.ID, Answer: answer})

	got := nextFrame(t, s).(*wire.AnswerMessage)
	require.Equal(t, uint32(21), got.ID, "the client sees its own query id")
	require.Equal(t, wire.AnswerKind("turnCredentials"), got.Answer.Kind)

	// A duplicate answer for a settled id is dropped.
	c.OnBackAnswer(&wire.AnswerMessage{ID: fwd.ID, Answer: answer})
	requireNoFrame(t, s)
}

func TestQueryPassThroughTimesOut(t *testing.T) {
	s := testSession(nil)
	c := NewCorrelator(nil, &stubUplink{})
	c.timeout = 20 * time.Millisecond

	c.Handle(context.Background(), s, &wire.QueryMessage{
		ID:    5,
		Query: wire.Query{Kind: "turnCredentials"},
	})

	got := nextFrame(t, s).(*wire.AnswerMessage)
	require.Equal(t, uint32(5), got.ID)
	require.Equal(t, wire.AnswerError, got.Answer.Kind)
	requireNoFrame(t, s)
}

func TestQueryPassThroughUplinkDown(t *testing.T) {
	s := testSession(nil)
	up := &stubUplink{err: merr.WrapErrBackForward(0, "uplink queue full")}
	c := NewCorrelator(nil, up)

	c.Handle(context.Background(), s, &wire.QueryMessage{
		ID:    6,
		Query: wire.Query{Kind: "turnCredentials"},
	})

	got := nextFrame(t, s).(*wire.AnswerMessage)
	require.Equal(t, uint32(6), got.ID)
	require.Equal(t, wire.AnswerError, got.Answer.Kind)
	requireNoFrame(t, s)
}

func TestQueryUnsupportedKindStillAnswers(t *testing.T) {
	// Without an uplink, unknown kinds resolve locally to an error answer
	// so the client never waits forever.
	s := testSession(nil)
	c := NewCorrelator(nil, nil)

	c.Handle(context.Background(), s, &wire.QueryMessage{
		ID:    3,
		Query: wire.Query{Kind: "definitelyNotAQuery"},
	})

	answer := nextFrame(t, s).(*wire.AnswerMessage)
	require.Equal(t, uint32(3), answer.ID)
	require.Equal(t, wire.AnswerError, answer.Answer.Kind)
	requireNoFrame(t, s)
}

func TestQueryBadPayloadStillAnswers(t *testing.T) {
	s := testSession(nil)
	c := NewCorrelator(nil, nil)

	c.Handle(context.Background(), s, &wire.QueryMessage{
		ID:    4,
		Query: wire.Query{Kind: wire.QuerySearchMember, Data: []byte("{broken")},
	})

	answer := nextFrame(t, s).(*wire.AnswerMessage)
	require.Equal(t, uint32(4), answer.ID)
	require.Equal(t, wire.AnswerError, answer.Answer.Kind)
	requireNoFrame(t, s)
}

func TestQueryPanicStillAnswers(t *testing.T) {
	s := testSession(nil)
	// A nil identity client makes upstream-backed handlers panic; the
	// correlator must still produce exactly one answer.
	c := NewCorrelator(nil, nil)

	query, err := wire.NewQuery(wire.QueryEmbeddableWebsite, wire.EmbeddableWebsiteQuery{URL: "https://example.com"})
	require.NoError(t, err)
	c.Handle(context.Background(), s, &wire.QueryMessage{ID: 9, Query: query})

	answer := nextFrame(t, s).(*wire.AnswerMessage)
	require.Equal(t, uint32(9), answer.ID)
	require.Equal(t, wire.AnswerError, answer.Answer.Kind)
	requireNoFrame(t, s)
}
