package space

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
)

// fakeWatcher records every event it receives.
type fakeWatcher struct {
	id uint64

	mu   sync.Mutex
	msgs []wire.ServerMessage
}

func (w *fakeWatcher) ID() uint64 { return w.id }

func (w *fakeWatcher) Emit(msg wire.ServerMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msg)
}

func (w *fakeWatcher) events() []wire.ServerMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]wire.ServerMessage, len(w.msgs))
	copy(out, w.msgs)
	return out
}

func (w *fakeWatcher) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = nil
}

func everybody(id, spaceName string) wire.SpaceFilter {
	return wire.SpaceFilter{ID: id, SpaceName: spaceName, Kind: wire.FilterEverybody}
}

type SpaceSuite struct {
	suite.Suite

	registry *Registry
}

func (s *SpaceSuite) SetupTest() {
	registry, err := NewRegistry(WithFanOutWorkers(8))
	s.Require().NoError(err)
	s.registry = registry
}

func (s *SpaceSuite) TearDownTest() {
	s.registry.Close()
}

func (s *SpaceSuite) name(qualified string) Name {
	name, err := ParseName(qualified)
	s.Require().NoError(err)
	return name
}

func (s *SpaceSuite) TestWorldsAreIsolated() {
	lobbyW1 := s.name("w1.lobby")
	lobbyW2 := s.name("w2.lobby")

	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}

	s.registry.Join(lobbyW1, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.Require().NoError(s.registry.AddFilter(lobbyW1, 1, everybody("f1", "lobby")))

	// Bob joins the identically named space of another world.
	s.registry.Join(lobbyW2, bob, wire.SpaceUser{ID: 2, Name: "bob"})

	s.Empty(alice.events(), "events must not cross world boundaries")
	s.Equal(2, s.registry.Len())
}

func (s *SpaceSuite) TestJoinIsIdempotent() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})

	sp, err := s.registry.get(lobby)
	s.Require().NoError(err)
	s.Equal(1, sp.Len())
}

func (s *SpaceSuite) TestFilterGatesVisibility() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})

	// No filters yet, so nobody saw anybody.
	s.Empty(alice.events())

	// Adding a filter back-fills the users it exposes.
	s.Require().NoError(s.registry.AddFilter(lobby, 1, everybody("f1", "lobby")))
	events := alice.events()
	s.Require().Len(events, 1)
	joined := events[0].(*wire.SpaceUserJoinedMessage)
	s.Equal(uint64(2), joined.User.ID)
	s.Equal("w1.lobby", joined.SpaceName)

	// Removing it emits the symmetric left events.
	alice.reset()
	s.Require().NoError(s.registry.RemoveFilter(lobby, 1, "f1"))
	events = alice.events()
	s.Require().Len(events, 1)
	left := events[0].(*wire.SpaceUserLeftMessage)
	s.Equal(uint64(2), left.UserID)
}

func (s *SpaceSuite) TestUpdateFilterDiffsVisibility() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}
	carol := &fakeWatcher{id: 3}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})
	s.registry.Join(lobby, carol, wire.SpaceUser{ID: 3, Name: "carol"})

	s.Require().NoError(s.registry.AddFilter(lobby, 1, wire.SpaceFilter{
		ID: "f1", SpaceName: "lobby", Kind: wire.FilterNameContains, Value: "bob",
	}))
	s.Require().Len(alice.events(), 1)

	alice.reset()
	s.Require().NoError(s.registry.UpdateFilter(lobby, 1, wire.SpaceFilter{
		ID: "f1", SpaceName: "lobby", Kind: wire.FilterNameContains, Value: "carol",
	}))

	var sawCarolJoin, sawBobLeave bool
	for _, ev := range alice.events() {
		switch m := ev.(type) {
		case *wire.SpaceUserJoinedMessage:
			sawCarolJoin = m.User.ID == 3
		case *wire.SpaceUserLeftMessage:
			sawBobLeave = m.UserID == 2
		}
	}
	s.True(sawCarolJoin)
	s.True(sawBobLeave)
}

func (s *SpaceSuite) TestUpdateUserReclassifies() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})

	s.Require().NoError(s.registry.AddFilter(lobby, 1, wire.SpaceFilter{
		ID: "f1", SpaceName: "lobby", Kind: wire.FilterLiveStreaming,
	}))
	s.Empty(alice.events(), "bob is not streaming yet")

	// Bob turns on the camera and becomes visible.
	s.Require().NoError(s.registry.UpdateUser(lobby, 2,
		wire.SpaceUser{ID: 2, Name: "bob", CameraState: true}, nil))
	events := alice.events()
	s.Require().Len(events, 1)
	s.IsType(&wire.SpaceUserJoinedMessage{}, events[0])

	// A further update while visible is an update event.
	alice.reset()
	s.Require().NoError(s.registry.UpdateUser(lobby, 2,
		wire.SpaceUser{ID: 2, Name: "bob", CameraState: true, MicrophoneState: true}, []string{"microphoneState"}))
	events = alice.events()
	s.Require().Len(events, 1)
	updated := events[0].(*wire.SpaceUserUpdatedMessage)
	s.Equal([]string{"microphoneState"}, updated.UpdateMask)

	// Camera off hides him again.
	alice.reset()
	s.Require().NoError(s.registry.UpdateUser(lobby, 2,
		wire.SpaceUser{ID: 2, Name: "bob"}, nil))
	events = alice.events()
	s.Require().Len(events, 1)
	s.IsType(&wire.SpaceUserLeftMessage{}, events[0])
}

func (s *SpaceSuite) TestMetadataMergeAndSnapshot() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})

	s.Require().NoError(s.registry.UpdateMetadata(lobby, `{"theme":"dark","slots":4}`))
	// Later writers win per key, untouched keys survive.
	s.Require().NoError(s.registry.UpdateMetadata(lobby, `{"theme":"light"}`))

	events := alice.events()
	s.Require().Len(events, 2)
	last := events[1].(*wire.SpaceMetadataUpdatedMessage)
	s.Contains(last.Metadata, `"theme":"light"`)
	s.Contains(last.Metadata, `"slots"`)

	// A joiner receives the merged snapshot immediately.
	bob := &fakeWatcher{id: 2}
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})
	bobEvents := bob.events()
	s.Require().Len(bobEvents, 1)
	snapshot := bobEvents[0].(*wire.SpaceMetadataUpdatedMessage)
	s.Contains(snapshot.Metadata, `"theme":"light"`)

	s.Error(s.registry.UpdateMetadata(lobby, `["not","an","object"]`))
}

func (s *SpaceSuite) TestLastLeaveCollectsSpace() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})
	s.Equal(1, s.registry.Len())

	s.registry.Leave(lobby, 1)
	s.Equal(1, s.registry.Len(), "space must survive while subscribers remain")

	s.registry.Leave(lobby, 2)
	s.Equal(0, s.registry.Len(), "last leave collects the space")

	// Leaving again is a no-op.
	s.registry.Leave(lobby, 2)

	// A recreated space starts with fresh state.
	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.Empty(alice.events(), "no stale metadata snapshot after recreation")
}

func (s *SpaceSuite) TestLeaveNotifiesWatchers() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})
	s.Require().NoError(s.registry.AddFilter(lobby, 1, everybody("f1", "lobby")))
	alice.reset()

	s.registry.Leave(lobby, 2)
	events := alice.events()
	s.Require().Len(events, 1)
	left := events[0].(*wire.SpaceUserLeftMessage)
	s.Equal(uint64(2), left.UserID)
}

func (s *SpaceSuite) TestPublicEvent() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})

	s.Require().NoError(s.registry.PublicEvent(lobby, 1, `{"kind":"megaphone"}`))

	s.Empty(alice.events(), "sender does not hear its own event")
	events := bob.events()
	s.Require().Len(events, 1)
	ev := events[0].(*wire.SpacePublicEventMessage)
	s.Equal(uint64(1), ev.SenderUserID)
	s.Equal(`{"kind":"megaphone"}`, ev.Event)
}

func (s *SpaceSuite) TestPrivateEvent() {
	lobby := s.name("w1.lobby")
	alice := &fakeWatcher{id: 1}
	bob := &fakeWatcher{id: 2}
	carol := &fakeWatcher{id: 3}

	s.registry.Join(lobby, alice, wire.SpaceUser{ID: 1, Name: "alice"})
	s.registry.Join(lobby, bob, wire.SpaceUser{ID: 2, Name: "bob"})
	s.registry.Join(lobby, carol, wire.SpaceUser{ID: 3, Name: "carol"})

	s.Require().NoError(s.registry.PrivateEvent(lobby, 1, 2, `{"kind":"whisper"}`))

	s.Empty(alice.events())
	s.Empty(carol.events())
	events := bob.events()
	s.Require().Len(events, 1)
	ev := events[0].(*wire.SpacePrivateEventMessage)
	s.Equal(uint64(1), ev.SenderUserID)
	s.Equal(uint64(2), ev.ReceiverUserID)

	// Unknown receiver is an error, not a broadcast.
	s.Error(s.registry.PrivateEvent(lobby, 1, 99, "x"))
}

func (s *SpaceSuite) TestOperationsOnUnknownSpaceFail() {
	ghost := s.name("w1.ghost")
	s.Error(s.registry.AddFilter(ghost, 1, everybody("f1", "ghost")))
	s.Error(s.registry.UpdateMetadata(ghost, `{}`))
	s.Error(s.registry.PublicEvent(ghost, 1, "x"))
}

func TestSpaces(t *testing.T) {
	suite.Run(t, new(SpaceSuite))
}
