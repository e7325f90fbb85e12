package space

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/json"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
	"github.com/lk2023060901/space-gateway-go/pkg/util/typeutil"
)

// Watcher receives space events. Emit must never block; session batchers
// satisfy this by queueing.
type Watcher interface {
	ID() uint64
	Emit(msg wire.ServerMessage)
}

// subscriber is the per-watcher state of a space: the presence record the
// watcher published, its filters, and which users it currently sees.
type subscriber struct {
	watcher Watcher
	user    wire.SpaceUser
	filters map[string]wire.SpaceFilter
	visible typeutil.Set[uint64]
}

// matches reports whether any of the subscriber's filters selects user.
// A subscriber without filters watches nobody.
func (s *subscriber) matches(user wire.SpaceUser) bool {
	for _, f := range s.filters {
		if f.Matches(user) {
			return true
		}
	}
	return false
}

// Space is one shared presence channel. All mutation goes through the
// registry, which owns the fan-out pool; the per-space mutex serializes
// mutations so every watcher observes events in the same order.
type Space struct {
	name Name

	mu       sync.Mutex
	subs     map[uint64]*subscriber
	metadata map[string]interface{}

	fanOut func(fns []func())
}

func newSpace(name Name, fanOut func(fns []func())) *Space {
	return &Space{
		name:     name,
		subs:     make(map[uint64]*subscriber),
		metadata: make(map[string]interface{}),
		fanOut:   fanOut,
	}
}

// Name returns the world-qualified name of the space.
func (sp *Space) Name() Name { return sp.name }

// Len returns the current subscriber count.
func (sp *Space) Len() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.subs)
}

// join adds the watcher as a subscriber. Joining twice is a no-op.
// The joiner immediately receives the current metadata snapshot; existing
// watchers whose filters match the new user are notified.
func (sp *Space) join(w Watcher, user wire.SpaceUser) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if _, ok := sp.subs[w.ID()]; ok {
		return
	}
	sub := &subscriber{
		watcher: w,
		user:    user,
		filters: make(map[string]wire.SpaceFilter),
		visible: typeutil.NewSet[uint64](),
	}
	sp.subs[w.ID()] = sub

	if len(sp.metadata) > 0 {
		w.Emit(&wire.SpaceMetadataUpdatedMessage{
			SpaceName: sp.name.String(),
			Metadata:  sp.metadataJSONLocked(),
		})
	}
	sp.announceJoinedLocked(sub)
}

// leave removes the watcher and reports whether the space is now empty.
// Watchers that saw the leaving user receive a left event.
func (sp *Space) leave(watcherID uint64) bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sub, ok := sp.subs[watcherID]
	if !ok {
		return len(sp.subs) == 0
	}
	delete(sp.subs, watcherID)

	fns := make([]func(), 0, len(sp.subs))
	for _, other := range sp.subs {
		if !other.visible.Contain(sub.user.ID) {
			continue
		}
		other.visible.Remove(sub.user.ID)
		other := other
		fns = append(fns, func() {
			other.watcher.Emit(&wire.SpaceUserLeftMessage{
				SpaceName: sp.name.String(),
				UserID:    sub.user.ID,
			})
		})
	}
	sp.fanOut(fns)
	return len(sp.subs) == 0
}

// addFilter registers a filter for the watcher. Users the filter newly
// exposes are announced to the watcher as joined.
func (sp *Space) addFilter(watcherID uint64, filter wire.SpaceFilter) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sub, ok := sp.subs[watcherID]
	if !ok {
		return merr.WrapErrSpaceNotSubscribed(sp.name.String())
	}
	sub.filters[filter.ID] = filter
	sp.reconcileVisibilityLocked(sub)
	return nil
}

// updateFilter replaces a filter in place, diffing visibility.
func (sp *Space) updateFilter(watcherID uint64, filter wire.SpaceFilter) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sub, ok := sp.subs[watcherID]
	if !ok {
		return merr.WrapErrSpaceNotSubscribed(sp.name.String())
	}
	if _, ok := sub.filters[filter.ID]; !ok {
		return merr.WrapErrFilterNotFound(sp.name.String(), filter.ID)
	}
	sub.filters[filter.ID] = filter
	sp.reconcileVisibilityLocked(sub)
	return nil
}

// removeFilter drops a filter; users no longer selected by any remaining
// filter are announced to the watcher as left.
func (sp *Space) removeFilter(watcherID uint64, filterID string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sub, ok := sp.subs[watcherID]
	if !ok {
		return merr.WrapErrSpaceNotSubscribed(sp.name.String())
	}
	if _, ok := sub.filters[filterID]; !ok {
		return merr.WrapErrFilterNotFound(sp.name.String(), filterID)
	}
	delete(sub.filters, filterID)
	sp.reconcileVisibilityLocked(sub)
	return nil
}

// updateUser replaces the publisher's presence record and re-evaluates every
// watcher: newly matching watchers get joined, no longer matching ones get
// left, the rest get updated.
func (sp *Space) updateUser(watcherID uint64, user wire.SpaceUser, updateMask []string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sub, ok := sp.subs[watcherID]
	if !ok {
		return merr.WrapErrSpaceNotSubscribed(sp.name.String())
	}
	user.ID = sub.user.ID
	sub.user = user

	fns := make([]func(), 0, len(sp.subs))
	for _, other := range sp.subs {
		other := other
		was := other.visible.Contain(user.ID)
		now := other.matches(user)
		switch {
		case !was && now:
			other.visible.Insert(user.ID)
			fns = append(fns, func() {
				other.watcher.Emit(&wire.SpaceUserJoinedMessage{
					SpaceName: sp.name.String(),
					User:      user,
				})
			})
		case was && !now:
			other.visible.Remove(user.ID)
			fns = append(fns, func() {
				other.watcher.Emit(&wire.SpaceUserLeftMessage{
					SpaceName: sp.name.String(),
					UserID:    user.ID,
				})
			})
		case was && now:
			fns = append(fns, func() {
				other.watcher.Emit(&wire.SpaceUserUpdatedMessage{
					SpaceName:  sp.name.String(),
					User:       user,
					UpdateMask: updateMask,
				})
			})
		}
	}
	sp.fanOut(fns)
	return nil
}

// updateMetadata merges a JSON object into the space metadata, last writer
// wins per key, and broadcasts the merged snapshot to every subscriber.
func (sp *Space) updateMetadata(raw string) error {
	var patch map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return merr.WrapErrMetadataInvalid(sp.name.String(), "metadata is not a JSON object")
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	for k, v := range patch {
		sp.metadata[k] = v
	}
	snapshot := sp.metadataJSONLocked()

	fns := make([]func(), 0, len(sp.subs))
	for _, sub := range sp.subs {
		sub := sub
		fns = append(fns, func() {
			sub.watcher.Emit(&wire.SpaceMetadataUpdatedMessage{
				SpaceName: sp.name.String(),
				Metadata:  snapshot,
			})
		})
	}
	sp.fanOut(fns)
	return nil
}

// publicEvent relays an opaque event to every subscriber except the sender.
func (sp *Space) publicEvent(senderID uint64, event string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sender, ok := sp.subs[senderID]
	if !ok {
		return merr.WrapErrSpaceNotSubscribed(sp.name.String())
	}

	msg := &wire.SpacePublicEventMessage{
		SpaceName:    sp.name.String(),
		SenderUserID: sender.user.ID,
		Event:        event,
	}
	fns := make([]func(), 0, len(sp.subs))
	for id, sub := range sp.subs {
		if id == senderID {
			continue
		}
		sub := sub
		fns = append(fns, func() { sub.watcher.Emit(msg) })
	}
	sp.fanOut(fns)
	return nil
}

// privateEvent relays an opaque event to the subscriber publishing the
// given user id.
func (sp *Space) privateEvent(senderID, receiverUserID uint64, event string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sender, ok := sp.subs[senderID]
	if !ok {
		return merr.WrapErrSpaceNotSubscribed(sp.name.String())
	}

	for _, sub := range sp.subs {
		if sub.user.ID != receiverUserID {
			continue
		}
		sub.watcher.Emit(&wire.SpacePrivateEventMessage{
			SpaceName:      sp.name.String(),
			SenderUserID:   sender.user.ID,
			ReceiverUserID: receiverUserID,
			Event:          event,
		})
		return nil
	}
	return merr.WrapErrSessionNotFound(receiverUserID)
}

// announceJoinedLocked notifies existing watchers about a new user.
func (sp *Space) announceJoinedLocked(joined *subscriber) {
	fns := make([]func(), 0, len(sp.subs))
	for id, other := range sp.subs {
		if id == joined.watcher.ID() {
			continue
		}
		if !other.matches(joined.user) {
			continue
		}
		other.visible.Insert(joined.user.ID)
		other := other
		fns = append(fns, func() {
			other.watcher.Emit(&wire.SpaceUserJoinedMessage{
				SpaceName: sp.name.String(),
				User:      joined.user,
			})
		})
	}
	sp.fanOut(fns)
}

// reconcileVisibilityLocked recomputes which users sub sees after a filter
// change and emits the joined/left delta.
func (sp *Space) reconcileVisibilityLocked(sub *subscriber) {
	fns := make([]func(), 0, len(sp.subs))
	for id, other := range sp.subs {
		if id == sub.watcher.ID() {
			continue
		}
		user := other.user
		was := sub.visible.Contain(user.ID)
		now := sub.matches(user)
		switch {
		case !was && now:
			sub.visible.Insert(user.ID)
			fns = append(fns, func() {
				sub.watcher.Emit(&wire.SpaceUserJoinedMessage{
					SpaceName: sp.name.String(),
					User:      user,
				})
			})
		case was && !now:
			sub.visible.Remove(user.ID)
			fns = append(fns, func() {
				sub.watcher.Emit(&wire.SpaceUserLeftMessage{
					SpaceName: sp.name.String(),
					UserID:    user.ID,
				})
			})
		}
	}
	sp.fanOut(fns)
}

func (sp *Space) metadataJSONLocked() string {
	raw, err := json.Marshal(sp.metadata)
	if err != nil {
		log.Warn("marshal space metadata failed",
			zap.String("space", sp.name.String()),
			zap.Error(err))
		return "{}"
	}
	return string(raw)
}
