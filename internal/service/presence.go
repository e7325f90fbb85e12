package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/util/typeutil"
)

// UnknownAuthorName is returned when a member lookup fails; chat history
// rendering must never block on the identity service.
const UnknownAuthorName = "Unknown"

// Presence tracks per-process presence state: which sessions occupy which
// chat room areas, resolved message authors, and email to chat id bindings.
// All state is in memory and dies with the process.
type Presence struct {
	identity *IdentityClient
	lookups  singleflight.Group

	mu      sync.RWMutex
	authors map[string]wire.Member
	chatIDs map[string]string
	// areas maps a chat room area id to the sessions inside it, with a
	// reverse index for whole-session cleanup.
	areas    map[string]typeutil.Set[uint64]
	sessions map[uint64]typeutil.Set[string]
}

// NewPresence creates an empty presence store.
// identity may be nil in tests; author lookups then always fall back.
func NewPresence(identity *IdentityClient) *Presence {
	return &Presence{
		identity: identity,
		authors:  make(map[string]wire.Member),
		chatIDs:  make(map[string]string),
		areas:    make(map[string]typeutil.Set[uint64]),
		sessions: make(map[uint64]typeutil.Set[string]),
	}
}

// NewAnonymousIdentifier mints an identifier for a visitor without a token.
func NewAnonymousIdentifier() string {
	return "anon-" + uuid.NewString()
}

// GetAuthor resolves the member behind uuid, caching the result. Lookup
// failures are cached as an "Unknown" member so repeated failures do not
// hammer the identity service. Concurrent lookups of the same uuid are
// collapsed into one upstream call.
func (p *Presence) GetAuthor(ctx context.Context, memberUUID string) wire.Member {
	p.mu.RLock()
	member, ok := p.authors[memberUUID]
	p.mu.RUnlock()
	if ok {
		return member
	}

	resolved, _, _ := p.lookups.Do(memberUUID, func() (interface{}, error) {
		member := wire.Member{UUID: memberUUID, Name: UnknownAuthorName}
		if p.identity != nil {
			resolved, err := p.identity.GetMember(ctx, memberUUID)
			if err != nil {
				log.Ctx(ctx).Warn("author lookup failed",
					zap.String("uuid", memberUUID),
					zap.Error(err))
			} else {
				member = *resolved
				if member.Name == "" {
					member.Name = UnknownAuthorName
				}
			}
		}

		p.mu.Lock()
		p.authors[memberUUID] = member
		p.mu.Unlock()
		return member, nil
	})
	return resolved.(wire.Member)
}

// BindChatID associates an email with a chat identifier.
func (p *Presence) BindChatID(email, chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatIDs[email] = chatID
}

// ChatID returns the chat identifier bound to email, if any.
func (p *Presence) ChatID(email string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.chatIDs[email]
	return id, ok
}

// EnterArea records a session inside a chat room area.
func (p *Presence) EnterArea(roomID string, sessionID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.areas[roomID] == nil {
		p.areas[roomID] = typeutil.NewSet[uint64]()
	}
	p.areas[roomID].Insert(sessionID)

	if p.sessions[sessionID] == nil {
		p.sessions[sessionID] = typeutil.NewSet[string]()
	}
	p.sessions[sessionID].Insert(roomID)
}

// LeaveArea removes a session from a chat room area.
func (p *Presence) LeaveArea(roomID string, sessionID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaveAreaLocked(roomID, sessionID)
}

// LeaveAllAreas removes a session from every area it occupies, returning
// the areas left. Called when the session closes.
func (p *Presence) LeaveAllAreas(sessionID uint64) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	occupied, ok := p.sessions[sessionID]
	if !ok {
		return nil
	}
	rooms := occupied.Collect()
	for _, roomID := range rooms {
		p.leaveAreaLocked(roomID, sessionID)
	}
	return rooms
}

// AreaOccupancy returns the number of sessions inside a chat room area.
func (p *Presence) AreaOccupancy(roomID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.areas[roomID].Len()
}

func (p *Presence) leaveAreaLocked(roomID string, sessionID uint64) {
	if members, ok := p.areas[roomID]; ok {
		members.Remove(sessionID)
		if members.Len() == 0 {
			delete(p.areas, roomID)
		}
	}
	if occupied, ok := p.sessions[sessionID]; ok {
		occupied.Remove(roomID)
		if occupied.Len() == 0 {
			delete(p.sessions, sessionID)
		}
	}
}
