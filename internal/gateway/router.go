package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/back"
	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/space"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// Tags gating privileged operations.
const (
	TagAdmin  = "admin"
	TagEditor = "editor"
)

// Router dispatches decoded client messages to the subsystem that owns
// them: spaces, presence, queries, or the back uplink.
//
// Dispatch returns an error only for protocol violations that must close
// the connection; recoverable per-message failures are logged and the
// session lives on.
type Router struct {
	registry   *space.Registry
	correlator *Correlator
	presence   *service.Presence
	identity   *service.IdentityClient
	forwarder  *back.Forwarder
	manager    *SessionManager
	zones      *ZoneIndex
}

// NewRouter wires a Router.
func NewRouter(
	registry *space.Registry,
	correlator *Correlator,
	presence *service.Presence,
	identity *service.IdentityClient,
	forwarder *back.Forwarder,
	manager *SessionManager,
	zones *ZoneIndex,
) *Router {
	return &Router{
		registry:   registry,
		correlator: correlator,
		presence:   presence,
		identity:   identity,
		forwarder:  forwarder,
		manager:    manager,
		zones:      zones,
	}
}

// Dispatch routes one inbound message. Messages arriving after teardown
// started are dropped.
func (r *Router) Dispatch(ctx context.Context, s *Session, msg wire.ClientMessage) error {
	if s.Disconnecting() {
		return nil
	}

	switch m := msg.(type) {
	case *wire.ViewportMessage:
		s.SetPosition(s.Position(), m.Viewport)
		r.zones.Update(s.ID(), m.Viewport)
		r.forward(s, m)

	case *wire.UserMovesMessage:
		s.SetPosition(m.Position, m.Viewport)
		r.zones.Update(s.ID(), m.Viewport)
		r.forward(s, m)

	case *wire.PlayGlobalMessage:
		if m.BroadcastToWorld && !s.HasTag(TagAdmin) {
			return merr.WrapErrAdminUnauthorized("world broadcast requires the admin tag")
		}
		r.forward(s, m)

	case *wire.ReportPlayerMessage:
		if err := r.identity.ReportPlayer(ctx, m.ReportedUserUUID, s.UUID(), m.ReportComment, s.PlayURI()); err != nil {
			log.Ctx(ctx).Warn("report player failed", log.FieldSession(s.ID()), zap.Error(err))
		}

	case *wire.AddSpaceFilterMessage:
		r.withSpace(s, m.Filter.SpaceName, func(name space.Name) error {
			return r.registry.AddFilter(name, s.ID(), m.Filter)
		})

	case *wire.UpdateSpaceFilterMessage:
		r.withSpace(s, m.Filter.SpaceName, func(name space.Name) error {
			return r.registry.UpdateFilter(name, s.ID(), m.Filter)
		})

	case *wire.RemoveSpaceFilterMessage:
		r.withSpace(s, m.Filter.SpaceName, func(name space.Name) error {
			return r.registry.RemoveFilter(name, s.ID(), m.Filter.ID)
		})

	case *wire.SetPlayerDetailsMessage:
		details := s.Details()
		mask := []string{"availabilityStatus"}
		details.AvailabilityStatus = m.AvailabilityStatus
		switch {
		case m.RemoveOutlineColor:
			// Clearing the outline falls back to the name-derived color so
			// every client keeps rendering the same one.
			details.Color = colorForName(s.Name())
			mask = append(mask, "color")
		case m.OutlineColor != 0:
			details.Color = fmt.Sprintf("#%06x", m.OutlineColor&0xffffff)
			mask = append(mask, "color")
		}
		if m.ShowVoiceIndicator != nil {
			details.ShowVoiceIndicator = *m.ShowVoiceIndicator
			mask = append(mask, "showVoiceIndicator")
		}
		s.UpdateDetails(details)
		for _, joined := range s.JoinedSpaces() {
			name, err := space.ParseName(joined)
			if err != nil {
				continue
			}
			if err := r.registry.UpdateUser(name, s.ID(), details, mask); err != nil {
				log.Ctx(ctx).Warn("propagate player details failed",
					log.FieldSession(s.ID()), log.FieldSpace(joined), zap.Error(err))
			}
		}
		r.forward(s, m)

	case *wire.JoinSpaceMessage:
		name, err := s.QualifySpaceName(m.SpaceName)
		if err != nil {
			return err
		}
		r.registry.Join(name, s, s.Details())
		s.TrackSpace(name.String())

	case *wire.LeaveSpaceMessage:
		name, err := s.QualifySpaceName(m.SpaceName)
		if err != nil {
			return err
		}
		r.registry.Leave(name, s.ID())
		s.ForgetSpace(name.String())

	case *wire.UpdateSpaceMetadataMessage:
		r.withSpace(s, m.SpaceName, func(name space.Name) error {
			return r.registry.UpdateMetadata(name, m.Metadata)
		})

	case *wire.UpdateSpaceUserMessage:
		s.UpdateDetails(m.User)
		r.withSpace(s, m.SpaceName, func(name space.Name) error {
			return r.registry.UpdateUser(name, s.ID(), s.Details(), nil)
		})

	case *wire.UpdateChatIDMessage:
		r.presence.BindChatID(m.Email, m.ChatID)

	case *wire.EnterChatRoomAreaMessage:
		r.presence.EnterArea(m.RoomID, s.ID())

	case *wire.LeaveChatRoomAreaMessage:
		r.presence.LeaveArea(m.RoomID, s.ID())

	case *wire.QueryMessage:
		r.correlator.Handle(ctx, s, m)

	case *wire.ItemEventMessage:
		r.forward(s, m)

	case *wire.VariableMessage:
		r.forward(s, m)

	case *wire.WebRtcSignalMessage:
		r.forward(s, m)

	case *wire.WebRtcScreenSharingSignalMessage:
		r.forward(s, m)

	case *wire.EmotePromptMessage:
		r.forward(s, m)

	case *wire.FollowRequestMessage:
		r.forward(s, m)

	case *wire.FollowConfirmationMessage:
		r.forward(s, m)

	case *wire.FollowAbortMessage:
		r.forward(s, m)

	case *wire.LockGroupPromptMessage:
		r.forward(s, m)

	case *wire.PingMessage:
		s.SendNow(&wire.PingResponseMessage{})

	case *wire.AskPositionMessage:
		r.forward(s, m)

	case *wire.EditMapCommandMessage:
		if !s.HasTag(TagEditor) && !s.HasTag(TagAdmin) {
			return merr.WrapErrAdminUnauthorized("map editing requires the editor tag")
		}
		r.forward(s, m)

	case *wire.BanPlayerMessage:
		if !s.HasTag(TagAdmin) {
			return merr.WrapErrAdminUnauthorized("banning requires the admin tag")
		}
		r.forward(s, m)

	case *wire.PublicEventMessage:
		r.withSpace(s, m.SpaceName, func(name space.Name) error {
			return r.registry.PublicEvent(name, s.ID(), m.Event)
		})

	case *wire.PrivateEventMessage:
		r.withSpace(s, m.SpaceName, func(name space.Name) error {
			return r.registry.PrivateEvent(name, s.ID(), m.ReceiverUserID, m.Event)
		})

	default:
		return merr.WrapErrUnknownOp(uint32(msg.ClientKind()))
	}
	return nil
}

// forward relays a message upstream, logging drops. A gateway running
// without a back uplink silently drops relayed traffic.
func (r *Router) forward(s *Session, msg wire.ClientMessage) {
	if r.forwarder == nil {
		return
	}
	if err := r.forwarder.Forward(msg); err != nil {
		log.Debug("forward to back dropped",
			log.FieldSession(s.ID()),
			log.FieldOp(uint32(msg.ClientKind())),
			zap.Error(err))
	}
}

// withSpace qualifies a client-local space name and runs fn on it. Space
// errors are logged, not fatal to the session.
func (r *Router) withSpace(s *Session, local string, fn func(space.Name) error) {
	name, err := s.QualifySpaceName(local)
	if err != nil {
		log.Warn("invalid space name", log.FieldSession(s.ID()), zap.String("name", local), zap.Error(err))
		return
	}
	if err := fn(name); err != nil {
		log.Warn("space operation failed",
			log.FieldSession(s.ID()),
			log.FieldSpace(name.String()),
			zap.Error(err))
	}
}
