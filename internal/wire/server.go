package wire

import (
	"github.com/lk2023060901/space-gateway-go/internal/json"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// ServerMessage is the sealed union of server -> client messages.
// Messages sent standalone go through the codec directly; messages destined
// for a batch are first wrapped in a SubMessage envelope.
type ServerMessage interface {
	ServerKind() Kind
}

// SubMessage is the envelope batched messages travel in. Payload holds the
// JSON encoding of a ServerMessage whose op is Op.
type SubMessage struct {
	Op      Kind   `json:"op"`
	Payload []byte `json:"payload,omitempty"`
}

// NewSubMessage wraps msg for inclusion in a batch.
func NewSubMessage(msg ServerMessage) (SubMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return SubMessage{}, merr.WrapErrBadPayload(uint32(msg.ServerKind()), err.Error())
	}
	return SubMessage{Op: msg.ServerKind(), Payload: payload}, nil
}

// Decode unwraps the envelope back into a typed ServerMessage.
func (s SubMessage) Decode() (ServerMessage, error) {
	ctor, ok := serverRegistry[s.Op]
	if !ok {
		return nil, merr.WrapErrUnknownOp(uint32(s.Op))
	}
	msg := ctor()
	if len(s.Payload) > 0 {
		if err := json.Unmarshal(s.Payload, msg); err != nil {
			return nil, merr.WrapErrBadPayload(uint32(s.Op), err.Error())
		}
	}
	return msg, nil
}

// BatchMessage groups sub-messages accumulated during a debounce window.
// Order within Payload is the order the events were emitted in.
type BatchMessage struct {
	Event   string       `json:"event,omitempty"`
	Payload []SubMessage `json:"payload"`
}

// AnswerMessage is the response to a QueryMessage with the same id.
type AnswerMessage struct {
	ID     uint32 `json:"id"`
	Answer Answer `json:"answer"`
}

// SendUserMessage carries an admin notice (message or ban) to the client.
type SendUserMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TokenExpiredMessage tells the client its credentials are no longer valid.
type TokenExpiredMessage struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorScreenMessage instructs the client to show a full page error.
// Code "retry" makes the client reconnect after WaitTime.
type ErrorScreenMessage struct {
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Title      string `json:"title,omitempty"`
	Subtitle   string `json:"subtitle,omitempty"`
	Details    string `json:"details,omitempty"`
	Image      string `json:"image,omitempty"`
	TimeToWait int64  `json:"timeToWait,omitempty"`
	CanRetry   bool   `json:"canRetryManual,omitempty"`
	URLToRedir string `json:"urlToRedirect,omitempty"`
}

// InvalidTextureMessage rejects the character or companion outfit.
// Entity is "character" or "companion".
type InvalidTextureMessage struct {
	Entity string `json:"entity"`
}

// ConnectionErrorMessage reports a non-recoverable gateway side failure.
type ConnectionErrorMessage struct {
	Reason string `json:"reason,omitempty"`
}

// SpaceUserJoinedMessage announces a user now visible through a watcher's
// filter on the named space.
type SpaceUserJoinedMessage struct {
	SpaceName string    `json:"spaceName"`
	User      SpaceUser `json:"user"`
}

// SpaceUserUpdatedMessage announces changed details of a visible user.
type SpaceUserUpdatedMessage struct {
	SpaceName  string    `json:"spaceName"`
	User       SpaceUser `json:"user"`
	UpdateMask []string  `json:"updateMask,omitempty"`
}

// SpaceUserLeftMessage announces a user no longer visible on the space.
type SpaceUserLeftMessage struct {
	SpaceName string `json:"spaceName"`
	UserID    uint64 `json:"userId"`
}

// SpaceMetadataUpdatedMessage carries the merged metadata of a space.
type SpaceMetadataUpdatedMessage struct {
	SpaceName string `json:"spaceName"`
	Metadata  string `json:"metadata"`
}

// UserMovedMessage relays another player's position change.
type UserMovedMessage struct {
	UserID   uint64   `json:"userId"`
	Position Position `json:"position"`
}

// EmoteEventMessage relays an emote played by another player.
type EmoteEventMessage struct {
	ActorUserID uint64 `json:"actorUserId"`
	Emote       string `json:"emote"`
}

// VariableEventMessage relays a room variable change.
type VariableEventMessage struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PingResponseMessage answers a PingMessage.
type PingResponseMessage struct{}

// SpacePublicEventMessage relays an opaque event published on a space to
// every watcher of that space.
type SpacePublicEventMessage struct {
	SpaceName    string `json:"spaceName"`
	SenderUserID uint64 `json:"senderUserId"`
	Event        string `json:"event"`
}

// SpacePrivateEventMessage relays an opaque event addressed to one user.
type SpacePrivateEventMessage struct {
	SpaceName      string `json:"spaceName"`
	SenderUserID   uint64 `json:"senderUserId"`
	ReceiverUserID uint64 `json:"receiverUserId"`
	Event          string `json:"event"`
}

func (*BatchMessage) ServerKind() Kind                { return KindBatch }
func (*AnswerMessage) ServerKind() Kind               { return KindAnswer }
func (*SendUserMessage) ServerKind() Kind             { return KindSendUserMessage }
func (*TokenExpiredMessage) ServerKind() Kind         { return KindTokenExpired }
func (*ErrorScreenMessage) ServerKind() Kind          { return KindErrorScreen }
func (*InvalidTextureMessage) ServerKind() Kind       { return KindInvalidTexture }
func (*ConnectionErrorMessage) ServerKind() Kind      { return KindConnectionError }
func (*SpaceUserJoinedMessage) ServerKind() Kind      { return KindSpaceUserJoined }
func (*SpaceUserUpdatedMessage) ServerKind() Kind     { return KindSpaceUserUpdated }
func (*SpaceUserLeftMessage) ServerKind() Kind        { return KindSpaceUserLeft }
func (*SpaceMetadataUpdatedMessage) ServerKind() Kind { return KindSpaceMetadataUpdated }
func (*UserMovedMessage) ServerKind() Kind            { return KindUserMoved }
func (*EmoteEventMessage) ServerKind() Kind           { return KindEmoteEvent }
func (*VariableEventMessage) ServerKind() Kind        { return KindVariableEvent }
func (*PingResponseMessage) ServerKind() Kind         { return KindPingResponse }
func (*SpacePublicEventMessage) ServerKind() Kind     { return KindSpacePublicEvent }
func (*SpacePrivateEventMessage) ServerKind() Kind    { return KindSpacePrivateEvent }

var serverRegistry = map[Kind]func() ServerMessage{
	KindBatch:                func() ServerMessage { return &BatchMessage{} },
	KindAnswer:               func() ServerMessage { return &AnswerMessage{} },
	KindSendUserMessage:      func() ServerMessage { return &SendUserMessage{} },
	KindTokenExpired:         func() ServerMessage { return &TokenExpiredMessage{} },
	KindErrorScreen:          func() ServerMessage { return &ErrorScreenMessage{} },
	KindInvalidTexture:       func() ServerMessage { return &InvalidTextureMessage{} },
	KindConnectionError:      func() ServerMessage { return &ConnectionErrorMessage{} },
	KindSpaceUserJoined:      func() ServerMessage { return &SpaceUserJoinedMessage{} },
	KindSpaceUserUpdated:     func() ServerMessage { return &SpaceUserUpdatedMessage{} },
	KindSpaceUserLeft:        func() ServerMessage { return &SpaceUserLeftMessage{} },
	KindSpaceMetadataUpdated: func() ServerMessage { return &SpaceMetadataUpdatedMessage{} },
	KindUserMoved:            func() ServerMessage { return &UserMovedMessage{} },
	KindEmoteEvent:           func() ServerMessage { return &EmoteEventMessage{} },
	KindVariableEvent:        func() ServerMessage { return &VariableEventMessage{} },
	KindPingResponse:         func() ServerMessage { return &PingResponseMessage{} },
	KindSpacePublicEvent:     func() ServerMessage { return &SpacePublicEventMessage{} },
	KindSpacePrivateEvent:    func() ServerMessage { return &SpacePrivateEventMessage{} },
}

// NewRetryErrorScreen builds the "retry" error screen sent on version
// mismatch and on transient upstream failures during the handshake.
func NewRetryErrorScreen(subtitle string, waitMillis int64) *ErrorScreenMessage {
	return &ErrorScreenMessage{
		Type:       "error",
		Code:       "retry",
		Title:      "Connection failed",
		Subtitle:   subtitle,
		TimeToWait: waitMillis,
		CanRetry:   true,
	}
}
