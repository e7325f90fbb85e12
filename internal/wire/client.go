package wire

// ClientMessage is the sealed union of client -> server messages.
// Each concrete message reports its own op code via ClientKind; new cases
// must also be added to clientRegistry so the codec can decode them.
type ClientMessage interface {
	ClientKind() Kind
}

// ViewportMessage updates the rectangle of the map the client can see.
type ViewportMessage struct {
	Viewport Viewport `json:"viewport"`
}

// UserMovesMessage reports a position change together with the current
// viewport so the movement can be culled server side.
type UserMovesMessage struct {
	Position Position `json:"position"`
	Viewport Viewport `json:"viewport"`
}

// PlayGlobalMessage broadcasts an audio or text announcement to the room,
// or to every room of the world when BroadcastToWorld is set.
type PlayGlobalMessage struct {
	Type             string `json:"type"`
	Content          string `json:"content"`
	BroadcastToWorld bool   `json:"broadcastToWorld,omitempty"`
}

// ReportPlayerMessage files a moderation report against another player.
type ReportPlayerMessage struct {
	ReportedUserUUID string `json:"reportedUserUuid"`
	ReportComment    string `json:"reportComment,omitempty"`
}

// AddSpaceFilterMessage registers a watch filter on a joined space.
type AddSpaceFilterMessage struct {
	Filter SpaceFilter `json:"filter"`
}

// UpdateSpaceFilterMessage replaces an existing filter, matched by its id.
type UpdateSpaceFilterMessage struct {
	Filter SpaceFilter `json:"filter"`
}

// RemoveSpaceFilterMessage drops a filter previously added on a space.
type RemoveSpaceFilterMessage struct {
	Filter SpaceFilter `json:"filter"`
}

// SetPlayerDetailsMessage updates mutable details of the sending player.
type SetPlayerDetailsMessage struct {
	AvailabilityStatus int32  `json:"availabilityStatus,omitempty"`
	OutlineColor       uint32 `json:"outlineColor,omitempty"`
	RemoveOutlineColor bool   `json:"removeOutlineColor,omitempty"`
	ShowVoiceIndicator *bool  `json:"showVoiceIndicator,omitempty"`
}

// JoinSpaceMessage subscribes the session to a space. The name is local to
// the session's world and gets qualified before reaching the registry.
type JoinSpaceMessage struct {
	SpaceName string `json:"spaceName"`
}

// LeaveSpaceMessage unsubscribes the session from a space.
type LeaveSpaceMessage struct {
	SpaceName string `json:"spaceName"`
}

// UpdateSpaceMetadataMessage replaces metadata keys of a space.
// Metadata carries a JSON object as text; non-object payloads are rejected.
type UpdateSpaceMetadataMessage struct {
	SpaceName string `json:"spaceName"`
	Metadata  string `json:"metadata"`
}

// UpdateSpaceUserMessage publishes new presence details of the sending user
// to a space it has joined.
type UpdateSpaceUserMessage struct {
	SpaceName string    `json:"spaceName"`
	User      SpaceUser `json:"user"`
}

// UpdateChatIDMessage binds the session's email to a chat identifier.
type UpdateChatIDMessage struct {
	Email  string `json:"email"`
	ChatID string `json:"chatID"`
}

// EnterChatRoomAreaMessage marks the session as present in a chat room area.
type EnterChatRoomAreaMessage struct {
	RoomID string `json:"roomID"`
}

// LeaveChatRoomAreaMessage marks the session as absent from a chat room area.
type LeaveChatRoomAreaMessage struct {
	RoomID string `json:"roomID"`
}

// QueryMessage is a correlated request. Exactly one AnswerMessage with the
// same id is sent back, even when handling fails.
type QueryMessage struct {
	ID    uint32 `json:"id"`
	Query Query  `json:"query"`
}

// ItemEventMessage reports an interaction with a map item.
type ItemEventMessage struct {
	ItemID     int32  `json:"itemId"`
	Event      string `json:"event"`
	StateJSON  string `json:"stateJson,omitempty"`
	Parameters string `json:"parameters,omitempty"`
}

// VariableMessage sets a shared room variable.
type VariableMessage struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// WebRtcSignalMessage relays a WebRTC signalling payload to a peer.
type WebRtcSignalMessage struct {
	ReceiverID uint64 `json:"receiverId"`
	Signal     string `json:"signal"`
}

// WebRtcScreenSharingSignalMessage relays a screen sharing signalling
// payload to a peer.
type WebRtcScreenSharingSignalMessage struct {
	ReceiverID uint64 `json:"receiverId"`
	Signal     string `json:"signal"`
}

// EmotePromptMessage triggers an emote animation on the sending player.
type EmotePromptMessage struct {
	Emote string `json:"emote"`
}

// FollowRequestMessage asks nearby players to follow the sender.
type FollowRequestMessage struct {
	Leader uint64 `json:"leader"`
}

// FollowConfirmationMessage accepts a follow request.
type FollowConfirmationMessage struct {
	Leader   uint64 `json:"leader"`
	Follower uint64 `json:"follower"`
}

// FollowAbortMessage ends an active follow relationship.
type FollowAbortMessage struct {
	Leader   uint64 `json:"leader"`
	Follower uint64 `json:"follower"`
}

// LockGroupPromptMessage locks or unlocks the sender's conversation group.
type LockGroupPromptMessage struct {
	Lock bool `json:"lock"`
}

// PingMessage is an application level liveness probe.
type PingMessage struct{}

// AskPositionMessage asks to be teleported next to another user.
type AskPositionMessage struct {
	UserIdentifier string `json:"userIdentifier"`
	PlayURI        string `json:"playUri"`
}

// EditMapCommandMessage carries a map editor command as an opaque JSON
// document. Only sessions holding the required tag may send it.
type EditMapCommandMessage struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// BanPlayerMessage requests a moderation ban. Only sessions holding the
// required tag may send it.
type BanPlayerMessage struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

// PublicEventMessage publishes an opaque event to every watcher of a space.
type PublicEventMessage struct {
	SpaceName string `json:"spaceName"`
	Event     string `json:"event"`
}

// PrivateEventMessage publishes an opaque event to a single user of a space.
type PrivateEventMessage struct {
	SpaceName      string `json:"spaceName"`
	ReceiverUserID uint64 `json:"receiverUserId"`
	Event          string `json:"event"`
}

func (*ViewportMessage) ClientKind() Kind                  { return KindViewport }
func (*UserMovesMessage) ClientKind() Kind                 { return KindUserMoves }
func (*PlayGlobalMessage) ClientKind() Kind                { return KindPlayGlobal }
func (*ReportPlayerMessage) ClientKind() Kind              { return KindReportPlayer }
func (*AddSpaceFilterMessage) ClientKind() Kind            { return KindAddSpaceFilter }
func (*UpdateSpaceFilterMessage) ClientKind() Kind         { return KindUpdateSpaceFilter }
func (*RemoveSpaceFilterMessage) ClientKind() Kind         { return KindRemoveSpaceFilter }
func (*SetPlayerDetailsMessage) ClientKind() Kind          { return KindSetPlayerDetails }
func (*JoinSpaceMessage) ClientKind() Kind                 { return KindJoinSpace }
func (*LeaveSpaceMessage) ClientKind() Kind                { return KindLeaveSpace }
func (*UpdateSpaceMetadataMessage) ClientKind() Kind       { return KindUpdateSpaceMetadata }
func (*UpdateSpaceUserMessage) ClientKind() Kind           { return KindUpdateSpaceUser }
func (*UpdateChatIDMessage) ClientKind() Kind              { return KindUpdateChatID }
func (*EnterChatRoomAreaMessage) ClientKind() Kind         { return KindEnterChatRoomArea }
func (*LeaveChatRoomAreaMessage) ClientKind() Kind         { return KindLeaveChatRoomArea }
func (*QueryMessage) ClientKind() Kind                     { return KindQuery }
func (*ItemEventMessage) ClientKind() Kind                 { return KindItemEvent }
func (*VariableMessage) ClientKind() Kind                  { return KindVariable }
func (*WebRtcSignalMessage) ClientKind() Kind              { return KindWebRtcSignal }
func (*WebRtcScreenSharingSignalMessage) ClientKind() Kind { return KindWebRtcScreenSharingSignal }
func (*EmotePromptMessage) ClientKind() Kind               { return KindEmotePrompt }
func (*FollowRequestMessage) ClientKind() Kind             { return KindFollowRequest }
func (*FollowConfirmationMessage) ClientKind() Kind        { return KindFollowConfirmation }
func (*FollowAbortMessage) ClientKind() Kind               { return KindFollowAbort }
func (*LockGroupPromptMessage) ClientKind() Kind           { return KindLockGroupPrompt }
func (*PingMessage) ClientKind() Kind                      { return KindPing }
func (*AskPositionMessage) ClientKind() Kind               { return KindAskPosition }
func (*EditMapCommandMessage) ClientKind() Kind            { return KindEditMapCommand }
func (*BanPlayerMessage) ClientKind() Kind                 { return KindBanPlayer }
func (*PublicEventMessage) ClientKind() Kind               { return KindPublicEvent }
func (*PrivateEventMessage) ClientKind() Kind              { return KindPrivateEvent }

// clientRegistry maps ops to payload constructors for decoding.
var clientRegistry = map[Kind]func() ClientMessage{
	KindViewport:                  func() ClientMessage { return &ViewportMessage{} },
	KindUserMoves:                 func() ClientMessage { return &UserMovesMessage{} },
	KindPlayGlobal:                func() ClientMessage { return &PlayGlobalMessage{} },
	KindReportPlayer:              func() ClientMessage { return &ReportPlayerMessage{} },
	KindAddSpaceFilter:            func() ClientMessage { return &AddSpaceFilterMessage{} },
	KindUpdateSpaceFilter:         func() ClientMessage { return &UpdateSpaceFilterMessage{} },
	KindRemoveSpaceFilter:         func() ClientMessage { return &RemoveSpaceFilterMessage{} },
	KindSetPlayerDetails:          func() ClientMessage { return &SetPlayerDetailsMessage{} },
	KindJoinSpace:                 func() ClientMessage { return &JoinSpaceMessage{} },
	KindLeaveSpace:                func() ClientMessage { return &LeaveSpaceMessage{} },
	KindUpdateSpaceMetadata:       func() ClientMessage { return &UpdateSpaceMetadataMessage{} },
	KindUpdateSpaceUser:           func() ClientMessage { return &UpdateSpaceUserMessage{} },
	KindUpdateChatID:              func() ClientMessage { return &UpdateChatIDMessage{} },
	KindEnterChatRoomArea:         func() ClientMessage { return &EnterChatRoomAreaMessage{} },
	KindLeaveChatRoomArea:         func() ClientMessage { return &LeaveChatRoomAreaMessage{} },
	KindQuery:                     func() ClientMessage { return &QueryMessage{} },
	KindItemEvent:                 func() ClientMessage { return &ItemEventMessage{} },
	KindVariable:                  func() ClientMessage { return &VariableMessage{} },
	KindWebRtcSignal:              func() ClientMessage { return &WebRtcSignalMessage{} },
	KindWebRtcScreenSharingSignal: func() ClientMessage { return &WebRtcScreenSharingSignalMessage{} },
	KindEmotePrompt:               func() ClientMessage { return &EmotePromptMessage{} },
	KindFollowRequest:             func() ClientMessage { return &FollowRequestMessage{} },
	KindFollowConfirmation:        func() ClientMessage { return &FollowConfirmationMessage{} },
	KindFollowAbort:               func() ClientMessage { return &FollowAbortMessage{} },
	KindLockGroupPrompt:           func() ClientMessage { return &LockGroupPromptMessage{} },
	KindPing:                      func() ClientMessage { return &PingMessage{} },
	KindAskPosition:               func() ClientMessage { return &AskPositionMessage{} },
	KindEditMapCommand:            func() ClientMessage { return &EditMapCommandMessage{} },
	KindBanPlayer:                 func() ClientMessage { return &BanPlayerMessage{} },
	KindPublicEvent:               func() ClientMessage { return &PublicEventMessage{} },
	KindPrivateEvent:              func() ClientMessage { return &PrivateEventMessage{} },
}

// ClientKinds returns every registered client op, in no particular order.
// Used by the router to prove its dispatch table is exhaustive.
func ClientKinds() []Kind {
	kinds := make([]Kind, 0, len(clientRegistry))
	for k := range clientRegistry {
		kinds = append(kinds, k)
	}
	return kinds
}
