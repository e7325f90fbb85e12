package wire

// Kind is the protocol op code carried in every frame header.
//
// The op space is split in two:
//   - 1..999    client -> server
//   - 1000..    server -> client (including batched sub-messages)
//
// Every Kind must be registered in exactly one of the message registries in
// client.go / server.go; decoding a frame with an unregistered op is a
// protocol violation.
type Kind uint32

// Client -> server ops.
const (
	KindViewport Kind = iota + 1
	KindUserMoves
	KindPlayGlobal
	KindReportPlayer
	KindAddSpaceFilter
	KindUpdateSpaceFilter
	KindRemoveSpaceFilter
	KindSetPlayerDetails
	KindJoinSpace
	KindLeaveSpace
	KindUpdateSpaceMetadata
	KindUpdateSpaceUser
	KindUpdateChatID
	KindEnterChatRoomArea
	KindLeaveChatRoomArea
	KindQuery
	KindItemEvent
	KindVariable
	KindWebRtcSignal
	KindWebRtcScreenSharingSignal
	KindEmotePrompt
	KindFollowRequest
	KindFollowConfirmation
	KindFollowAbort
	KindLockGroupPrompt
	KindPing
	KindAskPosition
	KindEditMapCommand
	KindBanPlayer
	KindPublicEvent
	KindPrivateEvent
)

// Server -> client ops.
const (
	KindBatch Kind = iota + 1000
	KindAnswer
	KindSendUserMessage
	KindTokenExpired
	KindErrorScreen
	KindInvalidTexture
	KindConnectionError
	KindSpaceUserJoined
	KindSpaceUserUpdated
	KindSpaceUserLeft
	KindSpaceMetadataUpdated
	KindUserMoved
	KindEmoteEvent
	KindVariableEvent
	KindPingResponse
	KindSpacePublicEvent
	KindSpacePrivateEvent
)

var kindNames = map[Kind]string{
	KindViewport:                  "viewport",
	KindUserMoves:                 "userMoves",
	KindPlayGlobal:                "playGlobal",
	KindReportPlayer:              "reportPlayer",
	KindAddSpaceFilter:            "addSpaceFilter",
	KindUpdateSpaceFilter:         "updateSpaceFilter",
	KindRemoveSpaceFilter:         "removeSpaceFilter",
	KindSetPlayerDetails:          "setPlayerDetails",
	KindJoinSpace:                 "joinSpace",
	KindLeaveSpace:                "leaveSpace",
	KindUpdateSpaceMetadata:       "updateSpaceMetadata",
	KindUpdateSpaceUser:           "updateSpaceUser",
	KindUpdateChatID:              "updateChatID",
	KindEnterChatRoomArea:         "enterChatRoomArea",
	KindLeaveChatRoomArea:         "leaveChatRoomArea",
	KindQuery:                     "query",
	KindItemEvent:                 "itemEvent",
	KindVariable:                  "variable",
	KindWebRtcSignal:              "webRtcSignal",
	KindWebRtcScreenSharingSignal: "webRtcScreenSharingSignal",
	KindEmotePrompt:               "emotePrompt",
	KindFollowRequest:             "followRequest",
	KindFollowConfirmation:        "followConfirmation",
	KindFollowAbort:               "followAbort",
	KindLockGroupPrompt:           "lockGroupPrompt",
	KindPing:                      "ping",
	KindAskPosition:               "askPosition",
	KindEditMapCommand:            "editMapCommand",
	KindBanPlayer:                 "banPlayer",
	KindPublicEvent:               "publicEvent",
	KindPrivateEvent:              "privateEvent",

	KindBatch:                "batch",
	KindAnswer:               "answer",
	KindSendUserMessage:      "sendUserMessage",
	KindTokenExpired:         "tokenExpired",
	KindErrorScreen:          "errorScreen",
	KindInvalidTexture:       "invalidTexture",
	KindConnectionError:      "connectionError",
	KindSpaceUserJoined:      "spaceUserJoined",
	KindSpaceUserUpdated:     "spaceUserUpdated",
	KindSpaceUserLeft:        "spaceUserLeft",
	KindSpaceMetadataUpdated: "spaceMetadataUpdated",
	KindUserMoved:            "userMoved",
	KindEmoteEvent:           "emoteEvent",
	KindVariableEvent:        "variableEvent",
	KindPingResponse:         "pingResponse",
	KindSpacePublicEvent:     "spacePublicEvent",
	KindSpacePrivateEvent:    "spacePrivateEvent",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}
