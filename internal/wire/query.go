package wire

import (
	"github.com/lk2023060901/space-gateway-go/internal/json"
)

// QueryKind discriminates the inner payload of a QueryMessage.
type QueryKind string

const (
	QueryRoomTags              QueryKind = "roomTags"
	QueryEmbeddableWebsite     QueryKind = "embeddableWebsite"
	QueryRoomsFromSameWorld    QueryKind = "roomsFromSameWorld"
	QuerySearchMember          QueryKind = "searchMember"
	QuerySearchTags            QueryKind = "searchTags"
	QueryGetMember             QueryKind = "getMember"
	QueryChatMembers           QueryKind = "chatMembers"
	QueryCreateChatRoomForArea QueryKind = "createChatRoomForArea"
)

// Query is the inner request of a QueryMessage. Kinds the gateway answers
// locally are decoded via DecodeData; any other kind is forwarded upstream
// with Data untouched.
type Query struct {
	Kind QueryKind `json:"kind"`
	Data []byte    `json:"data,omitempty"`
}

// NewQuery builds a Query with data marshalled as the payload.
// Pass nil data for kinds without a payload.
func NewQuery(kind QueryKind, data interface{}) (Query, error) {
	q := Query{Kind: kind}
	if data == nil {
		return q, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return Query{}, err
	}
	q.Data = payload
	return q, nil
}

// DecodeData unmarshals the query payload into dst.
// A query without a payload leaves dst untouched.
func (q Query) DecodeData(dst interface{}) error {
	if len(q.Data) == 0 {
		return nil
	}
	return json.Unmarshal(q.Data, dst)
}

// EmbeddableWebsiteQuery asks whether a URL may be shown inside an iframe.
type EmbeddableWebsiteQuery struct {
	URL string `json:"url"`
}

// SearchMemberQuery looks up world members by a fuzzy search string.
type SearchMemberQuery struct {
	SearchText string `json:"searchText"`
}

// SearchTagsQuery looks up member tags by a fuzzy search string.
type SearchTagsQuery struct {
	SearchText string `json:"searchText"`
}

// GetMemberQuery fetches one member by uuid.
type GetMemberQuery struct {
	UUID string `json:"uuid"`
}

// ChatMembersQuery lists chat-enabled members matching a search string.
type ChatMembersQuery struct {
	SearchText string `json:"searchText,omitempty"`
}

// CreateChatRoomForAreaQuery provisions a chat room bound to a map area.
type CreateChatRoomForAreaQuery struct {
	AreaID   string `json:"areaID"`
	RoomName string `json:"roomName,omitempty"`
}

// AnswerKind discriminates the inner payload of an AnswerMessage.
// It mirrors QueryKind, plus "error" for failed queries.
type AnswerKind string

const (
	AnswerError AnswerKind = "error"
)

// Answer is the inner response of an AnswerMessage.
type Answer struct {
	Kind AnswerKind `json:"kind"`
	Data []byte     `json:"data,omitempty"`
}

// NewAnswer builds a successful Answer for the given query kind.
func NewAnswer(kind QueryKind, data interface{}) (Answer, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Kind: AnswerKind(kind), Data: payload}, nil
}

// NewErrorAnswer converts a failure into an answer the client can render.
func NewErrorAnswer(message string) Answer {
	payload, _ := json.Marshal(ErrorAnswer{Message: message})
	return Answer{Kind: AnswerError, Data: payload}
}

// DecodeData unmarshals the answer payload into dst.
func (a Answer) DecodeData(dst interface{}) error {
	if len(a.Data) == 0 {
		return nil
	}
	return json.Unmarshal(a.Data, dst)
}

// ErrorAnswer is the payload of an AnswerError answer.
type ErrorAnswer struct {
	Message string `json:"message"`
}

// RoomTagsAnswer lists the tags the requesting session holds in the room.
type RoomTagsAnswer struct {
	Tags []string `json:"tags"`
}

// EmbeddableWebsiteAnswer reports iframe embeddability of a URL.
type EmbeddableWebsiteAnswer struct {
	URL        string `json:"url"`
	State      bool   `json:"state"`
	Embeddable bool   `json:"embeddable"`
	Message    string `json:"message,omitempty"`
}

// RoomShortDescription is one room entry of a RoomsFromSameWorldAnswer.
type RoomShortDescription struct {
	Name     string `json:"name"`
	RoomURL  string `json:"roomUrl"`
	WokaURL  string `json:"wokaUrl,omitempty"`
	Metadata string `json:"metadata,omitempty"`
}

// RoomsFromSameWorldAnswer lists the sibling rooms of the session's world.
type RoomsFromSameWorldAnswer struct {
	Rooms []RoomShortDescription `json:"rooms"`
}

// Member is a world member record returned by member queries.
type Member struct {
	UUID   string   `json:"uuid"`
	Name   string   `json:"name"`
	Email  string   `json:"email,omitempty"`
	ChatID string   `json:"chatID,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// SearchMemberAnswer lists members matching a search.
type SearchMemberAnswer struct {
	Members []Member `json:"members"`
}

// SearchTagsAnswer lists tags matching a search.
type SearchTagsAnswer struct {
	Tags []string `json:"tags"`
}

// GetMemberAnswer returns one member.
type GetMemberAnswer struct {
	Member Member `json:"member"`
}

// ChatMembersAnswer lists chat-enabled members with the total match count.
type ChatMembersAnswer struct {
	Total   int32    `json:"total"`
	Members []Member `json:"members"`
}

// CreateChatRoomForAreaAnswer returns the id of the provisioned room.
type CreateChatRoomForAreaAnswer struct {
	RoomID string `json:"roomID"`
}
