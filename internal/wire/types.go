package wire

import "strings"

// Position is a player position on the map grid.
type Position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction,omitempty"`
	Moving    bool    `json:"moving,omitempty"`
}

// Viewport is the rectangle of the map currently visible to a client.
type Viewport struct {
	Left   int32 `json:"left"`
	Bottom int32 `json:"bottom"`
	Right  int32 `json:"right"`
	Top    int32 `json:"top"`
}

// TextureRef identifies one character or companion texture layer.
type TextureRef struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// SpaceUser is the per-space presence record published for a subscriber.
// ID is the gateway-assigned session id and is unique within a world.
type SpaceUser struct {
	ID                 uint64       `json:"id"`
	UUID               string       `json:"uuid"`
	Name               string       `json:"name"`
	PlayURI            string       `json:"playUri,omitempty"`
	RoomName           string       `json:"roomName,omitempty"`
	AvailabilityStatus int32        `json:"availabilityStatus,omitempty"`
	IsLogged           bool         `json:"isLogged,omitempty"`
	Color              string       `json:"color,omitempty"`
	Tags               []string     `json:"tags,omitempty"`
	CameraState        bool         `json:"cameraState,omitempty"`
	MicrophoneState    bool         `json:"microphoneState,omitempty"`
	ScreenSharingState bool         `json:"screenSharingState,omitempty"`
	MegaphoneState     bool         `json:"megaphoneState,omitempty"`
	ShowVoiceIndicator bool         `json:"showVoiceIndicator,omitempty"`
	CharacterTextures  []TextureRef `json:"characterTextures,omitempty"`
	VisitCardURL       string       `json:"visitCardUrl,omitempty"`
	ChatID             string       `json:"chatID,omitempty"`
}

// FilterKind selects which subscribers of a space a watcher wants to see.
type FilterKind string

const (
	// FilterEverybody matches all users in the space.
	FilterEverybody FilterKind = "everybody"
	// FilterNameContains matches users whose name contains the filter value,
	// case-insensitively.
	FilterNameContains FilterKind = "nameContains"
	// FilterLiveStreaming matches users with an active camera, screen share
	// or megaphone.
	FilterLiveStreaming FilterKind = "liveStreaming"
)

// SpaceFilter narrows the set of space users a watcher receives events for.
// ID is chosen by the client and scopes update/remove operations.
type SpaceFilter struct {
	ID        string     `json:"id"`
	SpaceName string     `json:"spaceName"`
	Kind      FilterKind `json:"kind"`
	Value     string     `json:"value,omitempty"`
}

// Matches reports whether the filter selects the given user.
// Unknown filter kinds match nobody.
func (f SpaceFilter) Matches(user SpaceUser) bool {
	switch f.Kind {
	case FilterEverybody:
		return true
	case FilterNameContains:
		return strings.Contains(strings.ToLower(user.Name), strings.ToLower(f.Value))
	case FilterLiveStreaming:
		return user.CameraState || user.ScreenSharingState || user.MegaphoneState
	default:
		return false
	}
}
