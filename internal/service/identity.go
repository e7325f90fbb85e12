package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/json"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
	"github.com/lk2023060901/space-gateway-go/pkg/util/retry"
)

const (
	defaultIdentityTimeoutMS  = 5000
	defaultIdentityAttempts   = 3
	defaultIdentityRetryDelay = 200 * time.Millisecond
)

// IdentityConfig configures the identity service client.
type IdentityConfig struct {
	// BaseURL of the identity/admin API, without a trailing slash.
	BaseURL string `mapstructure:"baseUrl"`

	// APIToken is sent as a bearer token on every request.
	APIToken string `mapstructure:"apiToken"`

	// TimeoutMS bounds a single HTTP request, in milliseconds.
	TimeoutMS int `mapstructure:"timeoutMs"`

	// MaxAttempts is the total attempt budget per call.
	MaxAttempts int `mapstructure:"maxAttempts"`
}

func (c *IdentityConfig) fillDefaults() {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = defaultIdentityTimeoutMS
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultIdentityAttempts
	}
}

// MemberData is the profile the identity service resolves for a connecting
// user before the websocket upgrade completes.
type MemberData struct {
	UserUUID     string   `json:"userUuid"`
	Email        string   `json:"email,omitempty"`
	Username     string   `json:"username,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	VisitCardURL string   `json:"visitCardUrl,omitempty"`
	IsLogged     bool     `json:"isLogged,omitempty"`
	ChatID       string   `json:"chatID,omitempty"`

	CharacterTextures []wire.TextureRef `json:"characterTextures,omitempty"`
	CompanionTexture  *wire.TextureRef  `json:"companionTexture,omitempty"`

	// Texture validity is judged upstream so the gateway does not need the
	// texture catalog. An invalid outfit rejects the handshake.
	CharacterTexturesValid bool `json:"characterTexturesValid"`
	CompanionTextureValid  bool `json:"companionTextureValid"`

	// Messages queued for the user while offline; delivered right after
	// the connection opens.
	PendingMessages []PendingMessage `json:"pendingMessages,omitempty"`

	World string `json:"world,omitempty"`
}

// PendingMessage is an admin notice stored for delivery on next connect.
type PendingMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// IdentityClient talks to the identity/admin HTTP API. All calls retry
// transient failures within the caller's context.
type IdentityClient struct {
	cfg  IdentityConfig
	http *http.Client
}

// NewIdentityClient creates a client for the identity/admin API.
func NewIdentityClient(cfg IdentityConfig) *IdentityClient {
	cfg.fillDefaults()
	return &IdentityClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

// FetchMemberData resolves the profile of a connecting user.
// textures carry the ids the client picked; the service validates them.
func (c *IdentityClient) FetchMemberData(
	ctx context.Context,
	identifier string,
	playURI string,
	ipAddress string,
	characterTextureIDs []string,
	companionTextureID string,
	chatID string,
) (*MemberData, error) {
	q := url.Values{}
	q.Set("userIdentifier", identifier)
	q.Set("playUri", playURI)
	q.Set("ipAddress", ipAddress)
	for _, id := range characterTextureIDs {
		q.Add("characterTextureIds", id)
	}
	if companionTextureID != "" {
		q.Set("companionTextureId", companionTextureID)
	}
	if chatID != "" {
		q.Set("chatID", chatID)
	}

	data := &MemberData{}
	if err := c.getJSON(ctx, "/api/room/access", q, data); err != nil {
		return nil, err
	}
	if data.UserUUID == "" {
		return nil, merr.WrapErrIdentityBadResponse("/api/room/access", "empty userUuid")
	}
	return data, nil
}

// SearchMembers finds world members by a fuzzy search string.
func (c *IdentityClient) SearchMembers(ctx context.Context, playURI, searchText string) ([]wire.Member, error) {
	q := url.Values{}
	q.Set("playUri", playURI)
	q.Set("searchText", searchText)

	var resp struct {
		Members []wire.Member `json:"members"`
	}
	if err := c.getJSON(ctx, "/api/members/search", q, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// SearchTags finds member tags by a fuzzy search string.
func (c *IdentityClient) SearchTags(ctx context.Context, playURI, searchText string) ([]string, error) {
	q := url.Values{}
	q.Set("playUri", playURI)
	q.Set("searchText", searchText)

	var resp struct {
		Tags []string `json:"tags"`
	}
	if err := c.getJSON(ctx, "/api/tags/search", q, &resp); err != nil {
		return nil, err
	}
	return resp.Tags, nil
}

// GetMember fetches one member by uuid.
func (c *IdentityClient) GetMember(ctx context.Context, uuid string) (*wire.Member, error) {
	q := url.Values{}
	q.Set("uuid", uuid)

	member := &wire.Member{}
	if err := c.getJSON(ctx, "/api/members/get", q, member); err != nil {
		return nil, err
	}
	return member, nil
}

// ChatMembers lists chat-enabled members matching a search string.
func (c *IdentityClient) ChatMembers(ctx context.Context, playURI, searchText string) (*wire.ChatMembersAnswer, error) {
	q := url.Values{}
	q.Set("playUri", playURI)
	q.Set("searchText", searchText)

	resp := &wire.ChatMembersAnswer{}
	if err := c.getJSON(ctx, "/api/chat/members", q, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// EmbeddableWebsite checks whether a URL may be embedded in an iframe.
func (c *IdentityClient) EmbeddableWebsite(ctx context.Context, rawURL string) (*wire.EmbeddableWebsiteAnswer, error) {
	q := url.Values{}
	q.Set("url", rawURL)

	resp := &wire.EmbeddableWebsiteAnswer{}
	if err := c.getJSON(ctx, "/api/embeddable", q, resp); err != nil {
		return nil, err
	}
	resp.URL = rawURL
	resp.State = true
	return resp, nil
}

// RoomsFromSameWorld lists the sibling rooms of the room at playURI.
func (c *IdentityClient) RoomsFromSameWorld(ctx context.Context, playURI string) ([]wire.RoomShortDescription, error) {
	q := url.Values{}
	q.Set("playUri", playURI)

	var resp struct {
		Rooms []wire.RoomShortDescription `json:"rooms"`
	}
	if err := c.getJSON(ctx, "/api/rooms/same-world", q, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// CreateChatRoomForArea provisions a chat room bound to a map area.
func (c *IdentityClient) CreateChatRoomForArea(ctx context.Context, areaID, roomName string) (string, error) {
	body := map[string]string{
		"areaID":   areaID,
		"roomName": roomName,
	}
	var resp struct {
		RoomID string `json:"roomID"`
	}
	if err := c.postJSON(ctx, "/api/chat/rooms", body, &resp); err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

// ReportPlayer files a moderation report.
func (c *IdentityClient) ReportPlayer(ctx context.Context, reportedUUID, reporterUUID, comment, playURI string) error {
	body := map[string]string{
		"reportedUserUuid": reportedUUID,
		"reporterUserUuid": reporterUUID,
		"reportComment":    comment,
		"roomUrl":          playURI,
	}
	return c.postJSON(ctx, "/api/report", body, nil)
}

func (c *IdentityClient) getJSON(ctx context.Context, path string, query url.Values, dst interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, dst)
}

func (c *IdentityClient) postJSON(ctx context.Context, path string, body, dst interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, dst)
}

// doJSON performs one JSON round trip with bounded retry. Network errors
// and 5xx responses are retriable; 4xx responses are not.
func (c *IdentityClient) doJSON(ctx context.Context, method, path string, query url.Values, body, dst interface{}) error {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		if len(payload) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := c.http.Do(req)
		if err != nil {
			return merr.WrapErrIdentityUnavailable(path, err.Error())
		}
		raw, readErr := io.ReadAll(res.Body)
		_ = res.Body.Close()
		if readErr != nil {
			return merr.WrapErrIdentityUnavailable(path, readErr.Error())
		}

		if res.StatusCode >= http.StatusInternalServerError {
			log.Ctx(ctx).Warn("identity api server error",
				zap.String("path", path),
				zap.Int("status", res.StatusCode))
			return merr.WrapErrIdentityUnavailable(path, "status "+strconv.Itoa(res.StatusCode))
		}
		if res.StatusCode != http.StatusOK {
			return merr.WrapErrIdentityBadResponse(path, "status "+strconv.Itoa(res.StatusCode))
		}

		if dst != nil {
			if err := json.Unmarshal(raw, dst); err != nil {
				return merr.WrapErrIdentityBadResponse(path, err.Error())
			}
		}
		return nil
	}, retry.Attempts(uint64(c.cfg.MaxAttempts)))
}
