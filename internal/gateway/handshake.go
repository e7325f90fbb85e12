package gateway

import (
	"hash/fnv"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// Handshake rejection reasons, used as metric labels and for logging.
const (
	rejectVersionMismatch = "versionMismatch"
	rejectTokenInvalid    = "tokenInvalid"
	rejectInvalidTexture  = "invalidTexture"
	rejectUpstreamError   = "error"
	rejectAborted         = "aborted"
	rejectInternal        = "internal"
)

// handshakeResult is everything needed to build a session once the
// connection has been vetted.
type handshakeResult struct {
	claims  *service.Claims
	member  *service.MemberData
	playURI string
	world   string
	name    string
	ip      string

	position      wire.Position
	viewport      wire.Viewport
	availability  int32
	lastCommandID string
}

// rejection describes a refused handshake: the message delivered to the
// client after the upgrade, and the close code that follows it. roomID is
// the room the attempt touched, if it got that far, so the caller can
// collect the room record when nobody occupies it.
type rejection struct {
	reason string
	msg    wire.ServerMessage
	code   int
	roomID string
}

// handshake vets a connection request before the session exists. Checks run
// in a fixed order and the first failure wins: protocol version, then the
// auth token, then the member profile and its textures. The request context
// aborts the profile fetch when the client goes away mid-handshake.
func (srv *Server) handshake(r *http.Request) (*handshakeResult, *rejection) {
	start := time.Now()
	defer func() {
		metrics.HandshakeDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	q := r.URL.Query()

	if err := checkVersion(q.Get("version")); err != nil {
		log.Warn("handshake version rejected",
			zap.String("clientVersion", q.Get("version")),
			zap.Error(err))
		return nil, &rejection{
			reason: rejectVersionMismatch,
			msg: wire.NewRetryErrorScreen(
				"The client version is not compatible with this server. Please reload.",
				5000),
			code: wire.CloseNormal,
		}
	}

	playURI := q.Get("playUri")
	if playURI == "" {
		playURI = q.Get("roomId")
	}
	if playURI == "" {
		return nil, &rejection{
			reason: rejectInternal,
			msg:    &wire.ConnectionErrorMessage{Reason: "missing playUri"},
			code:   wire.CloseInvalidMessage,
		}
	}
	srv.rooms.Touch(playURI)

	claims, err := srv.verifier.VerifyClientToken(q.Get("token"))
	switch {
	case err == nil:
	case merr.Code(err) == merr.Code(merr.ErrHandshakeTokenMissing):
		if srv.cfg.DisableAnonymous {
			return nil, &rejection{
				reason: rejectTokenInvalid,
				msg:    &wire.TokenExpiredMessage{Reason: "anonymousAccessDisabled"},
				code:   wire.CloseNormal,
				roomID: playURI,
			}
		}
		// Anonymous visitor; the identity service decides whether the
		// room accepts them.
		claims = &service.Claims{Identifier: service.NewAnonymousIdentifier()}
	default:
		return nil, &rejection{
			reason: rejectTokenInvalid,
			msg:    &wire.TokenExpiredMessage{Reason: "tokenInvalid"},
			code:   wire.CloseNormal,
			roomID: playURI,
		}
	}

	ip := clientIP(r)
	member, err := srv.identity.FetchMemberData(
		r.Context(),
		claims.Identifier,
		playURI,
		ip,
		q["characterTextureIds"],
		q.Get("companionTextureId"),
		q.Get("chatID"),
	)
	if err != nil {
		if r.Context().Err() != nil {
			return nil, &rejection{reason: rejectAborted, code: wire.CloseNormal, roomID: playURI}
		}
		log.Warn("member data fetch failed", zap.String("playUri", playURI), zap.Error(err))
		if merr.IsRetryableErr(err) {
			return nil, &rejection{
				reason: rejectUpstreamError,
				msg: wire.NewRetryErrorScreen(
					"The world server is unreachable. Retrying shortly.",
					3000),
				code:   wire.CloseNormal,
				roomID: playURI,
			}
		}
		return nil, &rejection{
			reason: rejectInternal,
			msg:    &wire.ConnectionErrorMessage{Reason: "identity lookup failed"},
			code:   wire.CloseNormal,
			roomID: playURI,
		}
	}
	// The fetch can succeed after the client already went away; never hand
	// a result back for a dead transport.
	if r.Context().Err() != nil {
		return nil, &rejection{reason: rejectAborted, code: wire.CloseNormal, roomID: playURI}
	}

	if !member.CharacterTexturesValid {
		return nil, &rejection{
			reason: rejectInvalidTexture,
			msg:    &wire.InvalidTextureMessage{Entity: "character"},
			code:   wire.CloseNormal,
			roomID: playURI,
		}
	}
	if !member.CompanionTextureValid && q.Get("companionTextureId") != "" {
		return nil, &rejection{
			reason: rejectInvalidTexture,
			msg:    &wire.InvalidTextureMessage{Entity: "companion"},
			code:   wire.CloseNormal,
			roomID: playURI,
		}
	}

	name := q.Get("name")
	if name == "" {
		name = member.Username
	}
	if name == "" {
		name = claims.Username
	}

	world := member.World
	if world == "" {
		world = worldFromPlayURI(playURI)
	}

	return &handshakeResult{
		claims:  claims,
		member:  member,
		playURI: playURI,
		world:   world,
		name:    name,
		ip:      ip,
		position: wire.Position{
			X: queryFloat(q, "x"),
			Y: queryFloat(q, "y"),
		},
		viewport: wire.Viewport{
			Top:    queryInt32(q, "top"),
			Right:  queryInt32(q, "right"),
			Bottom: queryInt32(q, "bottom"),
			Left:   queryInt32(q, "left"),
		},
		availability:  queryInt32(q, "availabilityStatus"),
		lastCommandID: q.Get("lastCommandId"),
	}, nil
}

func queryFloat(q url.Values, key string) float64 {
	v, err := strconv.ParseFloat(q.Get(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func queryInt32(q url.Values, key string) int32 {
	v, err := strconv.ParseInt(q.Get(key), 10, 32)
	if err != nil {
		return 0
	}
	return int32(v)
}

// presencePalette colors players whose profile carries none. The color is a
// stable function of the display name so every client renders the same one.
var presencePalette = []string{
	"#ff5d5d", "#ffa36b", "#ffd56b", "#8fd96b",
	"#5dd6c2", "#5da9ff", "#8a7bff", "#d97bff",
}

func colorForName(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return presencePalette[h.Sum32()%uint32(len(presencePalette))]
}

// worldFromPlayURI derives a world identifier from a room URL. Dedicated
// world URLs of the form /@/<world>/... use the world segment; anything
// else falls back to the host. Dots are flattened so the identifier can
// prefix world-qualified space names.
func worldFromPlayURI(playURI string) string {
	u, err := url.Parse(playURI)
	if err != nil {
		return flattenWorld(playURI)
	}
	if rest, ok := strings.CutPrefix(u.Path, "/@/"); ok {
		if world, _, found := strings.Cut(rest, "/"); found || world != "" {
			return flattenWorld(world)
		}
	}
	if u.Host != "" {
		return flattenWorld(u.Host)
	}
	return flattenWorld(playURI)
}

func flattenWorld(s string) string {
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	if s == "" {
		return "default"
	}
	return s
}

// clientIP prefers the forwarding header set by the front proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
