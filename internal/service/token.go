package service

import (
	"crypto/subtle"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// Claims is the payload the gateway expects inside a client JWT.
// Identifier is the member uuid for logged users or an opaque anonymous id.
type Claims struct {
	Identifier  string `json:"identifier"`
	AccessToken string `json:"accessToken,omitempty"`
	Username    string `json:"username,omitempty"`
	Locale      string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates client JWTs and the static admin API token.
type TokenVerifier struct {
	secret     []byte
	adminToken string
}

// NewTokenVerifier creates a verifier.
// secret signs client JWTs (HS256); adminToken guards the admin endpoints.
func NewTokenVerifier(secret, adminToken string) *TokenVerifier {
	return &TokenVerifier{
		secret:     []byte(secret),
		adminToken: adminToken,
	}
}

// VerifyClientToken parses and validates a client JWT.
// An empty token is reported as missing so the caller can distinguish
// anonymous visitors from forged tokens.
func (v *TokenVerifier) VerifyClientToken(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, merr.WrapErrTokenMissing()
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, merr.WrapErrTokenInvalid("unexpected signing method " + t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, merr.WrapErrTokenInvalid(err.Error())
	}
	if !parsed.Valid {
		return nil, merr.WrapErrTokenInvalid("token is not valid")
	}
	if claims.Identifier == "" {
		return nil, merr.WrapErrTokenInvalid("token carries no identifier")
	}
	return claims, nil
}

// AdminClaims is the payload of a scoped admin JWT. Rooms lists the room
// ids the credential may listen to and act on; the static shared secret
// yields unrestricted claims with no Rooms set.
type AdminClaims struct {
	Rooms []string `json:"rooms,omitempty"`
	jwt.RegisteredClaims
}

// Unrestricted reports whether the credential may touch any room.
func (c *AdminClaims) Unrestricted() bool { return len(c.Rooms) == 0 }

// VerifyAdminToken authorizes an admin credential. The static shared secret
// is checked first, in constant time, and grants unrestricted access. Any
// other value must be an admin JWT signed with the gateway secret whose
// rooms claim scopes what the connection may do.
func (v *TokenVerifier) VerifyAdminToken(token string) (*AdminClaims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, merr.WrapErrAdminUnauthorized("no admin credential supplied")
	}
	if v.adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(v.adminToken)) == 1 {
		return &AdminClaims{}, nil
	}

	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, merr.WrapErrTokenInvalid("unexpected signing method " + t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, merr.WrapErrAdminUnauthorized("bad admin credential")
	}
	// A client JWT signed with the same secret parses fine but carries no
	// rooms claim; it must not open the admin socket.
	if len(claims.Rooms) == 0 {
		return nil, merr.WrapErrAdminUnauthorized("admin token carries no room scope")
	}
	return claims, nil
}
