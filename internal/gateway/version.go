package gateway

import (
	"github.com/blang/semver/v4"

	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// ProtocolVersion is the wire protocol version this build speaks. Clients
// must present exactly this version during the handshake.
var ProtocolVersion = semver.MustParse("1.0.0")

// checkVersion gates the handshake on protocol compatibility. The check is
// strict equality: an absent, malformed or differing version rejects the
// connection and the client is told to reload.
func checkVersion(clientVersion string) error {
	if clientVersion == "" {
		return merr.WrapErrVersionMismatch(clientVersion, ProtocolVersion.String(), "no version supplied")
	}
	v, err := semver.ParseTolerant(clientVersion)
	if err != nil {
		return merr.WrapErrVersionMismatch(clientVersion, ProtocolVersion.String(), "unparseable version")
	}
	if !v.EQ(ProtocolVersion) {
		return merr.WrapErrVersionMismatch(clientVersion, ProtocolVersion.String())
	}
	return nil
}
