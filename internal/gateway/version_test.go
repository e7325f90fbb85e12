package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

func TestCheckVersion(t *testing.T) {
	require.NoError(t, checkVersion(ProtocolVersion.String()))
	require.NoError(t, checkVersion("v"+ProtocolVersion.String()),
		"a leading v is tolerated when the version is otherwise equal")

	for _, bad := range []string{
		"",
		fmt.Sprintf("%d.%d.%d", ProtocolVersion.Major, ProtocolVersion.Minor+1, 0),
		fmt.Sprintf("%d.%d.%d", ProtocolVersion.Major, ProtocolVersion.Minor, ProtocolVersion.Patch+1),
		fmt.Sprintf("%d.0.0", ProtocolVersion.Major+1),
		"not-a-version",
	} {
		err := checkVersion(bad)
		require.ErrorIs(t, err, merr.ErrHandshakeVersionMismatch, "%q must not pass the gate", bad)
	}

	err := checkVersion(fmt.Sprintf("%d.0.0", ProtocolVersion.Major+1))
	require.True(t, merr.IsRetryableErr(err), "version mismatch tells the client to retry after reload")
}
