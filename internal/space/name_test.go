package space

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

func TestNewName(t *testing.T) {
	name, err := NewName("w1", "lobby")
	require.NoError(t, err)
	require.Equal(t, "w1", name.World())
	require.Equal(t, "lobby", name.Local())
	require.Equal(t, "w1.lobby", name.String())
}

func TestNewNameRejectsBadParts(t *testing.T) {
	_, err := NewName("", "lobby")
	require.ErrorIs(t, err, merr.ErrSpaceNameInvalid)

	_, err = NewName("w1", "")
	require.ErrorIs(t, err, merr.ErrSpaceNameInvalid)

	_, err = NewName("w.1", "lobby")
	require.ErrorIs(t, err, merr.ErrSpaceNameInvalid)
}

func TestParseName(t *testing.T) {
	name, err := ParseName("w1.lobby")
	require.NoError(t, err)
	require.Equal(t, "w1", name.World())
	require.Equal(t, "lobby", name.Local())

	// Locals keep their own dots.
	name, err = ParseName("w1.area.42")
	require.NoError(t, err)
	require.Equal(t, "area.42", name.Local())

	_, err = ParseName("nodot")
	require.ErrorIs(t, err, merr.ErrSpaceNameInvalid)
}
