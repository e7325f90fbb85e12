package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

func TestCodecClientRoundTrip(t *testing.T) {
	codec := NewCodec()

	sent := &UserMovesMessage{
		Position: Position{X: 12.5, Y: -3, Direction: "up", Moving: true},
		Viewport: Viewport{Left: 0, Bottom: 0, Right: 1920, Top: 1080},
	}
	frame, err := codec.EncodeClient(sent)
	require.NoError(t, err)

	decoded, err := codec.DecodeClient(frame)
	require.NoError(t, err)
	got, ok := decoded.(*UserMovesMessage)
	require.True(t, ok)
	require.Equal(t, sent, got)
}

func TestCodecServerRoundTrip(t *testing.T) {
	codec := NewCodec()

	sent := &SpaceUserJoinedMessage{
		SpaceName: "w1.lobby",
		User: SpaceUser{
			ID:   7,
			UUID: "uuid-7",
			Name: "alice",
			Tags: []string{"admin"},
		},
	}
	frame, err := codec.EncodeServer(sent)
	require.NoError(t, err)

	decoded, err := codec.DecodeServer(frame)
	require.NoError(t, err)
	require.Equal(t, sent, decoded)
}

func TestCodecEmptyPayloadMessage(t *testing.T) {
	codec := NewCodec()

	frame, err := codec.EncodeClient(&PingMessage{})
	require.NoError(t, err)

	decoded, err := codec.DecodeClient(frame)
	require.NoError(t, err)
	require.IsType(t, &PingMessage{}, decoded)
}

func TestCodecUnknownOp(t *testing.T) {
	codec := NewCodec()

	frame, err := codec.EncodeClient(&PingMessage{})
	require.NoError(t, err)

	// Rewrite the op header to an unregistered value.
	frame[4], frame[5], frame[6], frame[7] = 0xff, 0xff, 0xff, 0xff

	_, err = codec.DecodeClient(frame)
	require.ErrorIs(t, err, merr.ErrProtocolUnknownOp)
}

func TestCodecServerOpRejectedOnClientPath(t *testing.T) {
	codec := NewCodec()

	frame, err := codec.EncodeServer(&PingResponseMessage{})
	require.NoError(t, err)

	_, err = codec.DecodeClient(frame)
	require.ErrorIs(t, err, merr.ErrProtocolUnknownOp)
}

func TestCodecTruncatedFrame(t *testing.T) {
	codec := NewCodec()

	_, err := codec.DecodeClient([]byte{0, 0, 0})
	require.ErrorIs(t, err, merr.ErrProtocolBadPayload)

	frame, err := codec.EncodeClient(&EmotePromptMessage{Emote: "wave"})
	require.NoError(t, err)
	_, err = codec.DecodeClient(frame[:len(frame)-1])
	require.ErrorIs(t, err, merr.ErrProtocolBadPayload)
}

func TestCodecFrameTooBig(t *testing.T) {
	codec := NewCodec(WithMaxPayload(16))

	_, err := codec.EncodeClient(&PlayGlobalMessage{
		Type:    "audio",
		Content: "this payload does not fit in sixteen bytes",
	})
	require.ErrorIs(t, err, merr.ErrProtocolFrameTooBig)
}

func TestSubMessageRoundTrip(t *testing.T) {
	inner := &UserMovedMessage{
		UserID:   3,
		Position: Position{X: 1, Y: 2},
	}
	sub, err := NewSubMessage(inner)
	require.NoError(t, err)
	require.Equal(t, KindUserMoved, sub.Op)

	decoded, err := sub.Decode()
	require.NoError(t, err)
	require.Equal(t, inner, decoded)
}

func TestBatchKeepsOrder(t *testing.T) {
	codec := NewCodec()

	batch := &BatchMessage{}
	for _, emote := range []string{"a", "b", "c"} {
		sub, err := NewSubMessage(&EmoteEventMessage{ActorUserID: 1, Emote: emote})
		require.NoError(t, err)
		batch.Payload = append(batch.Payload, sub)
	}

	frame, err := codec.EncodeServer(batch)
	require.NoError(t, err)
	decoded, err := codec.DecodeServer(frame)
	require.NoError(t, err)

	got := decoded.(*BatchMessage)
	require.Len(t, got.Payload, 3)
	for i, emote := range []string{"a", "b", "c"} {
		msg, err := got.Payload[i].Decode()
		require.NoError(t, err)
		require.Equal(t, emote, msg.(*EmoteEventMessage).Emote)
	}
}

func TestEveryClientKindIsNamed(t *testing.T) {
	kinds := ClientKinds()
	require.Len(t, kinds, len(clientRegistry))
	for _, k := range kinds {
		require.NotEqual(t, "unknown", k.String(), "kind %d has no name", k)

		msg := clientRegistry[k]()
		require.Equal(t, k, msg.ClientKind())
	}
}

func TestEveryServerKindDecodes(t *testing.T) {
	codec := NewCodec()
	for k, ctor := range serverRegistry {
		require.NotEqual(t, "unknown", k.String(), "kind %d has no name", k)

		frame, err := codec.EncodeServer(ctor())
		require.NoError(t, err)
		decoded, err := codec.DecodeServer(frame)
		require.NoError(t, err)
		require.Equal(t, k, decoded.ServerKind())
	}
}
