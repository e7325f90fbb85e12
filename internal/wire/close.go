package wire

// WebSocket close codes used by the gateway.
const (
	// CloseNormal is sent on clean shutdown and ordinary disconnects.
	CloseNormal = 1000
	// CloseInvalidMessage is sent when a peer violates the framing or
	// sends an undecodable message.
	CloseInvalidMessage = 1007
	// CloseAccessRefused is sent when a peer is authenticated but not
	// allowed to perform the requested operation.
	CloseAccessRefused = 1008
)
