package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// Sonic in compatible mode: matches encoding/json semantics (HTML escaping,
// key sorting in maps) so wire payloads stay byte-stable across platforms.
var api = sonic.ConfigStd

// RawMessage is re-exported so callers do not need to import encoding/json
// alongside this package.
type RawMessage = []byte

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal decodes data into v. v must be a pointer.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Valid reports whether data is syntactically valid JSON.
func Valid(data []byte) bool {
	return api.Valid(data)
}

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}

// NewEncoder returns a streaming encoder writing to w.
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}
