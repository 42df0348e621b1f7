package commsutil

import (
	"bytes"
	"encoding/json"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// EncodeLine serializes a value as one newline-terminated JSON line.
// json.Marshal escapes control characters, so the only newline is the terminator.
func EncodeLine(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodePayload deserializes JSON bytes into the given target.
// Surrounding whitespace, including a trailing newline, is ignored.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(bytes.TrimSpace(data), v)
}
