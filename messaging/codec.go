package messaging

import (
	"encoding/json"
	"fmt"
)

// EncodeFunc turns a message body into wire bytes before publishing.
type EncodeFunc func(body interface{}) ([]byte, error)

// DecodeFunc transforms a received message before it is handed to
// application code. Decoders should only reshape the payload (typically
// setting Value from Body); routing metadata must be preserved.
type DecodeFunc func(msg Message) (Message, error)

// RawEncode passes byte and string bodies through unchanged.
func RawEncode(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("messaging: cannot encode body of type %T without an encoder", body)
	}
}

// JSONEncode marshals the body as JSON.
func JSONEncode(body interface{}) ([]byte, error) {
	return json.Marshal(body)
}

// JSONDecode unmarshals the message body into Value.
func JSONDecode(msg Message) (Message, error) {
	var v interface{}
	if err := json.Unmarshal(msg.Body, &v); err != nil {
		return msg, fmt.Errorf("messaging: failed to decode JSON body: %w", err)
	}
	msg.Value = v
	return msg, nil
}
