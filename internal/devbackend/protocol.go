package devbackend

import "encoding/json"

// ClientMessage is the only structured frame the hub accepts from a socket.
// Anything else besides the literal keep-alive "ping" is ignored
type ClientMessage struct {
	Type  string          `json:"type"`            // "publish"
	Topic string          `json:"topic,omitempty"` // defaults to the socket's topic
	Event json.RawMessage `json:"event,omitempty"`
}

const pingFrame = "ping"
