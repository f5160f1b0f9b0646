// Package streaming defines the wire protocol between the bookmark manager
// and a remote renderer.
package streaming

import (
	"encoding/json"
)

// Message type constants matching the streaming protocol.
const (
	// TypeHello opens a renderer session and is acknowledged.
	TypeHello = "hello"
	// TypeSnapshot carries the whole model and replaces the renderer state.
	TypeSnapshot = "snapshot"
	// TypeDiff carries the changes of one flush.
	TypeDiff = "diff"
	// TypeGoodbye closes the session and is acknowledged.
	TypeGoodbye = "goodbye"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload identifies the sending manager.
type HelloPayload struct {
	Client  string `json:"client"`
	Version string `json:"version"`
}
