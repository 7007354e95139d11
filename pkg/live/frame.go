package live

import (
	"encoding/json"
	"fmt"
)

// Frame types.
const (
	// Client to server.
	FrameRoute = "route"
	FramePing  = "ping"

	// Server to client.
	FramePong    = "pong"
	FrameToast   = "toast"
	FrameEvent   = "event"
	FrameSignOut = "signout"
)

// Frame is one JSON message on the live connection.
type Frame struct {
	Type string `json:"type"`

	// Path is the client's current path (route).
	Path string `json:"path,omitempty"`

	// Redirect is where the client should go after signing out (signout).
	Redirect string `json:"redirect,omitempty"`

	// Name and Detail describe a browser event (toast, event).
	Name   string `json:"name,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// DecodeFrame parses a client frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}
