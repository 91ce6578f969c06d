// Package presence tracks which users currently own a live connection
// and delivers server-to-client events to those connections.
package presence

import (
	"encoding/json"
	"fmt"
)

// Server-to-client event names.
const (
	EventNewMessage  = "newMessage"
	EventOnlineUsers = "getOnlineUsers"
)

// Event is the wire envelope for everything pushed over a live connection.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeEvent marshals an event envelope for the wire.
func EncodeEvent(name string, data any) ([]byte, error) {
	payload, err := json.Marshal(Event{Event: name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", name, err)
	}
	return payload, nil
}
