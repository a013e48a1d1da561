package observerproto

import "hellblock.ai/internal/storage/events"

// Version is the observer protocol version.
const Version = "1.0"

// Client -> Server. First message on the observer WS connection; may be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Empty means every world / every kind.
	Worlds []string      `json:"worlds,omitempty"`
	Kinds  []events.Kind `json:"kinds,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	Backend         string   `json:"backend"`
	Worlds          []string `json:"worlds"`
}

// Server -> Client. One per storage event passing the filter.
type EventMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Event           events.Event `json:"event"`
}
