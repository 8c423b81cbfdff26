// Package feed maintains the push channel from the dictation server: it
// owns the transport session (SSE or WebSocket), classifies incoming
// frames, and reconnects after a fixed delay when the channel drops.
//
// The package guarantees that at most one live session and at most one
// pending retry timer exist at any time, and that a reconnect attempt
// re-checks the channel state when its timer fires, so a racing manual
// reconnect never produces a second session.
package feed

// Message is a frame pushed by the server. Data is free-form text whose
// meaning depends on Type.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Message types pushed by the server.
const (
	// MsgText replaces the live (in-progress) line.
	MsgText = "text"

	// MsgSegment finalizes the live line into a card.
	MsgSegment = "segment"

	// MsgCard creates a card without touching the live line.
	MsgCard = "card"

	// MsgClearInput clears the live line.
	MsgClearInput = "clear_input"

	// MsgShowQR toggles the connection-assist surface ("true"/"false").
	MsgShowQR = "show_qr"

	// MsgConnected is informational; the server sends it on session start.
	MsgConnected = "connected"
)

// Status describes the push channel state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Open
)

// String returns a human-readable status label.
func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// TopicStatus is published on the bus with the new [Status] whenever the
// channel state changes.
const TopicStatus = "feed:status"
