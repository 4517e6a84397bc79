package domain

import "encoding/json"

// Frame type discriminators on the two wire protocols.
const (
	FeedFrameHeartbeat = "heartbeat"
	FrameScenes        = "scenes"
	FrameFeedback      = "feedback"
)

// FeedFrame is one message from the upstream feed stream. Payload is decoded
// only when Type is recognized.
type FeedFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ScenesFrame is the server→subscriber state frame.
type ScenesFrame struct {
	Type      string   `json:"type"`
	Fullnames []string `json:"fullnames"`
}

// FeedbackFrame is the only subscriber→server frame acted on.
type FeedbackFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Upvoted bool   `json:"upvoted"`
}
