package bus

import "time"

// ChatEvent is one chat line received from the game client.
type ChatEvent struct {
	Type      string    `json:"type"`   // chat type name, e.g. "say", "fc", "ls1"
	Sender    string    `json:"sender"` // character name
	World     string    `json:"world,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is a formatted message ready for the messaging platform.
type OutboundMessage struct {
	ChatType      string `json:"chat_type"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id"`
}
