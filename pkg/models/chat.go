package models

import "time"

// ChatMessage is one turn in an OpenAI-style conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatLogEntry records one prompt/response interaction served by the gateway.
type ChatLogEntry struct {
	ID        string       `json:"id"`
	Prompt    string       `json:"prompt"`
	Response  string       `json:"response"`
	Mode      ProviderMode `json:"mode"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
