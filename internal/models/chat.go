package models

// Conversation roles as understood by the model service
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one element of a conversation turn: either text or a document reference
type Part struct {
	Text     string          `json:"text,omitempty"`
	Document *RemoteDocument `json:"document,omitempty"`
}

// Turn is a single entry in a conversation history
type Turn struct {
	Role  string `json:"role"` // "user" or "model"
	Parts []Part `json:"parts"`
}

// TextTurn builds a turn carrying a single text part
func TextTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// ChatMessage represents a single message in a session transcript
type ChatMessage struct {
	Role    string `json:"role"`    // "user" or "assistant"
	Content string `json:"content"` // The message content
}

// ChatRequest represents the incoming chat request from the client
type ChatRequest struct {
	Message string `json:"message"` // The current user message
}

// ChatResponse represents a non-streamed chat reply
type ChatResponse struct {
	Message string `json:"message"` // The assistant's response
	Status  string `json:"status"`  // "success" or "error"
}

// BasicResponse is the generic status envelope used by simple endpoints
type BasicResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
