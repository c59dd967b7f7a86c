package models

import (
	"fmt"
	"time"
)

// Mode selects the retrieval strategy used by a session
type Mode string

const (
	ModeLongContext Mode = "long-context"
	ModeFileSearch  Mode = "file-search"
)

// ParseMode converts user input into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLongContext, ModeFileSearch:
		return Mode(s), nil
	case "":
		return ModeLongContext, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeLongContext, ModeFileSearch)
	}
}

// Label returns the human readable name of the mode
func (m Mode) Label() string {
	switch m {
	case ModeFileSearch:
		return "File Search Tool"
	default:
		return "Long Context"
	}
}

// Resources lists the remote objects a strategy currently owns
type Resources struct {
	DocumentNames []string `json:"document_names,omitempty"`
	StoreName     string   `json:"store_name,omitempty"`
}

// IsEmpty reports whether no remote object is owned
func (r Resources) IsEmpty() bool {
	return len(r.DocumentNames) == 0 && r.StoreName == ""
}

// SessionRecord is the persisted footprint of a session, kept so remote
// resources can be swept even if the owning process died
type SessionRecord struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	Resources Resources `json:"resources"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the record before it is persisted
func (r *SessionRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("invalid session record: id is required")
	}
	if _, err := ParseMode(string(r.Mode)); err != nil || r.Mode == "" {
		return fmt.Errorf("invalid session record %s: mode %q", r.ID, r.Mode)
	}
	return nil
}

// SessionView is the API representation of a session
type SessionView struct {
	ID                string            `json:"id"`
	Mode              Mode              `json:"mode"`
	ModeLabel         string            `json:"mode_label"`
	Model             string            `json:"model"`
	Documents         []SessionDocument `json:"documents"`
	Messages          []ChatMessage     `json:"messages"`
	ConversationReady bool              `json:"conversation_ready"`
	StatusMessage     string            `json:"status_message"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
