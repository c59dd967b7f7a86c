package models

import (
	"time"
)

// DocumentState represents the processing state reported by the remote file store
type DocumentState string

const (
	DocumentStateUnspecified DocumentState = "unspecified"
	DocumentStateProcessing  DocumentState = "processing"
	DocumentStateActive      DocumentState = "active"
	DocumentStateFailed      DocumentState = "failed"
)

// IsValid checks if the document state is one of the known states
func (s DocumentState) IsValid() bool {
	switch s {
	case DocumentStateUnspecified, DocumentStateProcessing, DocumentStateActive, DocumentStateFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of document state
func (s DocumentState) String() string {
	return string(s)
}

// RemoteDocument is one file uploaded to the remote file store
type RemoteDocument struct {
	Name        string        `json:"name"`         // server-assigned, unique
	DisplayName string        `json:"display_name"` // user-supplied filename
	State       DocumentState `json:"state"`
	MimeType    string        `json:"mime_type"`
	URI         string        `json:"uri,omitempty"`
	SizeBytes   int64         `json:"size_bytes,omitempty"`
}

// SemanticStore is an indexed collection backing File Search
type SemanticStore struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// IndexingOperation is a long-running job indexing a document into a SemanticStore.
// Handle carries the provider object needed to re-poll the operation.
type IndexingOperation struct {
	Name   string `json:"name"`
	Done   bool   `json:"done"`
	Error  string `json:"error,omitempty"`
	Handle any    `json:"-"`
}

// ContentCache is server-side cached context reused across conversation turns
type ContentCache struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name,omitempty"`
	Model       string        `json:"model"`
	TTL         time.Duration `json:"ttl"`
}

// SessionDocument is what a session remembers about an ingested file,
// independent of the strategy that ingested it
type SessionDocument struct {
	DisplayName  string    `json:"display_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	RemoteName   string    `json:"remote_name,omitempty"`
	StoreName    string    `json:"store_name,omitempty"`
	IngestedAt   time.Time `json:"ingested_at"`
	BoundToModel bool      `json:"bound_to_model"`
}
