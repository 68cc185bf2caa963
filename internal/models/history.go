package models

import "time"

// CompletionRecord is one entry of the completion history.
type CompletionRecord struct {
	ID            string    `json:"id"`
	InfoHash      string    `json:"infoHash"`
	Name          string    `json:"name"`
	SavePath      string    `json:"savePath"`
	RelocatedTo   string    `json:"relocatedTo,omitempty"`
	RelocateError string    `json:"relocateError,omitempty"`
	Command       string    `json:"command,omitempty"`
	CommandError  string    `json:"commandError,omitempty"`
	Filtered      bool      `json:"filtered,omitempty"`
	CompletedAt   time.Time `json:"completedAt"`
}
