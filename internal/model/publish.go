package model

import "time"

// PublishRecord describes one successful publish of a note.
type PublishRecord struct {
	PostID      string    `json:"post_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	UpdatedAt   string    `json:"updated_at"` // server timestamp, verbatim
	NotePath    string    `json:"note_path"`
	Created     bool      `json:"created"` // false for updates
	PublishedAt time.Time `json:"published_at"`
}
