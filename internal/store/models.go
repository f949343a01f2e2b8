package store

import (
	"encoding/json"
	"time"
)

// Document is one file in the curated library. The linked_* columns carry
// the media link for timed-text documents: at most one of LinkedAudioPath,
// LinkedVideoPath, LinkedAudioURL is set, and a web URL wins over local
// paths when resolving status.
type Document struct {
	ID                 string
	RelativePath       string
	FileType           string
	FileModifiedAt     *time.Time
	LinkedAudioPath    *string
	LinkedVideoPath    *string
	LinkedAudioURL     *string
	LastAudioPosition  float64
	AudioOffsetSeconds float64
}

// Report is a synthesis report: a rich-text document whose body embeds
// citation pills. ContentJSON is the editor's document tree, opaque to the
// store.
type Report struct {
	ID          string
	Title       string
	ContentJSON json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Citation is one persisted citation instance. UUID is assigned at creation
// and never changes; QuotedText is nil for citation-only inserts.
type Citation struct {
	UUID           string
	ReportID       string
	SourceDocID    string
	PageNumber     string
	QuotedText     *string
	Prefix         string
	Suffix         string
	SuppressAuthor bool
	CreatedAt      time.Time
}

// CommitInfo describes one revision in a report's content history.
type CommitInfo struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}
