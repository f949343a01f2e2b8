package search

import "time"

// Result is a single document hit returned to the synthesis search box.
type Result struct {
	ID             string     `json:"id"`
	RelativePath   string     `json:"relative_path"`
	FileType       string     `json:"file_type"`
	FileModifiedAt *time.Time `json:"file_modified_at,omitempty"`
}

// Query describes a search request against the document library.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a document search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID             string     `json:"id"`
	RelativePath   string     `json:"relativePath"`
	FileType       string     `json:"fileType"`
	FileModifiedAt *time.Time `json:"fileModifiedAt,omitempty"`
}
