// Package client is the HTTP edge of the workbench: every server interaction
// the citation and media-sync components make goes through this one typed
// client. Mutating calls carry the CSRF token header; all calls take a
// context and fail into the small error taxonomy in errors.go.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"redleaf/api/internal/citation"
)

const csrfHeader = "X-CSRFToken"

// Client talks to the Redleaf API.
type Client struct {
	baseURL   string
	csrfToken string
	http      *http.Client
}

// New creates a client for the API at baseURL. The CSRF token is attached to
// every mutating request.
func New(baseURL, csrfToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		csrfToken: csrfToken,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues one JSON request/response round trip. A transport failure or a
// non-2xx status is a NetworkError; the body of a 2xx response is decoded
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		req.Header.Set(csrfHeader, c.csrfToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The server puts its failure message in the body even on error
		// statuses; surface it verbatim when present.
		var failure struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&failure); decodeErr == nil {
			if failure.Message != "" {
				return &NetworkError{Op: method + " " + path, StatusCode: resp.StatusCode, Message: failure.Message}
			}
			if failure.Error != "" {
				return &NetworkError{Op: method + " " + path, StatusCode: resp.StatusCode, Message: failure.Error}
			}
		}
		return &NetworkError{Op: method + " " + path, StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// DocumentTypes resolves a batch of document ids to their file types in one
// request. Ids the server does not know are absent from the result.
// Satisfies citation.TypeLookup.
func (c *Client) DocumentTypes(ctx context.Context, ids []string) (map[string]citation.SourceType, error) {
	if len(ids) == 0 {
		return map[string]citation.SourceType{}, nil
	}
	var raw map[string]string
	if err := c.do(ctx, http.MethodPost, "/api/documents/types", map[string]any{"doc_ids": ids}, &raw); err != nil {
		return nil, err
	}
	types := make(map[string]citation.SourceType, len(raw))
	for id, value := range raw {
		t, err := citation.ParseSourceType(value)
		if err != nil {
			// An unknown type from the server is worse than no type; skip it
			// so the marker stays legacy rather than guessing.
			continue
		}
		types[id] = t
	}
	return types, nil
}

// CitationInput is what the modal submits when inserting a citation.
type CitationInput struct {
	SourceDocID    string  `json:"source_doc_id"`
	PageNumber     string  `json:"page_number"`
	CorrectedText  *string `json:"corrected_text"`
	Prefix         string  `json:"prefix"`
	Suffix         string  `json:"suffix"`
	SuppressAuthor bool    `json:"suppress_author"`
}

// CitationResult is the server's response to a successful creation. The
// server is the sole authority for the uuid, resolved type, and label.
type CitationResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	UUID        string `json:"citation_instance_uuid"`
	DataDocID   string `json:"data_doc_id"`
	DataDocType string `json:"data_doc_type"`
	InTextLabel string `json:"in_text_label"`
}

// CreateCitation persists a citation against a synthesis report and returns
// the marker attributes the editor should insert.
func (c *Client) CreateCitation(ctx context.Context, reportID string, input CitationInput) (CitationResult, error) {
	var result CitationResult
	path := fmt.Sprintf("/api/synthesis/%s/citations", reportID)
	if err := c.do(ctx, http.MethodPost, path, input, &result); err != nil {
		return CitationResult{}, err
	}
	if !result.Success {
		return CitationResult{}, &RejectionError{Message: orDefault(result.Message, "failed to add citation")}
	}
	return result, nil
}

// ReportContent loads a report's editor document, or nil when the report has
// never been saved.
func (c *Client) ReportContent(ctx context.Context, reportID string) (json.RawMessage, error) {
	var resp struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Content json.RawMessage `json:"content"`
	}
	path := fmt.Sprintf("/api/synthesis/%s/content", reportID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RejectionError{Message: orDefault(resp.Message, "could not load content")}
	}
	return resp.Content, nil
}

// SaveReportContent persists the editor document.
func (c *Client) SaveReportContent(ctx context.Context, reportID string, content json.RawMessage) error {
	var resp statusResponse
	path := fmt.Sprintf("/api/synthesis/%s/content", reportID)
	if err := c.do(ctx, http.MethodPost, path, content, &resp); err != nil {
		return err
	}
	return resp.err("could not save content")
}

// BibliographyEntry is one source in the report's bibliography.
type BibliographyEntry struct {
	DocID        string `json:"doc_id"`
	RelativePath string `json:"relative_path"`
	Label        string `json:"label"`
	CiteCount    int    `json:"cite_count"`
}

// Bibliography posts the current editor document and returns the sources its
// live pills reference.
func (c *Client) Bibliography(ctx context.Context, reportID string, content json.RawMessage) ([]BibliographyEntry, error) {
	var resp struct {
		Entries []BibliographyEntry `json:"entries"`
	}
	path := fmt.Sprintf("/api/synthesis/%s/bibliography", reportID)
	if err := c.do(ctx, http.MethodPost, path, content, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (r statusResponse) err(fallback string) error {
	if r.Success {
		return nil
	}
	return &RejectionError{Message: orDefault(r.Message, fallback)}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
