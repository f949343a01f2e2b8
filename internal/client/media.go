package client

import (
	"context"
	"fmt"
	"net/http"
)

// MediaStatus is the server's view of a document's media link.
type MediaStatus struct {
	Linked bool    `json:"linked"`
	Type   string  `json:"type,omitempty"`
	Path   string  `json:"path,omitempty"`
	Source string  `json:"source,omitempty"`
	Offset float64 `json:"offset"`
}

// GetMediaStatus fetches the current link state for a document.
func (c *Client) GetMediaStatus(ctx context.Context, docID string) (MediaStatus, error) {
	var status MediaStatus
	path := fmt.Sprintf("/api/document/%s/media_status", docID)
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return MediaStatus{}, err
	}
	return status, nil
}

// FindMedia scans the documents directory for a local media file matching the
// document's basename. mediaType is "audio" or "video". A scan that finds
// nothing comes back as a RejectionError carrying the server's message.
func (c *Client) FindMedia(ctx context.Context, docID, mediaType string) error {
	var resp statusResponse
	path := fmt.Sprintf("/api/document/%s/find_%s", docID, mediaType)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return err
	}
	return resp.err("scan failed")
}

// LinkFromURL links the document to remote media at url.
func (c *Client) LinkFromURL(ctx context.Context, docID, url string) error {
	var resp statusResponse
	path := fmt.Sprintf("/api/document/%s/link_audio_from_url", docID)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"url": url}, &resp); err != nil {
		return err
	}
	return resp.err("could not link media")
}

// UnlinkMedia removes the document's media link.
func (c *Client) UnlinkMedia(ctx context.Context, docID string) error {
	var resp statusResponse
	path := fmt.Sprintf("/api/document/%s/unlink_media", docID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return err
	}
	return resp.err("could not unlink media")
}

// SaveOffset persists the sync offset in seconds.
func (c *Client) SaveOffset(ctx context.Context, docID string, offset float64) error {
	var resp statusResponse
	path := fmt.Sprintf("/api/document/%s/save_audio_offset", docID)
	if err := c.do(ctx, http.MethodPost, path, map[string]float64{"offset": offset}, &resp); err != nil {
		return err
	}
	return resp.err("could not save offset")
}

// URLStatus is the result of probing a web media link.
type URLStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CheckURLStatus asks the server to probe a web media link.
func (c *Client) CheckURLStatus(ctx context.Context, docID, url string) (URLStatus, error) {
	var status URLStatus
	path := fmt.Sprintf("/api/document/%s/check_url_status", docID)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"url": url}, &status); err != nil {
		return URLStatus{}, err
	}
	return status, nil
}
