// Package mediasync manages the link between a timed-text document and an
// external media file: the Unlinked/Linked state machine, the sync offset,
// and the two-probe pre-roll calculator. Only SRT documents get a
// controller; the offset maps a transcript cue timestamp t to the media
// playback position t + offset.
package mediasync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"redleaf/api/internal/citation"
	"redleaf/api/internal/client"
	"redleaf/api/internal/frame"
)

// State of the media link.
type State string

const (
	Unlinked State = "unlinked"
	Linked   State = "linked"
)

// Link is the current media link. MediaType, Path, Source, and
// OffsetSeconds are meaningful only when State is Linked.
type Link struct {
	State         State
	MediaType     string
	Path          string
	Source        string
	OffsetSeconds float64
}

// DefaultStep is the nudge step size when the user has not configured one.
const DefaultStep = 0.25

// DisplayWindow is how long scan status stays visible (and the scan control
// stays disabled) after a scan resolves.
const DisplayWindow = 4 * time.Second

// Direction of a nudge.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// api is the slice of the HTTP client the synchronizer needs.
type api interface {
	GetMediaStatus(ctx context.Context, docID string) (client.MediaStatus, error)
	FindMedia(ctx context.Context, docID, mediaType string) error
	LinkFromURL(ctx context.Context, docID, url string) error
	UnlinkMedia(ctx context.Context, docID string) error
	SaveOffset(ctx context.Context, docID string, offset float64) error
}

// Viewer is the embedded viewer's side of the message channel. Reload forces
// the frame to reload its media source; Send pushes a channel message.
type Viewer interface {
	Send(env frame.Envelope)
	Reload()
}

// ErrNotTimedText is returned when a controller is requested for a document
// kind that has no media sync.
var ErrNotTimedText = errors.New("media sync is only available for SRT documents")

// ErrScanInFlight serializes scans: a second trigger while one is
// outstanding is refused rather than queued.
var ErrScanInFlight = errors.New("a media scan is already in progress")

// ErrLinked and ErrUnlinked guard mutators against the wrong state.
var (
	ErrUnlinked = errors.New("no media is linked")
)

// Controller is the per-document offset synchronizer.
type Controller struct {
	api    api
	viewer Viewer
	docID  string

	// Step is the nudge step size in seconds, user-configurable.
	Step float64

	// Confirm gates destructive actions (unlink, clear). Defaults to
	// always-yes; the UI wires a real confirmation dialog.
	Confirm func(prompt string) bool

	mu       sync.Mutex
	link     Link
	scanning bool

	// Pre-roll probes captured from the viewer channel. Nil until the
	// corresponding probe message arrives.
	transcriptPreroll *float64
	streamingPreroll  *float64
}

// NewController creates a synchronizer for an SRT document.
func NewController(api api, viewer Viewer, docID string, docType citation.SourceType) (*Controller, error) {
	if !docType.Timed() {
		return nil, ErrNotTimedText
	}
	return &Controller{
		api:     api,
		viewer:  viewer,
		docID:   docID,
		Step:    DefaultStep,
		Confirm: func(string) bool { return true },
		link:    Link{State: Unlinked},
	}, nil
}

// Link returns the last known link state.
func (c *Controller) Link() Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// Refresh re-reads the link state from the server. The displayed offset is
// always the server's, never a locally computed value.
func (c *Controller) Refresh(ctx context.Context) (Link, error) {
	status, err := c.api.GetMediaStatus(ctx, c.docID)
	if err != nil {
		return c.Link(), fmt.Errorf("refresh media status: %w", err)
	}
	link := Link{State: Unlinked}
	if status.Linked {
		link = Link{
			State:         Linked,
			MediaType:     status.Type,
			Path:          status.Path,
			Source:        status.Source,
			OffsetSeconds: status.Offset,
		}
	}
	c.mu.Lock()
	c.link = link
	c.mu.Unlock()
	return link, nil
}

// Scan looks for a local media file of the given type ("audio" or "video").
// Success transitions to Linked with offset 0 and source=local and forces a
// viewer reload; a scan that finds nothing stays Unlinked and the server's
// message comes back as the error. Re-triggering while a scan is outstanding
// is refused.
func (c *Controller) Scan(ctx context.Context, mediaType string) error {
	if mediaType != "audio" && mediaType != "video" {
		return fmt.Errorf("%w: media type must be audio or video", client.ErrValidation)
	}

	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return ErrScanInFlight
	}
	c.scanning = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.scanning = false
		c.mu.Unlock()
	}()

	if err := c.api.FindMedia(ctx, c.docID, mediaType); err != nil {
		return err
	}
	c.viewer.Reload()
	_, err := c.Refresh(ctx)
	return err
}

// LinkFromURL links remote media; like a successful scan it forces a viewer
// reload and re-reads status.
func (c *Controller) LinkFromURL(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("%w: url is required", client.ErrValidation)
	}
	if err := c.api.LinkFromURL(ctx, c.docID, url); err != nil {
		return err
	}
	c.viewer.Reload()
	_, err := c.Refresh(ctx)
	return err
}

// Unlink tears down the media link. Destructive: requires confirmation, then
// forces a viewer reload.
func (c *Controller) Unlink(ctx context.Context) error {
	if c.Link().State != Linked {
		return ErrUnlinked
	}
	if !c.Confirm("Are you sure you want to unlink this media file?") {
		return nil
	}
	if err := c.api.UnlinkMedia(ctx, c.docID); err != nil {
		return err
	}
	c.viewer.Reload()
	_, err := c.Refresh(ctx)
	return err
}

// ClearOffset resets the offset to exactly 0.0, with confirmation. No viewer
// reload; the viewer is notified over the channel instead.
func (c *Controller) ClearOffset(ctx context.Context) error {
	if c.Link().State != Linked {
		return ErrUnlinked
	}
	if !c.Confirm("Are you sure you want to clear the audio sync offset?") {
		return nil
	}
	return c.saveOffset(ctx, 0.0)
}

// Nudge adjusts the displayed offset by the configured step. No
// confirmation, no reload. The control deliberately stays enabled during the
// save round trip: rapid nudges race, last acknowledgement wins, and the
// displayed value is re-read from the server after every save.
func (c *Controller) Nudge(ctx context.Context, dir Direction) error {
	link := c.Link()
	if link.State != Linked {
		return ErrUnlinked
	}
	step := c.Step
	if step == 0 {
		step = DefaultStep
	}
	offset := link.OffsetSeconds
	if dir == Backward {
		offset -= step
	} else {
		offset += step
	}
	return c.saveOffset(ctx, offset)
}

// Calculate derives the offset from two independently captured pre-roll
// timestamps: offset = streamingPreroll - transcriptPreroll. Both inputs
// must be well-formed numbers; a bad probe blocks the save entirely.
func (c *Controller) Calculate(ctx context.Context, transcriptPreroll, streamingPreroll float64) error {
	if c.Link().State != Linked {
		return ErrUnlinked
	}
	if badNumber(transcriptPreroll) || badNumber(streamingPreroll) {
		return fmt.Errorf("%w: please enter valid numbers for both pre-roll fields", client.ErrValidation)
	}
	return c.saveOffset(ctx, streamingPreroll-transcriptPreroll)
}

// saveOffset persists, notifies the viewer of the new value over the
// channel, then re-syncs the displayed value from the server.
func (c *Controller) saveOffset(ctx context.Context, offset float64) error {
	if err := c.api.SaveOffset(ctx, c.docID, offset); err != nil {
		return err
	}
	c.viewer.Send(frame.Envelope{Type: frame.OffsetUpdated, DocID: c.docID, NewOffset: offset})
	_, err := c.Refresh(ctx)
	return err
}

func badNumber(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
