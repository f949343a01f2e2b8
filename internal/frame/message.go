// Package frame is the message channel between the host page and the
// embedded reference viewer. Messages are a tagged union keyed by a type
// discriminant; decoding and source validation happen once at the channel
// boundary, never inside individual handlers.
package frame

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates viewer channel messages.
type MessageType string

const (
	// Viewer -> host.
	TextSelected           MessageType = "textSelected"
	SetTranscriptTime      MessageType = "setTranscriptTime"
	ReturnCurrentAudioTime MessageType = "returnCurrentAudioTime"

	// Host -> viewer.
	ScrollToPage        MessageType = "scrollToPage"
	ScrollToCue         MessageType = "scrollToCue"
	SetSyncMode         MessageType = "setSyncMode"
	GetCurrentAudioTime MessageType = "getCurrentAudioTime"
	OffsetUpdated       MessageType = "offsetUpdated"
)

var knownTypes = map[MessageType]struct{}{
	TextSelected:           {},
	SetTranscriptTime:      {},
	ReturnCurrentAudioTime: {},
	ScrollToPage:           {},
	ScrollToCue:            {},
	SetSyncMode:            {},
	GetCurrentAudioTime:    {},
	OffsetUpdated:          {},
}

// Selection is the payload of a textSelected message: what the user selected
// inside the viewer and where, so the host can offer a cite popup at the
// selection's screen coordinates.
type Selection struct {
	SourceDocID  string `json:"source_doc_id"`
	PageNumber   string `json:"page_number"`
	SelectedText string `json:"selected_text"`
}

// Envelope is the wire form of every channel message. Only the fields
// relevant to the Type are populated.
type Envelope struct {
	Type      MessageType `json:"type"`
	Payload   *Selection  `json:"payload,omitempty"`
	X         float64     `json:"x,omitempty"`
	Y         float64     `json:"y,omitempty"`
	Page      string      `json:"page,omitempty"`
	Cue       string      `json:"cue,omitempty"`
	Active    bool        `json:"active,omitempty"`
	Time      float64     `json:"time,omitempty"`
	DocID     string      `json:"docId,omitempty"`
	NewOffset float64     `json:"newOffset,omitempty"`
}

// Decode parses and validates a raw channel message. Unknown discriminants
// are rejected here so handlers never see them.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame message: %w", err)
	}
	if _, ok := knownTypes[env.Type]; !ok {
		return Envelope{}, fmt.Errorf("unknown frame message type %q", env.Type)
	}
	return env, nil
}

// Handler consumes one validated message.
type Handler func(Envelope)

// Dispatcher routes validated messages to per-type handlers. It is bound to
// one expected source; messages from any other source are dropped before any
// handler runs.
type Dispatcher struct {
	source   any
	handlers map[MessageType]Handler
}

// NewDispatcher creates a dispatcher trusting only the given source identity
// (the viewer frame's connection, in practice).
func NewDispatcher(source any) *Dispatcher {
	return &Dispatcher{source: source, handlers: make(map[MessageType]Handler)}
}

// On registers the handler for a message type, replacing any previous one.
func (d *Dispatcher) On(t MessageType, h Handler) {
	d.handlers[t] = h
}

// Dispatch validates the source, decodes, and routes. Messages with no
// registered handler are silently ignored, matching the channel's
// best-effort semantics.
func (d *Dispatcher) Dispatch(source any, raw []byte) error {
	if source != d.source {
		return fmt.Errorf("frame message from unexpected source")
	}
	env, err := Decode(raw)
	if err != nil {
		return err
	}
	if h, ok := d.handlers[env.Type]; ok {
		h(env)
	}
	return nil
}
