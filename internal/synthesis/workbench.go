// Package synthesis drives the citation-authoring workbench: loading a
// report's editor document (with the legacy-pill repair pass), the
// selection -> popup -> modal -> insert workflow, and the debounced
// content/bibliography saves.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"redleaf/api/internal/citation"
	"redleaf/api/internal/client"
	"redleaf/api/internal/doctree"
	"redleaf/api/internal/frame"
)

// api is the slice of the HTTP client the workbench needs.
type api interface {
	DocumentTypes(ctx context.Context, ids []string) (map[string]citation.SourceType, error)
	CreateCitation(ctx context.Context, reportID string, input client.CitationInput) (client.CitationResult, error)
	ReportContent(ctx context.Context, reportID string) (json.RawMessage, error)
	SaveReportContent(ctx context.Context, reportID string, content json.RawMessage) error
}

// Popup is the transient "cite" affordance offered at the selection's screen
// coordinates.
type Popup struct {
	X float64
	Y float64
}

// Modal is the citation modal's state, pre-filled from the pending selection.
type Modal struct {
	SourceDocID    string
	PageNumber     string
	QuotedText     string
	Prefix         string
	Suffix         string
	SuppressAuthor bool
}

// Workbench is the session-scoped controller for one synthesis report. All
// previously-global UI state (active popup, pending citation payload) lives
// here with an explicit lifecycle.
type Workbench struct {
	api      api
	reportID string

	doc     *doctree.Node
	pending *frame.Selection
	popup   *Popup
}

// NewWorkbench creates a workbench for one report.
func NewWorkbench(api api, reportID string) *Workbench {
	return &Workbench{api: api, reportID: reportID}
}

// Load fetches the report content, runs the legacy-pill upgrade pass, and
// installs the document. A missing or empty body yields the empty document;
// an upgrade-lookup failure is non-fatal and leaves legacy pills in place.
func (w *Workbench) Load(ctx context.Context) error {
	raw, err := w.api.ReportContent(ctx, w.reportID)
	if err != nil {
		return fmt.Errorf("load report content: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		w.doc = doctree.EmptyDoc()
		return nil
	}
	root, err := doctree.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse report content: %w", err)
	}
	upgrader := citation.Upgrader{Lookup: w.api}
	w.doc = upgrader.Run(ctx, root)
	return nil
}

// Doc exposes the current editor document.
func (w *Workbench) Doc() *doctree.Node {
	return w.doc
}

// Save persists the current document.
func (w *Workbench) Save(ctx context.Context) error {
	raw, err := doctree.Encode(w.doc)
	if err != nil {
		return fmt.Errorf("encode report content: %w", err)
	}
	return w.api.SaveReportContent(ctx, w.reportID, raw)
}

// HandleSelection records a textSelected payload from the viewer frame and
// offers the cite popup at the selection's coordinates. Any previous popup
// is replaced.
func (w *Workbench) HandleSelection(sel frame.Selection, x, y float64) {
	w.pending = &sel
	w.popup = &Popup{X: x, Y: y}
}

// ActivePopup returns the currently offered popup, or nil.
func (w *Workbench) ActivePopup() *Popup {
	return w.popup
}

// DismissPopup closes the popup without consuming the pending selection.
func (w *Workbench) DismissPopup() {
	w.popup = nil
}

// ErrNoSelection is returned when the modal is opened with no pending
// selection payload.
var ErrNoSelection = errors.New("no pending selection")

// OpenModal closes the popup and builds the modal pre-filled with the
// selected text, empty prefix/suffix, and suppression off.
func (w *Workbench) OpenModal() (Modal, error) {
	if w.pending == nil {
		return Modal{}, ErrNoSelection
	}
	w.popup = nil
	return Modal{
		SourceDocID: w.pending.SourceDocID,
		PageNumber:  w.pending.PageNumber,
		QuotedText:  w.pending.SelectedText,
	}, nil
}

// Insert persists the citation and, only after the server has acknowledged,
// inserts the quoted text (when asQuote) immediately followed by the pill
// node carrying exactly the server-returned attributes. On any failure
// nothing is inserted and the error carries the message to surface; the
// modal stays open for retry.
func (w *Workbench) Insert(ctx context.Context, modal Modal, asQuote bool) (citation.Marker, error) {
	input := client.CitationInput{
		SourceDocID:    modal.SourceDocID,
		PageNumber:     modal.PageNumber,
		Prefix:         strings.TrimSpace(modal.Prefix),
		Suffix:         strings.TrimSpace(modal.Suffix),
		SuppressAuthor: modal.SuppressAuthor,
	}
	if asQuote {
		corrected := strings.TrimSpace(modal.QuotedText)
		input.CorrectedText = &corrected
	}

	result, err := w.api.CreateCitation(ctx, w.reportID, input)
	if err != nil {
		return citation.Marker{}, err
	}

	marker := citation.Marker{
		UUID:        result.UUID,
		SourceDocID: result.DataDocID,
		Locator:     modal.PageNumber,
		SourceType:  citation.SourceType(result.DataDocType),
		LabelText:   result.InTextLabel,
	}

	if asQuote && *input.CorrectedText != "" {
		w.doc.AppendChild(&doctree.Node{
			Type: doctree.KindText,
			Text: `"` + *input.CorrectedText + `" `,
		})
	}
	w.doc.AppendChild(marker.Node())
	w.pending = nil
	return marker, nil
}
