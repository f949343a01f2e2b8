// Package citation owns the citation-pill data model: the marker embedded in
// a synthesis document, the legacy-upgrade pass that backfills source types
// on markers created before type tracking existed, and click-to-navigate
// resolution.
package citation

import (
	"errors"
	"fmt"
	"strings"

	"redleaf/api/internal/doctree"
)

// SourceType is the resolved file type of a cited document. The set is
// closed; anything else on the wire is rejected.
type SourceType string

const (
	SourcePDF  SourceType = "PDF"
	SourceTXT  SourceType = "TXT"
	SourceHTML SourceType = "HTML"
	SourceSRT  SourceType = "SRT"
)

// ParseSourceType validates a wire value against the closed enum.
func ParseSourceType(raw string) (SourceType, error) {
	switch SourceType(strings.ToUpper(strings.TrimSpace(raw))) {
	case SourcePDF:
		return SourcePDF, nil
	case SourceTXT:
		return SourceTXT, nil
	case SourceHTML:
		return SourceHTML, nil
	case SourceSRT:
		return SourceSRT, nil
	}
	return "", fmt.Errorf("unknown source type %q", raw)
}

// Timed reports whether the locator is a cue index rather than a page number.
func (t SourceType) Timed() bool {
	return t == SourceSRT
}

// Pill attribute names, matching the editor extension's data-* schema.
const (
	attrUUID    = "data-citation-uuid"
	attrDocID   = "data-doc-id"
	attrLocator = "data-doc-page"
	attrType    = "data-doc-type"
	attrLabel   = "labelText"
)

// Marker is one citation pill. SourceType is empty on legacy markers
// persisted before the type attribute existed; such markers are not
// navigable until upgraded.
type Marker struct {
	UUID        string
	SourceDocID string
	Locator     string
	SourceType  SourceType
	LabelText   string
}

// Legacy reports whether the marker predates source-type tracking.
func (m Marker) Legacy() bool {
	return m.SourceType == ""
}

// FromNode reads a marker out of a citationPill node. Returns false if the
// node is not a pill.
func FromNode(n *doctree.Node) (Marker, bool) {
	if n == nil || n.Type != doctree.KindCitationPill {
		return Marker{}, false
	}
	return Marker{
		UUID:        n.StringAttr(attrUUID),
		SourceDocID: n.StringAttr(attrDocID),
		Locator:     n.StringAttr(attrLocator),
		SourceType:  SourceType(n.StringAttr(attrType)),
		LabelText:   n.StringAttr(attrLabel),
	}, true
}

// Node builds a fresh pill node carrying the marker's attributes.
func (m Marker) Node() *doctree.Node {
	n := &doctree.Node{Type: doctree.KindCitationPill}
	n.SetAttr(attrUUID, m.UUID)
	n.SetAttr(attrDocID, m.SourceDocID)
	n.SetAttr(attrLocator, m.Locator)
	if m.SourceType != "" {
		n.SetAttr(attrType, string(m.SourceType))
	}
	n.SetAttr(attrLabel, m.LabelText)
	return n
}

// ErrLegacyMarker is returned when a marker without a resolved source type
// is clicked for navigation. The message is fixed: the marker must be
// recreated, never guessed at.
var ErrLegacyMarker = errors.New("this citation is missing file type data; delete and re-create it to restore its functionality")

// Target is where a marker click should send the reference viewer.
type Target struct {
	DocID      string
	SourceType SourceType
	// Page is set for paged documents, Cue for timed-text ones. Exactly one
	// is meaningful, selected by SourceType.
	Page string
	Cue  string
}

// Navigate resolves a marker to its viewer target. Legacy markers fail
// closed with ErrLegacyMarker and no side effect.
func (m Marker) Navigate() (Target, error) {
	if m.Legacy() {
		return Target{}, ErrLegacyMarker
	}
	if _, err := ParseSourceType(string(m.SourceType)); err != nil {
		return Target{}, err
	}
	t := Target{DocID: m.SourceDocID, SourceType: m.SourceType}
	if m.SourceType.Timed() {
		t.Cue = m.Locator
	} else {
		t.Page = m.Locator
	}
	return t, nil
}
