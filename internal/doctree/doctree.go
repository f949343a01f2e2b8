// Package doctree models the synthesis editor document as an explicit node
// tree. The editor persists its content as JSON; every operation that needs
// to inspect or rewrite embedded citation pills goes through this package
// rather than probing raw maps.
package doctree

import "encoding/json"

// Node is a single node in the editor document tree. Attrs carries the
// node-kind specific attributes (for citation pills these are the data-*
// attributes); Content holds nested children for container kinds.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a text formatting mark (bold, italic, link, ...).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node kinds this package cares about. Container kinds are anything with
// Content; the walk does not need to enumerate them.
const (
	KindDoc          = "doc"
	KindParagraph    = "paragraph"
	KindText         = "text"
	KindCitationPill = "citationPill"
)

// Parse decodes an editor document from its JSON form.
func Parse(raw []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// Encode serializes the tree back to JSON.
func Encode(root *Node) ([]byte, error) {
	return json.Marshal(root)
}

// EmptyDoc returns the minimal valid document: a doc with one empty paragraph.
func EmptyDoc() *Node {
	return &Node{Type: KindDoc, Content: []*Node{{Type: KindParagraph}}}
}

// Walk visits every node in the tree depth-first, parents before children.
// Traversal order is not part of any contract; callers that collect results
// must treat them as a set. Returning false from fn stops descent into that
// node's children (the rest of the tree is still visited).
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for _, child := range root.Content {
		Walk(child, fn)
	}
}

// StringAttr reads a string-valued attribute, tolerating absent attrs maps.
func (n *Node) StringAttr(key string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	value, _ := n.Attrs[key].(string)
	return value
}

// SetAttr writes an attribute, allocating the attrs map if needed.
func (n *Node) SetAttr(key string, value any) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]any)
	}
	n.Attrs[key] = value
}

// AppendChild appends a node to the root's top-level content. The editor
// inserts quotes and pills at the current selection; server-side we only ever
// append, so this is the one mutation the tree itself exposes.
func (n *Node) AppendChild(child *Node) {
	n.Content = append(n.Content, child)
}
