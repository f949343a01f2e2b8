package doctree

import (
	"encoding/json"
	"testing"
)

func TestParseEncodeRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hi","marks":[{"type":"bold"}]}]}]}`)
	root, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if root.Type != KindDoc || len(root.Content) != 1 {
		t.Fatalf("unexpected root: %+v", root)
	}
	text := root.Content[0].Content[0]
	if text.Text != "hi" || len(text.Marks) != 1 || text.Marks[0].Type != "bold" {
		t.Fatalf("unexpected text node: %+v", text)
	}

	encoded, err := Encode(root)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	reparsed, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse(Encode()) error = %v", err)
	}
	if reparsed.Content[0].Content[0].Text != "hi" {
		t.Fatal("round trip lost text")
	}
}

func TestWalkVisitsEveryNestedChild(t *testing.T) {
	raw := []byte(`{
		"type":"doc",
		"content":[
			{"type":"paragraph","content":[
				{"type":"text","text":"a"},
				{"type":"citationPill","attrs":{"data-doc-id":"1"}}
			]},
			{"type":"blockquote","content":[
				{"type":"paragraph","content":[
					{"type":"citationPill","attrs":{"data-doc-id":"2"}}
				]}
			]}
		]
	}`)
	root, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var pills []string
	total := 0
	Walk(root, func(n *Node) bool {
		total++
		if n.Type == KindCitationPill {
			pills = append(pills, n.StringAttr("data-doc-id"))
		}
		return true
	})
	if total != 7 {
		t.Fatalf("visited %d nodes, want 7", total)
	}
	if len(pills) != 2 {
		t.Fatalf("found %d pills, want 2", len(pills))
	}
}

func TestWalkStopDescent(t *testing.T) {
	root := &Node{Type: KindDoc, Content: []*Node{
		{Type: "blockquote", Content: []*Node{{Type: KindText, Text: "hidden"}}},
		{Type: KindParagraph},
	}}

	var visited []string
	Walk(root, func(n *Node) bool {
		visited = append(visited, n.Type)
		return n.Type != "blockquote"
	})
	for _, typ := range visited {
		if typ == KindText {
			t.Fatal("descended into a pruned subtree")
		}
	}
	if visited[len(visited)-1] != KindParagraph {
		t.Fatalf("siblings after pruned node not visited: %v", visited)
	}
}

func TestWalkNilRoot(t *testing.T) {
	Walk(nil, func(*Node) bool {
		t.Fatal("fn called for nil root")
		return true
	})
}

func TestStringAttrTolerance(t *testing.T) {
	var n *Node
	if n.StringAttr("x") != "" {
		t.Fatal("nil node should read as empty")
	}
	n = &Node{Type: KindCitationPill}
	if n.StringAttr("x") != "" {
		t.Fatal("missing attrs map should read as empty")
	}
	n.SetAttr("x", 42)
	if n.StringAttr("x") != "" {
		t.Fatal("non-string attr should read as empty")
	}
	n.SetAttr("x", "y")
	if n.StringAttr("x") != "y" {
		t.Fatal("string attr lost")
	}
}

func TestEmptyDocShape(t *testing.T) {
	encoded, err := Encode(EmptyDoc())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != "doc" {
		t.Fatalf("type = %v", decoded["type"])
	}
	content, ok := decoded["content"].([]any)
	if !ok || len(content) != 1 {
		t.Fatalf("content = %v", decoded["content"])
	}
}
