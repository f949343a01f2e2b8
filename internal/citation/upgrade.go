package citation

import (
	"context"
	"log"
	"sort"

	"redleaf/api/internal/doctree"
)

// CollectLegacyIDs walks the document and returns the source document ids of
// every legacy pill: citation-pill kind, non-empty doc id, no source type.
// The result has set semantics: no duplicates, order sorted for
// determinism. Every nested child list is visited.
func CollectLegacyIDs(root *doctree.Node) []string {
	seen := make(map[string]struct{})
	doctree.Walk(root, func(n *doctree.Node) bool {
		if n.Type == doctree.KindCitationPill {
			if id := n.StringAttr(attrDocID); id != "" && n.StringAttr(attrType) == "" {
				seen[id] = struct{}{}
			}
		}
		return true
	})
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpgradeTree rewrites every legacy pill whose doc id appears in typeMap,
// setting its source type. Pills with ids absent from the map stay legacy;
// no other node or attribute is touched. The tree is mutated in place and
// returned for convenience.
func UpgradeTree(root *doctree.Node, typeMap map[string]SourceType) *doctree.Node {
	doctree.Walk(root, func(n *doctree.Node) bool {
		if n.Type != doctree.KindCitationPill {
			return true
		}
		id := n.StringAttr(attrDocID)
		if id == "" || n.StringAttr(attrType) != "" {
			return true
		}
		if t, ok := typeMap[id]; ok {
			n.SetAttr(attrType, string(t))
		}
		return true
	})
	return root
}

// TypeLookup resolves a batch of document ids to their source types in one
// round trip. Implemented by the API client; ids absent from the result were
// unknown to the server.
type TypeLookup interface {
	DocumentTypes(ctx context.Context, ids []string) (map[string]SourceType, error)
}

// Upgrader runs the best-effort legacy repair pass on document load.
type Upgrader struct {
	Lookup TypeLookup
}

// Run collects legacy ids and, if any exist, issues one batched lookup and
// applies the results. A lookup failure leaves the tree unchanged: the
// markers stay legacy and fail closed on click. The error is logged, not
// returned; repair is never a blocking operation.
func (u Upgrader) Run(ctx context.Context, root *doctree.Node) *doctree.Node {
	ids := CollectLegacyIDs(root)
	if len(ids) == 0 {
		return root
	}
	typeMap, err := u.Lookup.DocumentTypes(ctx, ids)
	if err != nil {
		log.Printf("citation: legacy upgrade lookup failed for %d ids: %v", len(ids), err)
		return root
	}
	return UpgradeTree(root, typeMap)
}
