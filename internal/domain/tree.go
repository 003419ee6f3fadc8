package domain

import "sort"

// MetadataTree is an immutable snapshot of the library forest, mapping IDs to
// metadata. It is rebuilt wholesale on every successful sync and never patched
// in place, so readers holding a reference always see a consistent tree.
type MetadataTree struct {
	nodes       map[string]DocumentMeta
	children    map[string][]string
	fingerprint StateFingerprint

	// Partial is set when some subtrees could not be fetched after retries.
	// The tree is still usable; the missing nodes simply do not exist in it.
	Partial bool

	// Dropped counts nodes excluded during validation (orphans, cycle
	// members, trashed items).
	Dropped int
}

// BuildTree validates a flat listing into a tree snapshot.
//
// Nodes whose parent chain does not terminate at the root are dropped rather
// than failing the build: orphans (missing parent), members of parent-link
// cycles, and anything under the trash. The caller can inspect Dropped to log
// a tree-inconsistency warning.
func BuildTree(items []DocumentMeta, fingerprint StateFingerprint) *MetadataTree {
	byID := make(map[string]DocumentMeta, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	t := &MetadataTree{
		nodes:       make(map[string]DocumentMeta, len(items)),
		children:    make(map[string][]string),
		fingerprint: fingerprint,
	}

	// resolved caches reachability decisions per ID: true = chain reaches
	// the root, false = orphaned, cyclic, or trashed.
	resolved := make(map[string]bool, len(items))

	var reachesRoot func(id string, walking map[string]bool) bool
	reachesRoot = func(id string, walking map[string]bool) bool {
		if ok, seen := resolved[id]; seen {
			return ok
		}
		if walking[id] {
			// Cycle: every member of the walk is unreachable.
			resolved[id] = false
			return false
		}
		node, ok := byID[id]
		if !ok {
			resolved[id] = false
			return false
		}
		if node.ParentID == TrashID {
			resolved[id] = false
			return false
		}
		if node.ParentID == "" {
			resolved[id] = true
			return true
		}
		walking[id] = true
		ok = reachesRoot(node.ParentID, walking)
		delete(walking, id)
		resolved[id] = ok
		return ok
	}

	for _, it := range items {
		if reachesRoot(it.ID, map[string]bool{}) {
			t.nodes[it.ID] = it
			t.children[it.ParentID] = append(t.children[it.ParentID], it.ID)
		} else {
			t.Dropped++
		}
	}

	for _, ids := range t.children {
		sort.Strings(ids)
	}
	return t
}

// Fingerprint returns the remote state token this snapshot was built from.
func (t *MetadataTree) Fingerprint() StateFingerprint {
	return t.fingerprint
}

// Lookup returns the metadata for an ID, if the node is part of the tree.
func (t *MetadataTree) Lookup(id string) (DocumentMeta, bool) {
	m, ok := t.nodes[id]
	return m, ok
}

// Children returns the IDs directly under a parent ("" = library root),
// in stable order.
func (t *MetadataTree) Children(parentID string) []DocumentMeta {
	ids := t.children[parentID]
	out := make([]DocumentMeta, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[id])
	}
	return out
}

// All returns every node in the tree in unspecified order.
func (t *MetadataTree) All() []DocumentMeta {
	out := make([]DocumentMeta, 0, len(t.nodes))
	for _, m := range t.nodes {
		out = append(out, m)
	}
	return out
}

// Len reports the number of live nodes.
func (t *MetadataTree) Len() int {
	return len(t.nodes)
}
