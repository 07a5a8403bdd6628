package mindmap

import (
	"fmt"
	"slices"
)

// Root returns the root item.
func (d *Document) Root() NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vm.getRoot()
}

// IsRoot reports whether n is the root item.
func (d *Document) IsRoot(n NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vm.isRoot(n)
}

// Side returns the side of n. The root and unknown nodes report SideUnset.
func (d *Document) Side(n NodeID) Side {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vm.getSide(n)
}

// IsCollapsed reports whether n currently hides a subtree.
func (d *Document) IsCollapsed(n NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vm.isCollapsed(n)
}

// IsCrossReference reports whether e is an allocated cross-reference edge,
// live or hidden.
func (d *Document) IsCrossReference(e EdgeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.store.edge(e)
	return rec != nil && rec.kind == CrossReference
}

// ContainsNode reports whether n is in the live graph.
func (d *Document) ContainsNode(n NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.containsNode(n)
}

// ContainsEdge reports whether e is in the live graph.
func (d *Document) ContainsEdge(e EdgeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.containsEdge(e)
}

// Nodes lists the live nodes.
func (d *Document) Nodes() []NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.liveNodeIDs()
}

// Edges lists the live edges in creation order.
func (d *Document) Edges() []EdgeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.liveEdgeIDs()
}

// NodeCount returns the number of live nodes.
func (d *Document) NodeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.liveNodes
}

// EdgeCount returns the number of live edges.
func (d *Document) EdgeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.liveEdges
}

// Children returns the live tree children of n in insertion order.
func (d *Document) Children(n NodeID) []NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.children(n)
}

// Parent returns the tree parent of a live non-root node.
func (d *Document) Parent(n NodeID) (NodeID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.parentEdge(n)
	if !ok {
		return NodeID{}, false
	}
	return d.store.edges[e.slot].source, true
}

// OutEdges returns the live outgoing edges of n, of any kind.
func (d *Document) OutEdges(n NodeID) []EdgeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.outEdges(n)
}

// InEdges returns the live incoming edges of n, of any kind.
func (d *Document) InEdges(n NodeID) []EdgeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.inEdges(n)
}

// Edge describes an allocated edge, live or hidden.
func (d *Document) Edge(e EdgeID) (EdgeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.store.edge(e)
	if rec == nil {
		return EdgeInfo{}, fmt.Errorf("%w: %v", ErrInvalidHandle, e)
	}
	return EdgeInfo{ID: e, Source: rec.source, Target: rec.target, Kind: rec.kind}, nil
}

// Text returns the label of an allocated node, live or hidden.
func (d *Document) Text(n NodeID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.store.node(n)
	if rec == nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHandle, n)
	}
	return rec.text, nil
}

// HiddenEdges returns the tree edges hidden by collapsing n, in the
// pre-order they were collected. Nil if n is not collapsed.
func (d *Document) HiddenEdges(n NodeID) []EdgeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.vm.hiddenEdgesOf(n))
}

// HiddenCrossReferences returns the cross-references hidden by collapses,
// in creation order.
func (d *Document) HiddenCrossReferences() []EdgeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hiddenCrossReferences()
}

// SetAttachment stores opaque layout data for n. It is dropped when the
// node's slot is released.
func (d *Document) SetAttachment(n NodeID, v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store.node(n) == nil {
		return fmt.Errorf("%w: %v", ErrInvalidHandle, n)
	}
	if v == nil {
		delete(d.attachments, n)
		return nil
	}
	d.attachments[n] = v
	return nil
}

// Attachment returns the layout data stored for n.
func (d *Document) Attachment(n NodeID) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.attachments[n]
	return v, ok
}

// Caller must hold d.mu for everything below.

func (d *Document) children(n NodeID) []NodeID {
	var kids []NodeID
	for _, e := range d.store.outEdges(n) {
		rec := &d.store.edges[e.slot]
		if rec.kind == TreeEdge {
			kids = append(kids, rec.target)
		}
	}
	return kids
}

// parentEdge returns the live incoming tree edge of n.
func (d *Document) parentEdge(n NodeID) (EdgeID, bool) {
	for _, e := range d.store.inEdges(n) {
		if d.store.edges[e.slot].kind == TreeEdge {
			return e, true
		}
	}
	return EdgeID{}, false
}

func (d *Document) hiddenCrossReferences() []EdgeID {
	refs := d.vm.iterateHiddenCrossReferences()
	d.store.sortBySeq(refs)
	return refs
}
