package mindmap

import (
	"fmt"
	"slices"
)

// recordState tracks the lifecycle of a node or edge slot.
//
// A record is live while it is part of the active graph. Removing it from the
// graph detaches it, but the slot stays allocated so that collapse caches and
// undo commands can reinsert it. Only release frees the slot.
type recordState uint8

const (
	stateFree recordState = iota
	stateLive
	stateDetached
)

type nodeRecord struct {
	gen   uint32
	state recordState
	text  string

	// Live incident edges, ordered by edge creation sequence.
	out []EdgeID
	in  []EdgeID
}

type edgeRecord struct {
	gen    uint32
	state  recordState
	seq    uint64 // creation order; keeps sibling order stable across reinsertion
	source NodeID
	target NodeID
	kind   EdgeKind
}

// graphOp is a primitive edit recorded by the store journal.
type graphOp uint8

const (
	opCreateNode graphOp = iota
	opCreateEdge
	opRemoveNode
	opRemoveEdge
	opReinsertNode
	opReinsertEdge
	opSetText
)

// graphEdit is one entry of the low-level graph-edit log.
type graphEdit struct {
	op      graphOp
	node    NodeID
	edge    EdgeID
	oldText string
	newText string
}

// graphStore owns nodes and edges by handle.
// It knows nothing about roots, sides or collapse state.
type graphStore struct {
	nodes     []nodeRecord
	edges     []edgeRecord
	freeNodes []uint32
	freeEdges []uint32

	nextSeq   uint64
	liveNodes int
	liveEdges int

	// journal receives every primitive edit while a transaction records.
	journal *[]graphEdit
}

func newGraphStore() *graphStore {
	return &graphStore{nextSeq: 1}
}

func (s *graphStore) record(edit graphEdit) {
	if s.journal != nil {
		*s.journal = append(*s.journal, edit)
	}
}

// node returns the allocated record for n, or nil if n is stale or free.
func (s *graphStore) node(n NodeID) *nodeRecord {
	if n.IsZero() || int(n.slot) >= len(s.nodes) {
		return nil
	}
	rec := &s.nodes[n.slot]
	if rec.gen != n.gen || rec.state == stateFree {
		return nil
	}
	return rec
}

// edge returns the allocated record for e, or nil if e is stale or free.
func (s *graphStore) edge(e EdgeID) *edgeRecord {
	if e.IsZero() || int(e.slot) >= len(s.edges) {
		return nil
	}
	rec := &s.edges[e.slot]
	if rec.gen != e.gen || rec.state == stateFree {
		return nil
	}
	return rec
}

// containsNode reports whether n is live.
func (s *graphStore) containsNode(n NodeID) bool {
	rec := s.node(n)
	return rec != nil && rec.state == stateLive
}

// containsEdge reports whether e is live.
func (s *graphStore) containsEdge(e EdgeID) bool {
	rec := s.edge(e)
	return rec != nil && rec.state == stateLive
}

// createNode allocates a new live node.
func (s *graphStore) createNode(text string) NodeID {
	var id NodeID
	if k := len(s.freeNodes); k > 0 {
		slot := s.freeNodes[k-1]
		s.freeNodes = s.freeNodes[:k-1]
		rec := &s.nodes[slot]
		rec.state = stateLive
		rec.text = text
		id = NodeID{slot: slot, gen: rec.gen}
	} else {
		s.nodes = append(s.nodes, nodeRecord{gen: 1, state: stateLive, text: text})
		id = NodeID{slot: uint32(len(s.nodes) - 1), gen: 1}
	}
	s.liveNodes++
	s.record(graphEdit{op: opCreateNode, node: id})
	return id
}

// createEdge allocates a new live edge between two live nodes.
func (s *graphStore) createEdge(source, target NodeID, kind EdgeKind) (EdgeID, error) {
	if !s.containsNode(source) {
		return EdgeID{}, fmt.Errorf("%w: edge source %v", ErrInvalidHandle, source)
	}
	if !s.containsNode(target) {
		return EdgeID{}, fmt.Errorf("%w: edge target %v", ErrInvalidHandle, target)
	}

	rec := edgeRecord{
		state:  stateLive,
		seq:    s.nextSeq,
		source: source,
		target: target,
		kind:   kind,
	}
	s.nextSeq++

	var id EdgeID
	if k := len(s.freeEdges); k > 0 {
		slot := s.freeEdges[k-1]
		s.freeEdges = s.freeEdges[:k-1]
		rec.gen = s.edges[slot].gen
		s.edges[slot] = rec
		id = EdgeID{slot: slot, gen: rec.gen}
	} else {
		rec.gen = 1
		s.edges = append(s.edges, rec)
		id = EdgeID{slot: uint32(len(s.edges) - 1), gen: 1}
	}

	s.link(id)
	s.record(graphEdit{op: opCreateEdge, edge: id})
	return id, nil
}

// removeEdge takes a live edge out of the graph without deallocating it.
func (s *graphStore) removeEdge(e EdgeID) error {
	if !s.containsEdge(e) {
		return fmt.Errorf("%w: remove edge %v", ErrInvalidHandle, e)
	}
	s.unlink(e)
	s.record(graphEdit{op: opRemoveEdge, edge: e})
	return nil
}

// removeNode takes a live node out of the graph without deallocating it.
// The node must not have live incident edges.
func (s *graphStore) removeNode(n NodeID) error {
	rec := s.node(n)
	if rec == nil || rec.state != stateLive {
		return fmt.Errorf("%w: remove node %v", ErrInvalidHandle, n)
	}
	if len(rec.out) > 0 || len(rec.in) > 0 {
		return fmt.Errorf("%w: node %v still has %d live incident edges",
			ErrInternal, n, len(rec.out)+len(rec.in))
	}
	rec.state = stateDetached
	s.liveNodes--
	s.record(graphEdit{op: opRemoveNode, node: n})
	return nil
}

// reinsertNode puts a detached node back into the graph.
func (s *graphStore) reinsertNode(n NodeID) error {
	rec := s.node(n)
	if rec == nil || rec.state != stateDetached {
		return fmt.Errorf("%w: reinsert node %v", ErrInvalidHandle, n)
	}
	rec.state = stateLive
	s.liveNodes++
	s.record(graphEdit{op: opReinsertNode, node: n})
	return nil
}

// reinsertEdge puts a detached edge back into the graph.
// Both endpoints must be live.
func (s *graphStore) reinsertEdge(e EdgeID) error {
	rec := s.edge(e)
	if rec == nil || rec.state != stateDetached {
		return fmt.Errorf("%w: reinsert edge %v", ErrInvalidHandle, e)
	}
	if !s.containsNode(rec.source) || !s.containsNode(rec.target) {
		return fmt.Errorf("%w: reinsert edge %v with hidden endpoint", ErrInternal, e)
	}
	s.link(e)
	s.record(graphEdit{op: opReinsertEdge, edge: e})
	return nil
}

// setText replaces a node's label.
func (s *graphStore) setText(n NodeID, text string) error {
	rec := s.node(n)
	if rec == nil {
		return fmt.Errorf("%w: set text on %v", ErrInvalidHandle, n)
	}
	old := rec.text
	rec.text = text
	s.record(graphEdit{op: opSetText, node: n, oldText: old, newText: text})
	return nil
}

// releaseNode deallocates a detached node. The slot may be reused with a
// new generation afterwards.
func (s *graphStore) releaseNode(n NodeID) bool {
	rec := s.node(n)
	if rec == nil || rec.state != stateDetached {
		return false
	}
	rec.state = stateFree
	rec.text = ""
	rec.out = nil
	rec.in = nil
	rec.gen++
	s.freeNodes = append(s.freeNodes, n.slot)
	return true
}

// releaseEdge deallocates a detached edge.
func (s *graphStore) releaseEdge(e EdgeID) bool {
	rec := s.edge(e)
	if rec == nil || rec.state != stateDetached {
		return false
	}
	rec.state = stateFree
	rec.gen++
	s.freeEdges = append(s.freeEdges, e.slot)
	return true
}

// link attaches e to its endpoints' incidence lists and marks it live.
func (s *graphStore) link(e EdgeID) {
	rec := &s.edges[e.slot]
	rec.state = stateLive
	src := &s.nodes[rec.source.slot]
	dst := &s.nodes[rec.target.slot]
	src.out = s.insertOrdered(src.out, e)
	dst.in = s.insertOrdered(dst.in, e)
	s.liveEdges++
}

// unlink detaches e from its endpoints' incidence lists.
func (s *graphStore) unlink(e EdgeID) {
	rec := &s.edges[e.slot]
	rec.state = stateDetached
	src := &s.nodes[rec.source.slot]
	dst := &s.nodes[rec.target.slot]
	if i := slices.Index(src.out, e); i >= 0 {
		src.out = slices.Delete(src.out, i, i+1)
	}
	if i := slices.Index(dst.in, e); i >= 0 {
		dst.in = slices.Delete(dst.in, i, i+1)
	}
	s.liveEdges--
}

func (s *graphStore) insertOrdered(list []EdgeID, e EdgeID) []EdgeID {
	seq := s.edges[e.slot].seq
	i, _ := slices.BinarySearchFunc(list, seq, func(x EdgeID, target uint64) int {
		xs := s.edges[x.slot].seq
		switch {
		case xs < target:
			return -1
		case xs > target:
			return 1
		}
		return 0
	})
	return slices.Insert(list, i, e)
}

// seq returns the creation sequence of an allocated edge.
func (s *graphStore) seq(e EdgeID) uint64 {
	if rec := s.edge(e); rec != nil {
		return rec.seq
	}
	return 0
}

// outEdges returns the live outgoing edges of n, of any kind.
func (s *graphStore) outEdges(n NodeID) []EdgeID {
	rec := s.node(n)
	if rec == nil {
		return nil
	}
	return slices.Clone(rec.out)
}

// inEdges returns the live incoming edges of n, of any kind.
func (s *graphStore) inEdges(n NodeID) []EdgeID {
	rec := s.node(n)
	if rec == nil {
		return nil
	}
	return slices.Clone(rec.in)
}

// liveNodeIDs lists live nodes in slot order.
func (s *graphStore) liveNodeIDs() []NodeID {
	ids := make([]NodeID, 0, s.liveNodes)
	for i := range s.nodes {
		if s.nodes[i].state == stateLive {
			ids = append(ids, NodeID{slot: uint32(i), gen: s.nodes[i].gen})
		}
	}
	return ids
}

// liveEdgeIDs lists live edges in creation order.
func (s *graphStore) liveEdgeIDs() []EdgeID {
	ids := make([]EdgeID, 0, s.liveEdges)
	for i := range s.edges {
		if s.edges[i].state == stateLive {
			ids = append(ids, EdgeID{slot: uint32(i), gen: s.edges[i].gen})
		}
	}
	s.sortBySeq(ids)
	return ids
}

func (s *graphStore) sortBySeq(ids []EdgeID) {
	slices.SortFunc(ids, func(a, b EdgeID) int {
		sa, sb := s.seq(a), s.seq(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	})
}

// replay applies a journal entry forwards (redo) or backwards (undo).
// Replay is never journaled.
func (s *graphStore) replay(edit graphEdit, forward bool) error {
	saved := s.journal
	s.journal = nil
	defer func() { s.journal = saved }()

	switch edit.op {
	case opCreateNode, opReinsertNode:
		if forward {
			return s.reinsertNode(edit.node)
		}
		return s.removeNode(edit.node)

	case opRemoveNode:
		if forward {
			return s.removeNode(edit.node)
		}
		return s.reinsertNode(edit.node)

	case opCreateEdge, opReinsertEdge:
		if forward {
			return s.reinsertEdge(edit.edge)
		}
		return s.removeEdge(edit.edge)

	case opRemoveEdge:
		if forward {
			return s.removeEdge(edit.edge)
		}
		return s.reinsertEdge(edit.edge)

	case opSetText:
		if forward {
			return s.setText(edit.node, edit.newText)
		}
		return s.setText(edit.node, edit.oldText)
	}
	return fmt.Errorf("%w: unknown graph op %d", ErrInternal, edit.op)
}
