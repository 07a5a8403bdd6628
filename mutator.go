package mindmap

import (
	"fmt"
	"log/slog"
	"slices"
)

// AddNode creates a child of parent labelled text and returns it.
//
// A collapsed parent is expanded first so the new child is visible. Under
// the root, SideUnset picks the side with fewer children (ties go left);
// under any other parent the child takes the parent's side.
func (d *Document) AddNode(parent NodeID, text string, side Side) (NodeID, error) {
	var child NodeID
	err := d.mutate("add node", func() error {
		var err error
		child, err = d.addNode(parent, text, side)
		return err
	})
	return child, err
}

// AddSibling adds a node next to target: under target's parent on target's
// side, or under target itself when target is the root.
func (d *Document) AddSibling(target NodeID, text string) (NodeID, error) {
	var sibling NodeID
	err := d.mutate("add sibling", func() error {
		if !d.store.containsNode(target) {
			return fmt.Errorf("%w: sibling of %v", ErrInvalidHandle, target)
		}
		var err error
		if d.vm.isRoot(target) {
			sibling, err = d.addNode(target, text, SideUnset)
			return err
		}
		pe, ok := d.parentEdge(target)
		if !ok {
			return fmt.Errorf("%w: %v has no parent", ErrInternal, target)
		}
		sibling, err = d.addNode(d.store.edges[pe.slot].source, text, d.vm.getSide(target))
		return err
	})
	return sibling, err
}

// RemoveSubtree deletes n together with its descendants, including those
// hidden by collapses, and every cross-reference touching them.
func (d *Document) RemoveSubtree(n NodeID) error {
	return d.mutate("remove subtree", func() error {
		return d.removeSubtree(n)
	})
}

// CollapseNode hides the tree descendants of n. Returns ErrAlreadyCollapsed
// (a benign no-op) if n is collapsed; collapsing a leaf does nothing.
func (d *Document) CollapseNode(n NodeID) error {
	return d.mutate("collapse", func() error {
		return d.collapseNode(n)
	})
}

// ExpandNode restores the subtree hidden by collapsing n. Returns
// ErrNotCollapsed (a benign no-op) if n is not collapsed.
func (d *Document) ExpandNode(n NodeID) error {
	return d.mutate("expand", func() error {
		return d.expandNode(n)
	})
}

// ToggleCollapseState expands a collapsed node and collapses any other.
func (d *Document) ToggleCollapseState(n NodeID) error {
	return d.mutate("toggle collapse", func() error {
		if d.vm.isCollapsed(n) {
			return d.expandNode(n)
		}
		return d.collapseNode(n)
	})
}

// SetSideRecursive assigns side to n and its whole live subtree. Only a
// root child can change sides; deeper nodes accept their branch's side.
func (d *Document) SetSideRecursive(n NodeID, side Side) error {
	return d.mutate("set side", func() error {
		if !d.store.containsNode(n) {
			return fmt.Errorf("%w: set side of %v", ErrInvalidHandle, n)
		}
		if d.vm.isRoot(n) {
			return fmt.Errorf("%w: the root has no side", ErrInvalidSide)
		}
		if side != SideLeft && side != SideRight {
			return fmt.Errorf("%w: %v", ErrInvalidSide, side)
		}
		// Below a root child the side is the branch's side.
		if pe, ok := d.parentEdge(n); ok {
			parent := d.store.edges[pe.slot].source
			if !d.vm.isRoot(parent) && d.vm.getSide(parent) != side {
				return fmt.Errorf("%w: %v child of a %v node", ErrInvalidSide, side, d.vm.getSide(parent))
			}
		}
		d.propagateSide(n, side)
		return nil
	})
}

// Reparent moves n (with its subtree) under newParent.
func (d *Document) Reparent(n, newParent NodeID) error {
	return d.mutate("reparent", func() error {
		return d.reparent(n, newParent)
	})
}

// AddCrossReference creates a cross-reference edge from source to target.
func (d *Document) AddCrossReference(source, target NodeID) (EdgeID, error) {
	var e EdgeID
	err := d.mutate("add cross-reference", func() error {
		if !d.store.containsNode(source) {
			return fmt.Errorf("%w: cross-reference source %v", ErrInvalidHandle, source)
		}
		if !d.store.containsNode(target) {
			return fmt.Errorf("%w: cross-reference target %v", ErrInvalidHandle, target)
		}
		if source == target {
			return fmt.Errorf("%w: %v", ErrSelfReference, source)
		}
		var err error
		e, err = d.store.createEdge(source, target, CrossReference)
		return err
	})
	return e, err
}

// RemoveCrossReference deletes a live cross-reference edge.
func (d *Document) RemoveCrossReference(e EdgeID) error {
	return d.mutate("remove cross-reference", func() error {
		if !d.store.containsEdge(e) {
			return fmt.Errorf("%w: %v", ErrInvalidHandle, e)
		}
		if d.store.edges[e.slot].kind != CrossReference {
			return fmt.Errorf("%w: %v", ErrNotCrossReference, e)
		}
		if err := d.store.removeEdge(e); err != nil {
			return err
		}
		d.markDeleted(nil, []EdgeID{e})
		return nil
	})
}

// SetText relabels a live node.
func (d *Document) SetText(n NodeID, text string) error {
	return d.mutate("set text", func() error {
		if !d.store.containsNode(n) {
			return fmt.Errorf("%w: set text on %v", ErrInvalidHandle, n)
		}
		return d.store.setText(n, text)
	})
}

// SetRoot designates n as the root item. n must be live, have no parent
// and reach every live node through tree edges. Load uses the same path
// once a snapshot's tree edges are rebuilt.
//
// Only the root designation is recorded: undo restores the old root and
// redo the new one, nothing else is replayed.
func (d *Document) SetRoot(n NodeID) error {
	return d.mutate("set root", func() error {
		return d.setRoot(n)
	})
}

// Reset empties the document and starts over with a new root item.
// The old content comes back on undo.
func (d *Document) Reset(rootText string) (NodeID, error) {
	var root NodeID
	err := d.mutate("new document", func() error {
		var err error
		root, err = d.reset(rootText)
		return err
	})
	return root, err
}

// Caller must hold d.mu and an open transaction for everything below.

func (d *Document) addNode(parent NodeID, text string, side Side) (NodeID, error) {
	if !d.store.containsNode(parent) {
		return NodeID{}, fmt.Errorf("%w: %v", ErrInvalidParent, parent)
	}
	if !d.vm.isRoot(parent) && side != SideUnset && side != d.vm.getSide(parent) {
		return NodeID{}, fmt.Errorf("%w: %v child of a %v node", ErrInvalidSide, side, d.vm.getSide(parent))
	}
	if d.vm.isCollapsed(parent) {
		if err := d.expandNode(parent); err != nil {
			return NodeID{}, err
		}
	}

	switch {
	case !d.vm.isRoot(parent):
		side = d.vm.getSide(parent)
	case side == SideUnset:
		side = d.balancedSide()
	}

	child := d.store.createNode(text)
	if _, err := d.store.createEdge(parent, child, TreeEdge); err != nil {
		return NodeID{}, err
	}
	d.setSide(child, side)
	return child, nil
}

// balancedSide returns the side with fewer root children; ties go left.
func (d *Document) balancedSide() Side {
	var left, right int
	for _, c := range d.children(d.vm.getRoot()) {
		switch d.vm.getSide(c) {
		case SideLeft:
			left++
		case SideRight:
			right++
		}
	}
	if right < left {
		return SideRight
	}
	return SideLeft
}

func (d *Document) setSide(n NodeID, s Side) {
	if old := d.vm.getSide(n); old != s {
		d.applyModel(sideEdit{node: n, old: old, new: s})
	}
}

// propagateSide sets s on n and its live tree descendants, pre-order.
func (d *Document) propagateSide(n NodeID, s Side) {
	d.setSide(n, s)
	for _, c := range d.children(n) {
		d.propagateSide(c, s)
	}
}

// edgeSet collects edges once each, keeping first-seen order.
type edgeSet struct {
	seen  map[EdgeID]struct{}
	edges []EdgeID
}

func (s *edgeSet) add(e EdgeID) {
	if s.seen == nil {
		s.seen = make(map[EdgeID]struct{})
	}
	if _, ok := s.seen[e]; ok {
		return
	}
	s.seen[e] = struct{}{}
	s.edges = append(s.edges, e)
}

func (d *Document) collapseNode(root NodeID) error {
	if !d.store.containsNode(root) {
		return fmt.Errorf("%w: collapse %v", ErrInvalidHandle, root)
	}
	if d.vm.isCollapsed(root) {
		return fmt.Errorf("%w: %v", ErrAlreadyCollapsed, root)
	}

	var (
		nodes []NodeID
		edges []EdgeID
		refs  edgeSet
	)
	var collect func(v NodeID)
	collect = func(v NodeID) {
		for _, e := range d.store.outEdges(v) {
			rec := &d.store.edges[e.slot]
			if rec.kind == CrossReference {
				if v != root {
					refs.add(e)
				}
				continue
			}
			edges = append(edges, e)
			nodes = append(nodes, rec.target)
			for _, in := range d.store.inEdges(rec.target) {
				if d.store.edges[in.slot].kind == CrossReference {
					refs.add(in)
				}
			}
			collect(rec.target)
		}
	}
	collect(root)
	if len(edges) == 0 {
		return nil
	}

	for _, e := range refs.edges {
		if err := d.store.removeEdge(e); err != nil {
			return err
		}
	}
	for _, e := range edges {
		if err := d.store.removeEdge(e); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if err := d.store.removeNode(n); err != nil {
			return err
		}
	}
	d.applyModel(collapseEdit{cacheChange{node: root, edges: edges, refs: refs.edges}})

	if d.onCollapse != nil {
		hidden := slices.Clone(nodes)
		d.queueHook(func() { d.onCollapse(root, hidden) })
	}
	d.logger.Debug("collapsed",
		slog.String("node", root.String()),
		slog.Int("hidden_nodes", len(nodes)),
		slog.Int("hidden_cross_references", len(refs.edges)))
	return nil
}

func (d *Document) expandNode(root NodeID) error {
	if !d.store.containsNode(root) {
		return fmt.Errorf("%w: expand %v", ErrInvalidHandle, root)
	}
	edges := d.vm.popHiddenEdges(root)
	if edges == nil {
		return fmt.Errorf("%w: %v", ErrNotCollapsed, root)
	}
	d.recordModel(expandEdit{cacheChange{node: root, edges: edges}})

	var restored []NodeID
	for _, e := range edges {
		rec := d.store.edge(e)
		if rec == nil {
			return fmt.Errorf("%w: hidden edge %v was released", ErrInternal, e)
		}
		for _, n := range [2]NodeID{rec.source, rec.target} {
			if !d.store.containsNode(n) {
				if err := d.store.reinsertNode(n); err != nil {
					return err
				}
				restored = append(restored, n)
			}
		}
		if err := d.store.reinsertEdge(e); err != nil {
			return err
		}
	}

	var refs, reinsert []EdgeID
	for _, e := range d.hiddenCrossReferences() {
		rec := d.store.edge(e)
		switch {
		case rec == nil:
			continue
		case rec.state == stateLive:
			refs = append(refs, e)
		case d.store.containsNode(rec.source) && d.store.containsNode(rec.target):
			refs = append(refs, e)
			reinsert = append(reinsert, e)
		}
	}
	if len(refs) > 0 {
		d.applyModel(expandEdit{cacheChange{refs: refs}})
	}
	for _, e := range reinsert {
		if err := d.store.reinsertEdge(e); err != nil {
			return err
		}
	}

	// The node may have changed sides while collapsed.
	if !d.vm.isRoot(root) {
		d.propagateSide(root, d.vm.getSide(root))
	}

	if d.onExpand != nil {
		d.queueHook(func() { d.onExpand(root, restored) })
	}
	d.logger.Debug("expanded",
		slog.String("node", root.String()),
		slog.Int("restored_nodes", len(restored)),
		slog.Int("restored_cross_references", len(reinsert)))
	return nil
}

func (d *Document) removeSubtree(n NodeID) error {
	if d.vm.isRoot(n) {
		return ErrCannotRemoveRoot
	}
	if !d.store.containsNode(n) {
		return fmt.Errorf("%w: remove %v", ErrInvalidHandle, n)
	}

	// Classify everything first: removeNode rejects nodes with live edges.
	var (
		inSubtree   = make(map[NodeID]bool)
		liveNodes   []NodeID
		liveTree    []EdgeID
		liveRefs    edgeSet
		hiddenNodes []NodeID
		hiddenTree  []EdgeID
		caches      []cacheChange
	)
	var walkHidden func(owner NodeID)
	walkHidden = func(owner NodeID) {
		edges := d.vm.hiddenEdgesOf(owner)
		if len(edges) == 0 {
			return
		}
		caches = append(caches, cacheChange{node: owner, edges: slices.Clone(edges)})
		for _, e := range edges {
			hiddenTree = append(hiddenTree, e)
			t := d.store.edges[e.slot].target
			if !inSubtree[t] {
				inSubtree[t] = true
				hiddenNodes = append(hiddenNodes, t)
				walkHidden(t)
			}
		}
	}
	var walk func(v NodeID)
	walk = func(v NodeID) {
		inSubtree[v] = true
		liveNodes = append(liveNodes, v)
		for _, e := range d.store.inEdges(v) {
			if d.store.edges[e.slot].kind == CrossReference {
				liveRefs.add(e)
			}
		}
		for _, e := range d.store.outEdges(v) {
			rec := &d.store.edges[e.slot]
			if rec.kind == CrossReference {
				liveRefs.add(e)
				continue
			}
			liveTree = append(liveTree, e)
			walk(rec.target)
		}
		walkHidden(v)
	}
	walk(n)

	var hiddenRefs []EdgeID
	for _, e := range d.hiddenCrossReferences() {
		rec := d.store.edges[e.slot]
		if inSubtree[rec.source] || inSubtree[rec.target] {
			hiddenRefs = append(hiddenRefs, e)
		}
	}

	pe, hasParent := d.parentEdge(n)
	if !hasParent {
		return fmt.Errorf("%w: %v has no parent", ErrInternal, n)
	}

	for _, e := range liveRefs.edges {
		if err := d.store.removeEdge(e); err != nil {
			return err
		}
	}
	if err := d.store.removeEdge(pe); err != nil {
		return err
	}
	for _, e := range liveTree {
		if err := d.store.removeEdge(e); err != nil {
			return err
		}
	}
	for _, v := range liveNodes {
		if err := d.store.removeNode(v); err != nil {
			return err
		}
	}
	for _, c := range caches {
		d.applyModel(discardEdit{c})
	}
	if len(hiddenRefs) > 0 {
		d.applyModel(discardEdit{cacheChange{refs: hiddenRefs}})
	}

	deletedEdges := slices.Concat(liveRefs.edges, []EdgeID{pe}, liveTree, hiddenTree, hiddenRefs)
	d.markDeleted(slices.Concat(liveNodes, hiddenNodes), deletedEdges)

	d.logger.Debug("removed subtree",
		slog.String("node", n.String()),
		slog.Int("nodes", len(liveNodes)+len(hiddenNodes)),
		slog.Int("edges", len(deletedEdges)))
	return nil
}

func (d *Document) reparent(n, newParent NodeID) error {
	if !d.store.containsNode(n) {
		return fmt.Errorf("%w: reparent %v", ErrInvalidHandle, n)
	}
	if d.vm.isRoot(n) {
		return ErrCannotMoveRoot
	}
	if !d.store.containsNode(newParent) {
		return fmt.Errorf("%w: %v", ErrInvalidParent, newParent)
	}

	// newParent must not be n or one of its descendants.
	for v := newParent; ; {
		if v == n {
			return fmt.Errorf("%w: %v under %v", ErrWouldCreateCycle, n, newParent)
		}
		pe, ok := d.parentEdge(v)
		if !ok {
			break
		}
		v = d.store.edges[pe.slot].source
	}

	old, ok := d.parentEdge(n)
	if !ok {
		return fmt.Errorf("%w: %v has no parent", ErrInternal, n)
	}
	if d.store.edges[old.slot].source == newParent {
		return nil
	}

	if d.vm.isCollapsed(newParent) {
		if err := d.expandNode(newParent); err != nil {
			return err
		}
	}
	if err := d.store.removeEdge(old); err != nil {
		return err
	}
	d.markDeleted(nil, []EdgeID{old})
	if _, err := d.store.createEdge(newParent, n, TreeEdge); err != nil {
		return err
	}

	side := d.vm.getSide(n)
	if !d.vm.isRoot(newParent) {
		side = d.vm.getSide(newParent)
	}
	if side == SideUnset {
		side = d.balancedSide()
	}
	d.propagateSide(n, side)
	return nil
}

func (d *Document) setRoot(n NodeID) error {
	if !d.store.containsNode(n) {
		return fmt.Errorf("%w: root %v", ErrInvalidHandle, n)
	}
	old := d.vm.getRoot()
	if n == old {
		return nil
	}
	if _, ok := d.parentEdge(n); ok {
		return fmt.Errorf("%w: %v has a parent", ErrNotATree, n)
	}
	if reached := d.countReachable(n); reached != d.store.liveNodes {
		return fmt.Errorf("%w: %v reaches %d of %d live nodes",
			ErrNotATree, n, reached, d.store.liveNodes)
	}
	d.applyModel(rootEdit{old: old, new: n})
	d.setSide(n, SideUnset)
	for _, c := range d.children(n) {
		if d.vm.getSide(c) == SideUnset {
			d.propagateSide(c, d.balancedSide())
		}
	}
	return nil
}

// countReachable counts the live nodes reachable from n along tree edges.
func (d *Document) countReachable(n NodeID) int {
	count := 1
	for _, c := range d.children(n) {
		count += d.countReachable(c)
	}
	return count
}

func (d *Document) reset(rootText string) (NodeID, error) {
	if rootText == "" {
		rootText = DefaultRootText
	}

	var nodes []NodeID
	var edges []EdgeID
	for _, e := range d.store.liveEdgeIDs() {
		if err := d.store.removeEdge(e); err != nil {
			return NodeID{}, err
		}
		edges = append(edges, e)
	}
	for _, n := range d.store.liveNodeIDs() {
		if err := d.store.removeNode(n); err != nil {
			return NodeID{}, err
		}
		nodes = append(nodes, n)
	}

	owners := make([]NodeID, 0, len(d.vm.hiddenEdges))
	for n := range d.vm.hiddenEdges {
		owners = append(owners, n)
	}
	slices.SortFunc(owners, func(a, b NodeID) int { return int(a.slot) - int(b.slot) })
	for _, owner := range owners {
		hidden := slices.Clone(d.vm.hiddenEdgesOf(owner))
		for _, e := range hidden {
			edges = append(edges, e)
			nodes = append(nodes, d.store.edges[e.slot].target)
		}
		d.applyModel(discardEdit{cacheChange{node: owner, edges: hidden}})
	}
	if refs := d.hiddenCrossReferences(); len(refs) > 0 {
		edges = append(edges, refs...)
		d.applyModel(discardEdit{cacheChange{refs: refs}})
	}
	d.markDeleted(nodes, edges)

	root := d.store.createNode(rootText)
	d.applyModel(rootEdit{old: d.vm.getRoot(), new: root})
	return root, nil
}
