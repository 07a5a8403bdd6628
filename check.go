package mindmap

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies the structural invariants of the document and
// returns every violation found, each wrapping ErrInternal.
//
// Checked: the live tree edges form a tree rooted at the root item, every
// live non-root node has a side shared with its parent (root children
// excepted), collapse caches hold only detached records, and a
// cross-reference is live only when both endpoints are.
func (d *Document) CheckInvariants() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkInvariants()
}

func (d *Document) checkInvariants() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInternal}, args...)...))
	}

	root := d.vm.getRoot()
	if !d.store.containsNode(root) {
		fail("root %v is not live", root)
		return errors.Join(errs...)
	}

	// Tree shape and sides.
	visited := make(map[NodeID]bool, d.store.liveNodes)
	var walk func(v NodeID)
	walk = func(v NodeID) {
		visited[v] = true
		for _, c := range d.children(v) {
			if visited[c] {
				fail("%v reached twice", c)
				continue
			}
			side := d.vm.getSide(c)
			switch {
			case side == SideUnset:
				fail("%v has no side", c)
			case v != root && side != d.vm.getSide(v):
				fail("%v is %v but its parent %v is %v", c, side, v, d.vm.getSide(v))
			}
			walk(c)
		}
	}
	walk(root)

	for _, n := range d.store.liveNodeIDs() {
		var parents int
		for _, e := range d.store.inEdges(n) {
			if d.store.edges[e.slot].kind == TreeEdge {
				parents++
			}
		}
		switch {
		case n == root && parents != 0:
			fail("root %v has %d parents", n, parents)
		case n != root && parents != 1:
			fail("%v has %d parents", n, parents)
		}
		if !visited[n] {
			fail("%v is not reachable from the root", n)
		}
		if d.vm.isCollapsed(n) && len(d.children(n)) > 0 {
			fail("collapsed %v has live children", n)
		}
	}

	// Collapse caches.
	for owner, edges := range d.vm.hiddenEdges {
		if d.store.node(owner) == nil {
			fail("collapse cache of released node %v", owner)
			continue
		}
		for _, e := range edges {
			rec := d.store.edge(e)
			switch {
			case rec == nil:
				fail("cache of %v holds released edge %v", owner, e)
			case rec.state == stateLive:
				fail("cache of %v holds live edge %v", owner, e)
			case rec.kind != TreeEdge:
				fail("cache of %v holds cross-reference %v", owner, e)
			case d.store.containsNode(rec.target):
				fail("cache of %v hides live node %v", owner, rec.target)
			}
		}
	}

	// Cross-references.
	for _, e := range d.store.liveEdgeIDs() {
		rec := d.store.edges[e.slot]
		if !d.store.containsNode(rec.source) || !d.store.containsNode(rec.target) {
			fail("live edge %v has a hidden endpoint", e)
		}
		if rec.kind == CrossReference && d.vm.isHiddenCrossReference(e) {
			fail("live cross-reference %v is marked hidden", e)
		}
	}
	for e := range d.vm.hiddenCrossRefs {
		rec := d.store.edge(e)
		switch {
		case rec == nil:
			fail("hidden cross-reference %v was released", e)
		case rec.kind != CrossReference:
			fail("hidden cross-reference %v is a tree edge", e)
		case d.store.containsNode(rec.source) && d.store.containsNode(rec.target):
			fail("hidden cross-reference %v has both endpoints live", e)
		}
	}

	return errors.Join(errs...)
}
