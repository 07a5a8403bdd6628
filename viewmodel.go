package mindmap

import "slices"

// viewModel is the mind-map state layered on the graph store: the root item,
// node sides and the collapse caches.
//
// Every method is a plain accessor or mutator. Cascading logic (propagating
// sides, moving edges in and out of the graph) belongs to the mutator.
type viewModel struct {
	root NodeID

	// hiddenEdges maps a collapsed node to the tree edges detached from its
	// subtree, in the pre-order they were collected.
	hiddenEdges map[NodeID][]EdgeID

	// hiddenCrossRefs holds cross-references detached because an endpoint
	// was hidden by a collapse.
	hiddenCrossRefs map[EdgeID]struct{}

	side map[NodeID]Side
}

func newViewModel() *viewModel {
	return &viewModel{
		hiddenEdges:     make(map[NodeID][]EdgeID),
		hiddenCrossRefs: make(map[EdgeID]struct{}),
		side:            make(map[NodeID]Side),
	}
}

func (vm *viewModel) isRoot(n NodeID) bool { return !n.IsZero() && n == vm.root }

func (vm *viewModel) getRoot() NodeID { return vm.root }

func (vm *viewModel) setRoot(n NodeID) { vm.root = n }

func (vm *viewModel) isCollapsed(n NodeID) bool { return len(vm.hiddenEdges[n]) > 0 }

func (vm *viewModel) getSide(n NodeID) Side { return vm.side[n] }

func (vm *viewModel) setSide(n NodeID, s Side) {
	if s == SideUnset {
		delete(vm.side, n)
		return
	}
	vm.side[n] = s
}

// hiddenEdgesOf returns the cache for n without clearing it.
func (vm *viewModel) hiddenEdgesOf(n NodeID) []EdgeID {
	return vm.hiddenEdges[n]
}

// popHiddenEdges returns and clears the cache for n; nil if n was not collapsed.
func (vm *viewModel) popHiddenEdges(n NodeID) []EdgeID {
	edges, ok := vm.hiddenEdges[n]
	if !ok {
		return nil
	}
	delete(vm.hiddenEdges, n)
	return edges
}

// setHiddenEdges stores the cache for n, replacing any prior entry.
func (vm *viewModel) setHiddenEdges(n NodeID, edges []EdgeID) {
	if len(edges) == 0 {
		delete(vm.hiddenEdges, n)
		return
	}
	vm.hiddenEdges[n] = slices.Clone(edges)
}

func (vm *viewModel) addHiddenCrossReferences(edges []EdgeID) {
	for _, e := range edges {
		vm.hiddenCrossRefs[e] = struct{}{}
	}
}

func (vm *viewModel) isHiddenCrossReference(e EdgeID) bool {
	_, ok := vm.hiddenCrossRefs[e]
	return ok
}

// iterateHiddenCrossReferences returns the hidden cross-references in no
// particular order. Callers that need a stable order sort by edge sequence.
func (vm *viewModel) iterateHiddenCrossReferences() []EdgeID {
	refs := make([]EdgeID, 0, len(vm.hiddenCrossRefs))
	for e := range vm.hiddenCrossRefs {
		refs = append(refs, e)
	}
	return refs
}

func (vm *viewModel) removeHiddenCrossReference(e EdgeID) {
	delete(vm.hiddenCrossRefs, e)
}

func (vm *viewModel) clearHiddenCrossReferences() {
	clear(vm.hiddenCrossRefs)
}

// forget drops every entry keyed by a released node.
func (vm *viewModel) forget(n NodeID) {
	delete(vm.side, n)
	delete(vm.hiddenEdges, n)
}
