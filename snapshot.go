package mindmap

import (
	"fmt"
	"log/slog"
	"slices"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// Snapshot is the persisted form of a document. Node keys are positive and
// only meaningful within one snapshot.
type Snapshot struct {
	Version int    `json:"version" yaml:"version"`
	ID      string `json:"id" yaml:"id"`
	Root    int64  `json:"root" yaml:"root"`

	Nodes []SnapshotNode `json:"nodes" yaml:"nodes"`

	// Tree edges in creation order, live and hidden.
	Edges []SnapshotEdge `json:"edges" yaml:"edges"`

	CrossReferences       []SnapshotEdge `json:"cross_references,omitempty" yaml:"cross_references,omitempty"`
	HiddenCrossReferences []SnapshotEdge `json:"hidden_cross_references,omitempty" yaml:"hidden_cross_references,omitempty"`
}

// SnapshotNode is one node of a snapshot.
type SnapshotNode struct {
	Key       int64  `json:"key" yaml:"key"`
	Text      string `json:"text" yaml:"text"`
	Side      string `json:"side,omitempty" yaml:"side,omitempty"`
	Collapsed bool   `json:"collapsed,omitempty" yaml:"collapsed,omitempty"`
}

// SnapshotEdge is one edge of a snapshot. HiddenBy names the collapsed node
// whose cache holds a hidden tree edge; zero for live edges.
type SnapshotEdge struct {
	Source   int64 `json:"source" yaml:"source"`
	Target   int64 `json:"target" yaml:"target"`
	HiddenBy int64 `json:"hidden_by,omitempty" yaml:"hidden_by,omitempty"`
}

// Snapshot exports the document, including collapsed subtrees.
func (d *Document) Snapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := &Snapshot{Version: SnapshotVersion, ID: d.id}
	keys := make(map[NodeID]int64)
	addNode := func(n NodeID) {
		if _, ok := keys[n]; ok {
			return
		}
		keys[n] = int64(len(keys) + 1)
		side := ""
		if s := d.vm.getSide(n); s != SideUnset {
			side = s.String()
		}
		snap.Nodes = append(snap.Nodes, SnapshotNode{
			Key:       keys[n],
			Text:      d.store.nodes[n.slot].text,
			Side:      side,
			Collapsed: d.vm.isCollapsed(n),
		})
	}

	var tree []EdgeID
	hiddenBy := make(map[EdgeID]NodeID)
	var visitHidden func(owner NodeID)
	visitHidden = func(owner NodeID) {
		for _, e := range d.vm.hiddenEdgesOf(owner) {
			hiddenBy[e] = owner
			tree = append(tree, e)
			t := d.store.edges[e.slot].target
			addNode(t)
			visitHidden(t)
		}
	}
	var visit func(v NodeID)
	visit = func(v NodeID) {
		addNode(v)
		for _, e := range d.store.outEdges(v) {
			if rec := d.store.edges[e.slot]; rec.kind == TreeEdge {
				tree = append(tree, e)
				visit(rec.target)
			}
		}
		visitHidden(v)
	}
	visit(d.vm.getRoot())
	snap.Root = keys[d.vm.getRoot()]

	d.store.sortBySeq(tree)
	for _, e := range tree {
		rec := d.store.edges[e.slot]
		se := SnapshotEdge{Source: keys[rec.source], Target: keys[rec.target]}
		if owner, ok := hiddenBy[e]; ok {
			se.HiddenBy = keys[owner]
		}
		snap.Edges = append(snap.Edges, se)
	}

	for _, e := range d.store.liveEdgeIDs() {
		if rec := d.store.edges[e.slot]; rec.kind == CrossReference {
			snap.CrossReferences = append(snap.CrossReferences,
				SnapshotEdge{Source: keys[rec.source], Target: keys[rec.target]})
		}
	}
	for _, e := range d.hiddenCrossReferences() {
		rec := d.store.edges[e.slot]
		snap.HiddenCrossReferences = append(snap.HiddenCrossReferences,
			SnapshotEdge{Source: keys[rec.source], Target: keys[rec.target]})
	}
	return snap
}

// Load rebuilds a document from a snapshot and registers it with the
// library. The new document starts with an empty undo history.
//
// Tree edges are rebuilt first and validated as a rooted tree; cross
// references follow, then collapses are replayed deepest first.
func (lib *Library) Load(snap *Snapshot, options DocumentOptions) (*Document, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, snap.Version)
	}

	keys := make([]int64, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.Key <= 0 {
			return nil, fmt.Errorf("%w: node key %d", ErrMalformedSnapshot, n.Key)
		}
		keys = append(keys, n.Key)
	}
	pairs := make([][2]int64, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		pairs = append(pairs, [2]int64{e.Source, e.Target})
	}
	root, err := findRoot(keys, pairs)
	if err != nil {
		return nil, err
	}
	if root != snap.Root {
		return nil, fmt.Errorf("%w: declared root %d, tree root %d", ErrNotATree, snap.Root, root)
	}

	if options.ID == "" {
		options.ID = snap.ID
	}
	d, err := lib.newDocument(options)
	if err != nil {
		return nil, err
	}
	if err := d.restore(snap); err != nil {
		return nil, err
	}
	d.undo.ResetQueue()
	lib.register(d)
	d.logger.Debug("document loaded",
		slog.Int("nodes", len(snap.Nodes)),
		slog.Int("cross_references", len(snap.CrossReferences)+len(snap.HiddenCrossReferences)))
	return d, nil
}

// restore replays a validated snapshot into an empty document. Nothing is
// journaled: the document has no open transaction.
func (d *Document) restore(snap *Snapshot) error {
	ids := make(map[int64]NodeID, len(snap.Nodes))
	sides := make(map[NodeID]Side, len(snap.Nodes))
	var collapsed []NodeID
	for _, sn := range snap.Nodes {
		n := d.store.createNode(sn.Text)
		ids[sn.Key] = n
		side, err := ParseSide(sn.Side)
		if err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrMalformedSnapshot, sn.Key, err)
		}
		sides[n] = side
		if sn.Collapsed {
			collapsed = append(collapsed, n)
		}
	}

	hidden := make(map[NodeID][][2]NodeID)
	for _, se := range snap.Edges {
		src, dst := ids[se.Source], ids[se.Target]
		if _, err := d.store.createEdge(src, dst, TreeEdge); err != nil {
			return err
		}
		if se.HiddenBy != 0 {
			owner, ok := ids[se.HiddenBy]
			if !ok {
				return fmt.Errorf("%w: edge hidden by unknown node %d", ErrMalformedSnapshot, se.HiddenBy)
			}
			hidden[owner] = append(hidden[owner], [2]NodeID{src, dst})
		}
	}

	// Declared root-child sides first, so setRoot balances the rest
	// against them. Deeper nodes inherit from their branch.
	root := ids[snap.Root]
	for _, c := range d.children(root) {
		d.setSide(c, sides[c])
	}
	if err := d.setRoot(root); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	for _, c := range d.children(root) {
		d.propagateSide(c, d.vm.getSide(c))
	}

	for _, list := range [][]SnapshotEdge{snap.CrossReferences, snap.HiddenCrossReferences} {
		for _, se := range list {
			src, ok1 := ids[se.Source]
			dst, ok2 := ids[se.Target]
			if !ok1 || !ok2 || src == dst {
				return fmt.Errorf("%w: cross-reference %d->%d", ErrMalformedSnapshot, se.Source, se.Target)
			}
			if _, err := d.store.createEdge(src, dst, CrossReference); err != nil {
				return err
			}
		}
	}

	// Deepest first, so outer caches never contain inner hidden regions.
	depth := make(map[NodeID]int)
	var measure func(v NodeID, level int)
	measure = func(v NodeID, level int) {
		depth[v] = level
		for _, c := range d.children(v) {
			measure(c, level+1)
		}
	}
	measure(root, 0)
	slices.SortStableFunc(collapsed, func(a, b NodeID) int { return depth[b] - depth[a] })

	for _, n := range collapsed {
		if err := d.collapseNode(n); err != nil {
			return fmt.Errorf("%w: collapse %v: %v", ErrMalformedSnapshot, n, err)
		}
		var got [][2]NodeID
		for _, e := range d.vm.hiddenEdgesOf(n) {
			rec := d.store.edges[e.slot]
			got = append(got, [2]NodeID{rec.source, rec.target})
		}
		if !sameEdges(got, hidden[n]) {
			return fmt.Errorf("%w: hidden edges of node %v do not match its subtree", ErrMalformedSnapshot, n)
		}
		delete(hidden, n)
	}
	if len(hidden) > 0 {
		return fmt.Errorf("%w: hidden edges owned by %d nodes that are not collapsed", ErrMalformedSnapshot, len(hidden))
	}
	return nil
}

func sameEdges(a, b [][2]NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	count := make(map[[2]NodeID]int, len(a))
	for _, e := range a {
		count[e]++
	}
	for _, e := range b {
		count[e]--
		if count[e] < 0 {
			return false
		}
	}
	return true
}
