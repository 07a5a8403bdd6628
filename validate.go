package mindmap

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// findRoot checks that the tree edges over nodes form one connected rooted
// tree and returns its root.
func findRoot(nodes []int64, edges [][2]int64) (int64, error) {
	if len(nodes) == 0 {
		return 0, fmt.Errorf("%w: no nodes", ErrNotATree)
	}

	g := simple.NewDirectedGraph()
	for _, id := range nodes {
		if g.Node(id) != nil {
			return 0, fmt.Errorf("%w: duplicate node key %d", ErrMalformedSnapshot, id)
		}
		g.AddNode(simple.Node(id))
	}
	for _, e := range edges {
		from, to := g.Node(e[0]), g.Node(e[1])
		switch {
		case from == nil || to == nil:
			return 0, fmt.Errorf("%w: edge %d->%d references an unknown node", ErrMalformedSnapshot, e[0], e[1])
		case e[0] == e[1]:
			return 0, fmt.Errorf("%w: self loop on %d", ErrNotATree, e[0])
		case g.HasEdgeBetween(e[0], e[1]):
			return 0, fmt.Errorf("%w: parallel edges between %d and %d", ErrNotATree, e[0], e[1])
		}
		g.SetEdge(g.NewEdge(from, to))
	}

	if cc := topo.ConnectedComponents(graph.Undirect{G: g}); len(cc) != 1 {
		return 0, fmt.Errorf("%w: %d components", ErrNotATree, len(cc))
	}
	if _, err := topo.Sort(g); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotATree, err)
	}

	root := int64(-1)
	for _, id := range nodes {
		switch g.To(id).Len() {
		case 0:
			if root >= 0 {
				return 0, fmt.Errorf("%w: both %d and %d have no parent", ErrNotATree, root, id)
			}
			root = id
		case 1:
		default:
			return 0, fmt.Errorf("%w: %d has several parents", ErrNotATree, id)
		}
	}
	if root < 0 {
		return 0, fmt.Errorf("%w: no root", ErrNotATree)
	}
	return root, nil
}
