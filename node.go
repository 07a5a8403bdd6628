package mindmap

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID identifies a node within a Document.
// It combines a slot index with a generation counter so that a handle to a
// released slot never aliases the record that later reuses it.
// The zero value is never a valid handle.
type NodeID struct {
	slot uint32
	gen  uint32
}

// EdgeID identifies an edge within a Document. See NodeID.
type EdgeID struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether the handle is the zero (invalid) handle.
func (n NodeID) IsZero() bool { return n.gen == 0 }

// IsZero reports whether the handle is the zero (invalid) handle.
func (e EdgeID) IsZero() bool { return e.gen == 0 }

func (n NodeID) String() string {
	if n.IsZero() {
		return "n-"
	}
	return fmt.Sprintf("n%d.%d", n.slot, n.gen)
}

func (e EdgeID) String() string {
	if e.IsZero() {
		return "e-"
	}
	return fmt.Sprintf("e%d.%d", e.slot, e.gen)
}

// ParseNodeID parses the String form of a node handle ("n3.1").
func ParseNodeID(s string) (NodeID, error) {
	slot, gen, err := parseHandle(s, "n")
	if err != nil {
		return NodeID{}, err
	}
	return NodeID{slot: slot, gen: gen}, nil
}

// ParseEdgeID parses the String form of an edge handle ("e7.2").
func ParseEdgeID(s string) (EdgeID, error) {
	slot, gen, err := parseHandle(s, "e")
	if err != nil {
		return EdgeID{}, err
	}
	return EdgeID{slot: slot, gen: gen}, nil
}

func parseHandle(s, prefix string) (slot, gen uint32, err error) {
	body, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	a, b, ok := strings.Cut(body, ".")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	s64, err1 := strconv.ParseUint(a, 10, 32)
	g64, err2 := strconv.ParseUint(b, 10, 32)
	if err1 != nil || err2 != nil || g64 == 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	return uint32(s64), uint32(g64), nil
}

// Side is the placement of a non-root node relative to the root item.
type Side int

const (
	// SideUnset means no side has been assigned (or, as an argument, "choose for me").
	SideUnset Side = iota

	// SideLeft places the node (and its subtree) left of the root.
	SideLeft

	// SideRight places the node (and its subtree) right of the root.
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unset"
	}
}

// Opposite returns the other side. SideUnset has no opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	default:
		return SideUnset
	}
}

// ParseSide converts "left"/"l" and "right"/"r" to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "left", "l", "L":
		return SideLeft, nil
	case "right", "r", "R":
		return SideRight, nil
	case "", "unset":
		return SideUnset, nil
	}
	return SideUnset, fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// EdgeKind distinguishes hierarchical edges from cross-references.
type EdgeKind int

const (
	// TreeEdge is a parent to child edge.
	TreeEdge EdgeKind = iota

	// CrossReference is a free-form edge outside the tree structure.
	CrossReference
)

func (k EdgeKind) String() string {
	if k == CrossReference {
		return "cross-reference"
	}
	return "tree"
}

// EdgeInfo describes an edge's endpoints and kind.
type EdgeInfo struct {
	ID     EdgeID
	Source NodeID
	Target NodeID
	Kind   EdgeKind
}
