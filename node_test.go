package mindmap

import (
	"errors"
	"testing"
)

func TestHandleStrings(t *testing.T) {
	if s := (NodeID{}).String(); s != "n-" {
		t.Errorf("zero NodeID = %q", s)
	}
	if s := (EdgeID{slot: 7, gen: 2}).String(); s != "e7.2" {
		t.Errorf("EdgeID = %q", s)
	}

	n, err := ParseNodeID("n3.1")
	if err != nil || n != (NodeID{slot: 3, gen: 1}) {
		t.Errorf("ParseNodeID = %v, %v", n, err)
	}
	e, err := ParseEdgeID("e0.4")
	if err != nil || e != (EdgeID{slot: 0, gen: 4}) {
		t.Errorf("ParseEdgeID = %v, %v", e, err)
	}

	for _, bad := range []string{"", "n", "n3", "n3.0", "e3.1", "nx.1", "n-"} {
		if _, err := ParseNodeID(bad); !errors.Is(err, ErrInvalidHandle) {
			t.Errorf("ParseNodeID(%q): got %v, want ErrInvalidHandle", bad, err)
		}
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in   string
		want Side
		ok   bool
	}{
		{"left", SideLeft, true},
		{"l", SideLeft, true},
		{"right", SideRight, true},
		{"R", SideRight, true},
		{"", SideUnset, true},
		{"up", SideUnset, false},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseSide(%q) = %v, %v", tt.in, got, err)
		}
	}
	if SideLeft.Opposite() != SideRight || SideUnset.Opposite() != SideUnset {
		t.Error("Opposite is wrong")
	}
}
