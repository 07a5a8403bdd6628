package mindmap

import (
	"errors"
	"testing"
)

// counterCommand adds delta to *value; it records how it was discarded.
type counterCommand struct {
	value     *int
	delta     int
	discarded *[]string
	name      string
}

func (c *counterCommand) Undo() error {
	*c.value -= c.delta
	return nil
}

func (c *counterCommand) Redo() error {
	*c.value += c.delta
	return nil
}

func (c *counterCommand) String() string { return c.name }

func (c *counterCommand) Discard(undone bool) {
	state := "applied"
	if undone {
		state = "undone"
	}
	*c.discarded = append(*c.discarded, c.name+":"+state)
}

func TestUndoManagerBasic(t *testing.T) {
	var value int
	var discarded []string
	m := NewUndoManager(0)

	if err := m.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo on empty stack: got %v", err)
	}
	if err := m.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo on empty stack: got %v", err)
	}

	for i, name := range []string{"one", "two", "three"} {
		value += i + 1
		m.Push(&counterCommand{value: &value, delta: i + 1, discarded: &discarded, name: name})
	}
	if value != 6 {
		t.Fatalf("value = %d, want 6", value)
	}
	if m.UndoName() != "three" {
		t.Errorf("UndoName = %q, want three", m.UndoName())
	}

	m.Undo()
	m.Undo()
	if value != 1 {
		t.Errorf("after two undos value = %d, want 1", value)
	}
	if m.RedoName() != "two" {
		t.Errorf("RedoName = %q, want two", m.RedoName())
	}
	m.Redo()
	if value != 3 {
		t.Errorf("after redo value = %d, want 3", value)
	}
	if len(discarded) != 0 {
		t.Errorf("nothing should be discarded yet, got %v", discarded)
	}
}

func TestUndoManagerPushDropsRedoTail(t *testing.T) {
	var value int
	var discarded []string
	m := NewUndoManager(0)
	push := func(name string) {
		value++
		m.Push(&counterCommand{value: &value, delta: 1, discarded: &discarded, name: name})
	}

	push("a")
	push("b")
	push("c")
	m.Undo()
	m.Undo()
	push("d")

	if m.CanRedo() {
		t.Error("redo tail should be gone")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
	want := []string{"b:undone", "c:undone"}
	if len(discarded) != 2 || discarded[0] != want[0] || discarded[1] != want[1] {
		t.Errorf("discarded = %v, want %v", discarded, want)
	}
}

func TestUndoManagerLimit(t *testing.T) {
	var value int
	var discarded []string
	m := NewUndoManager(2)
	for _, name := range []string{"a", "b", "c"} {
		value++
		m.Push(&counterCommand{value: &value, delta: 1, discarded: &discarded, name: name})
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if len(discarded) != 1 || discarded[0] != "a:applied" {
		t.Errorf("discarded = %v, want [a:applied]", discarded)
	}
	m.Undo()
	m.Undo()
	if err := m.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("third undo: got %v, want ErrNothingToUndo", err)
	}
	if value != 1 {
		t.Errorf("value = %d, want 1", value)
	}
}

func TestUndoManagerResetQueue(t *testing.T) {
	var value int
	var discarded []string
	m := NewUndoManager(0)
	for _, name := range []string{"a", "b"} {
		value++
		m.Push(&counterCommand{value: &value, delta: 1, discarded: &discarded, name: name})
	}
	m.Undo()
	m.ResetQueue()

	if m.CanUndo() || m.CanRedo() {
		t.Error("queue should be empty")
	}
	if len(discarded) != 2 || discarded[0] != "a:applied" || discarded[1] != "b:undone" {
		t.Errorf("discarded = %v, want [a:applied b:undone]", discarded)
	}
}

type failingCommand struct{}

func (failingCommand) Undo() error { return ErrInvalidHandle }
func (failingCommand) Redo() error { return ErrInvalidHandle }

func TestUndoManagerFailingCommandStays(t *testing.T) {
	m := NewUndoManager(0)
	m.Push(failingCommand{})
	if err := m.Undo(); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("Undo: got %v", err)
	}
	if !m.CanUndo() {
		t.Error("failed undo must not move the cursor")
	}
	if m.UndoName() != "mindmap.failingCommand" {
		t.Errorf("UndoName = %q", m.UndoName())
	}
}

func TestEditCommandUndoFailureRestoresState(t *testing.T) {
	d := newTestDocument(t)
	x := mustAdd(t, d, d.Root(), "x", SideRight)

	// A live edge the command does not know about keeps x from being
	// removed, so the undo fails after reversing part of the journal.
	if _, err := d.store.createEdge(d.Root(), x, CrossReference); err != nil {
		t.Fatal(err)
	}
	before := captureState(d)

	if err := d.Undo(); err == nil {
		t.Fatal("undo should fail while x has an unrecorded edge")
	}
	assertState(t, "failed undo", captureState(d), before)
	if !d.CanUndo() || d.CanRedo() {
		t.Error("failed undo must leave the command applied")
	}
	if d.Side(x) != SideRight {
		t.Errorf("Side(x) = %v after failed undo, want right", d.Side(x))
	}
}

func TestEditCommandRedoFailureRestoresState(t *testing.T) {
	d := newTestDocument(t)
	if err := d.TransactionStart("branch"); err != nil {
		t.Fatal(err)
	}
	x := mustAdd(t, d, d.Root(), "x", SideLeft)
	y := mustAdd(t, d, x, "y", SideUnset)
	if err := d.TransactionCommit(); err != nil {
		t.Fatal(err)
	}
	if err := d.Undo(); err != nil {
		t.Fatal(err)
	}

	// Bring y back behind the journal's back: replaying its creation
	// fails after x and its edge are already back.
	if err := d.store.reinsertNode(y); err != nil {
		t.Fatal(err)
	}
	before := captureState(d)

	if err := d.Redo(); err == nil {
		t.Fatal("redo should fail while y is already live")
	}
	assertState(t, "failed redo", captureState(d), before)
	if d.store.containsNode(x) {
		t.Error("x must be detached again after the failed redo")
	}
	if !d.CanRedo() {
		t.Error("failed redo must leave the command undone")
	}
}
