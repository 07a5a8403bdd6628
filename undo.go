package mindmap

import "fmt"

// Command is a change that has already been applied. Pushing a command only
// records how to reverse and replay it; nothing is executed at push time.
type Command interface {
	Undo() error
	Redo() error
}

// Discarder is implemented by commands that hold on to detached records.
// Discard is called once when the command leaves the history; undone tells
// whether the command was in its undone state at that moment.
type Discarder interface {
	Discard(undone bool)
}

// UndoManager is a linear command stack with a redo tail.
type UndoManager struct {
	commands []Command
	cursor   int // commands[:cursor] are applied
	limit    int // 0 = unlimited
}

// NewUndoManager creates a manager keeping at most limit commands (0 = unlimited).
func NewUndoManager(limit int) *UndoManager {
	return &UndoManager{limit: limit}
}

// Push records an applied command. Any redo tail is dropped, and the oldest
// commands are dropped once the limit is exceeded.
func (m *UndoManager) Push(cmd Command) {
	for _, c := range m.commands[m.cursor:] {
		discard(c, true)
	}
	m.commands = append(m.commands[:m.cursor], cmd)
	m.cursor++

	if m.limit > 0 && len(m.commands) > m.limit {
		drop := len(m.commands) - m.limit
		for _, c := range m.commands[:drop] {
			discard(c, false)
		}
		m.commands = append(m.commands[:0], m.commands[drop:]...)
		m.cursor -= drop
	}
}

// Undo reverses the most recently applied command.
// A failing command stays where it is.
func (m *UndoManager) Undo() error {
	if m.cursor == 0 {
		return ErrNothingToUndo
	}
	if err := m.commands[m.cursor-1].Undo(); err != nil {
		return err
	}
	m.cursor--
	return nil
}

// Redo replays the most recently undone command.
func (m *UndoManager) Redo() error {
	if m.cursor == len(m.commands) {
		return ErrNothingToRedo
	}
	if err := m.commands[m.cursor].Redo(); err != nil {
		return err
	}
	m.cursor++
	return nil
}

// ResetQueue forgets the whole history.
func (m *UndoManager) ResetQueue() {
	for i, c := range m.commands {
		discard(c, i >= m.cursor)
	}
	m.commands = nil
	m.cursor = 0
}

// CanUndo reports whether Undo has a command to reverse.
func (m *UndoManager) CanUndo() bool { return m.cursor > 0 }

// CanRedo reports whether Redo has a command to replay.
func (m *UndoManager) CanRedo() bool { return m.cursor < len(m.commands) }

// UndoName returns the name of the command Undo would reverse.
func (m *UndoManager) UndoName() string {
	if m.cursor == 0 {
		return ""
	}
	return commandName(m.commands[m.cursor-1])
}

// RedoName returns the name of the command Redo would replay.
func (m *UndoManager) RedoName() string {
	if m.cursor == len(m.commands) {
		return ""
	}
	return commandName(m.commands[m.cursor])
}

// Len returns the number of recorded commands, applied and undone.
func (m *UndoManager) Len() int { return len(m.commands) }

func discard(c Command, undone bool) {
	if d, ok := c.(Discarder); ok {
		d.Discard(undone)
	}
}

func commandName(c Command) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}

// modelEdit is an entry of the view-model layer of a command. It only moves
// cache entries, roots and sides; raw node/edge existence is the graph
// journal's business.
type modelEdit interface {
	undoModel(vm *viewModel)
	redoModel(vm *viewModel)
}

// cacheChange is the collapse-cache payload shared by collapse, expand and
// discard records. Both directions are idempotent.
type cacheChange struct {
	node  NodeID
	edges []EdgeID
	refs  []EdgeID
}

func (c cacheChange) collapse(vm *viewModel) {
	vm.addHiddenCrossReferences(c.refs)
	if !c.node.IsZero() {
		vm.setHiddenEdges(c.node, c.edges)
	}
}

func (c cacheChange) expand(vm *viewModel) {
	if !c.node.IsZero() {
		vm.popHiddenEdges(c.node)
	}
	for _, e := range c.refs {
		vm.removeHiddenCrossReference(e)
	}
}

// collapseEdit records a collapse: undo is the expand bookkeeping.
type collapseEdit struct{ cacheChange }

func (e collapseEdit) undoModel(vm *viewModel) { e.expand(vm) }
func (e collapseEdit) redoModel(vm *viewModel) { e.collapse(vm) }

// expandEdit records an expand: undo is the collapse bookkeeping.
type expandEdit struct{ cacheChange }

func (e expandEdit) undoModel(vm *viewModel) { e.collapse(vm) }
func (e expandEdit) redoModel(vm *viewModel) { e.expand(vm) }

// discardEdit records cache entries dropped because their records were
// removed for good.
type discardEdit struct{ cacheChange }

func (e discardEdit) undoModel(vm *viewModel) { e.collapse(vm) }
func (e discardEdit) redoModel(vm *viewModel) { e.expand(vm) }

type sideEdit struct {
	node     NodeID
	old, new Side
}

func (e sideEdit) undoModel(vm *viewModel) { vm.setSide(e.node, e.old) }
func (e sideEdit) redoModel(vm *viewModel) { vm.setSide(e.node, e.new) }

// rootEdit is the set-root record. Pushing it applies nothing; undo and
// redo switch between the old and new root.
type rootEdit struct {
	old, new NodeID
}

func (e rootEdit) undoModel(vm *viewModel) { vm.setRoot(e.old) }
func (e rootEdit) redoModel(vm *viewModel) { vm.setRoot(e.new) }

// editCommand is the single command produced by one mutator operation or
// one transaction. It carries two layers: the raw graph journal and the
// view-model edits.
type editCommand struct {
	doc   *Document
	name  string
	graph []graphEdit
	model []modelEdit

	// Records removed for good by this command; released when the command
	// leaves the history in its applied state.
	deletedNodes []NodeID
	deletedEdges []EdgeID
}

func (c *editCommand) String() string { return c.name }

func (c *editCommand) empty() bool {
	return len(c.graph) == 0 && len(c.model) == 0
}

// Undo reverses the view-model edits, then the graph journal. A failing
// replay step puts back everything already reversed.
func (c *editCommand) Undo() error {
	if err := c.checkHandles(); err != nil {
		return err
	}
	vm := c.doc.vm
	for i := len(c.model) - 1; i >= 0; i-- {
		c.model[i].undoModel(vm)
	}
	for i := len(c.graph) - 1; i >= 0; i-- {
		if err := c.doc.store.replay(c.graph[i], false); err != nil {
			c.replayGraph(i+1, len(c.graph), true)
			for _, edit := range c.model {
				edit.redoModel(vm)
			}
			return fmt.Errorf("undo %s: %w", c.name, err)
		}
	}
	return nil
}

// Redo replays the graph journal, then the view-model edits. A failing
// replay step reverses the steps already replayed.
func (c *editCommand) Redo() error {
	if err := c.checkHandles(); err != nil {
		return err
	}
	for i, edit := range c.graph {
		if err := c.doc.store.replay(edit, true); err != nil {
			c.replayGraph(0, i, false)
			return fmt.Errorf("redo %s: %w", c.name, err)
		}
	}
	vm := c.doc.vm
	for _, edit := range c.model {
		edit.redoModel(vm)
	}
	return nil
}

// replayGraph replays graph[from:to], forward in order or backward in
// reverse order. Used only to back out of a failed replay.
func (c *editCommand) replayGraph(from, to int, forward bool) {
	if forward {
		for _, edit := range c.graph[from:to] {
			c.doc.store.replay(edit, true)
		}
		return
	}
	for i := to - 1; i >= from; i-- {
		c.doc.store.replay(c.graph[i], false)
	}
}

// checkHandles rejects replay over released slots.
func (c *editCommand) checkHandles() error {
	for _, edit := range c.graph {
		switch edit.op {
		case opCreateEdge, opRemoveEdge, opReinsertEdge:
			if c.doc.store.edge(edit.edge) == nil {
				return fmt.Errorf("%w: stale edge %v in %s", ErrInvalidHandle, edit.edge, c.name)
			}
		default:
			if c.doc.store.node(edit.node) == nil {
				return fmt.Errorf("%w: stale node %v in %s", ErrInvalidHandle, edit.node, c.name)
			}
		}
	}
	return nil
}

// Discard releases the records this command alone keeps alive.
func (c *editCommand) Discard(undone bool) {
	if undone {
		for _, edit := range c.graph {
			switch edit.op {
			case opCreateEdge:
				c.doc.releaseEdge(edit.edge)
			case opCreateNode:
				c.doc.releaseNode(edit.node)
			}
		}
		return
	}
	for _, e := range c.deletedEdges {
		c.doc.releaseEdge(e)
	}
	for _, n := range c.deletedNodes {
		c.doc.releaseNode(n)
	}
}
