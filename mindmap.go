package mindmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// DefaultRootText labels the root item of a new document.
const DefaultRootText = "Mind Map"

// SnapshotStore persists document snapshots. See package storage for
// directory and SQLite implementations.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
}

// LibraryOptions configures the mindmap library.
type LibraryOptions struct {
	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// UndoLimit caps each document's undo history (0 = unlimited).
	UndoLimit int

	// Store is used by Open and Save. Optional.
	Store SnapshotStore
}

// Library manages open documents and shared resources like the snapshot store.
type Library struct {
	logger    *slog.Logger
	undoLimit int
	store     SnapshotStore

	// Active documents indexed by ID
	active map[string]*Document
	mu     sync.RWMutex
	closed bool
}

// Init initializes the library.
func Init(options LibraryOptions) (*Library, error) {
	if options.UndoLimit < 0 {
		return nil, fmt.Errorf("undo limit must not be negative, got %d", options.UndoLimit)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		logger:    logger,
		undoLimit: options.UndoLimit,
		store:     options.Store,
		active:    make(map[string]*Document),
	}, nil
}

// DocumentOptions configures a new or loaded document.
type DocumentOptions struct {
	// ID names the document. A random UUID is used when empty.
	ID string

	// RootText labels the root item of a new document.
	RootText string

	// OnCollapse is called after a collapse with the nodes it hid, in the
	// order they were collected. Layout collaborators use it to record
	// positions relative to root.
	OnCollapse func(root NodeID, hidden []NodeID)

	// OnExpand is called after an expand with the nodes it restored.
	OnExpand func(root NodeID, restored []NodeID)
}

// TransactionState holds the state of an active transaction.
type TransactionState struct {
	depth    int    // nesting depth
	name     string // from outermost TransactionStart
	poisoned bool   // whether any inner transaction rolled back

	// Command collecting every edit of the transaction
	cmd *editCommand

	// Hooks to fire once the current call returns
	hooks []func()
}

// Document is one mind map: graph store, view model and undo history.
//
// All exported methods are safe for concurrent use; each one holds the
// document lock for its whole duration.
type Document struct {
	lib    *Library
	id     string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	store *graphStore
	vm    *viewModel
	undo  *UndoManager

	// Opaque placement data owned by the layout collaborator
	attachments map[NodeID]any

	onCollapse func(root NodeID, hidden []NodeID)
	onExpand   func(root NodeID, restored []NodeID)

	transaction *TransactionState
}

func (lib *Library) newDocument(options DocumentOptions) (*Document, error) {
	lib.mu.RLock()
	closed := lib.closed
	lib.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("library: %w", ErrClosed)
	}

	id := options.ID
	if id == "" {
		id = uuid.NewString()
	}
	d := &Document{
		lib:         lib,
		id:          id,
		logger:      lib.logger.With(slog.String("document", id)),
		store:       newGraphStore(),
		vm:          newViewModel(),
		undo:        NewUndoManager(lib.undoLimit),
		attachments: make(map[NodeID]any),
		onCollapse:  options.OnCollapse,
		onExpand:    options.OnExpand,
	}
	return d, nil
}

func (lib *Library) register(d *Document) {
	lib.mu.Lock()
	lib.active[d.id] = d
	lib.mu.Unlock()
}

// NewDocument creates a document holding only a root item.
func (lib *Library) NewDocument(options DocumentOptions) (*Document, error) {
	d, err := lib.newDocument(options)
	if err != nil {
		return nil, err
	}
	text := options.RootText
	if text == "" {
		text = DefaultRootText
	}
	d.vm.setRoot(d.store.createNode(text))
	lib.register(d)
	d.logger.Debug("document created", slog.String("root", d.vm.getRoot().String()))
	return d, nil
}

// Open returns the active document with the given ID, or loads it from the store.
func (lib *Library) Open(ctx context.Context, id string) (*Document, error) {
	lib.mu.RLock()
	d, ok := lib.active[id]
	store := lib.store
	lib.mu.RUnlock()
	if ok {
		return d, nil
	}
	if store == nil {
		return nil, fmt.Errorf("open %s: %w", id, ErrNoStore)
	}
	snap, err := store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	return lib.Load(snap, DocumentOptions{ID: id})
}

// Save writes a snapshot of the document to the store.
func (lib *Library) Save(ctx context.Context, d *Document) error {
	if lib.store == nil {
		return ErrNoStore
	}
	snap := d.Snapshot()
	if err := lib.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save %s: %w", d.ID(), err)
	}
	d.logger.Debug("document saved", slog.Int("nodes", len(snap.Nodes)))
	return nil
}

// Documents returns the IDs of the active documents, sorted.
func (lib *Library) Documents() []string {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	ids := make([]string, 0, len(lib.active))
	for id := range lib.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close closes every active document.
func (lib *Library) Close() error {
	lib.mu.Lock()
	docs := make([]*Document, 0, len(lib.active))
	for _, d := range lib.active {
		docs = append(docs, d)
	}
	lib.closed = true
	lib.mu.Unlock()

	var errs []error
	for _, d := range docs {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}

// Close releases the document and unregisters it from the library.
func (d *Document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.undo.ResetQueue()
	d.mu.Unlock()

	if d.lib != nil {
		d.lib.mu.Lock()
		delete(d.lib.active, d.id)
		d.lib.mu.Unlock()
	}
	return nil
}

// ID returns the document's identifier.
func (d *Document) ID() string {
	return d.id
}

// InTransaction returns true if any transaction is active.
func (d *Document) InTransaction() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transaction != nil
}

// TransactionDepth returns the current nesting depth (0 = no active transaction).
func (d *Document) TransactionDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transaction == nil {
		return 0
	}
	return d.transaction.depth
}

// TransactionStart begins a transaction. Every mutation until the matching
// outermost TransactionCommit becomes a single undo command.
func (d *Document) TransactionStart(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.begin(name)
	return nil
}

// TransactionCommit commits the current transaction.
func (d *Document) TransactionCommit() error {
	d.mu.Lock()
	if d.transaction == nil {
		d.mu.Unlock()
		return ErrNoTransaction
	}
	var hooks []func()
	if d.transaction.depth == 1 {
		hooks = d.transaction.hooks
	}
	err := d.commit()
	d.transaction = d.keepOpen()
	d.mu.Unlock()

	if err != nil {
		return err
	}
	for _, h := range hooks {
		h()
	}
	return nil
}

// TransactionRollback discards all changes in the current transaction.
func (d *Document) TransactionRollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transaction == nil {
		return ErrNoTransaction
	}

	d.transaction.poisoned = true
	d.transaction.depth--

	if d.transaction.depth == 0 {
		// Outermost level: perform actual rollback
		err := d.revertTo(txMark{})
		d.store.journal = nil
		d.logger.Warn("transaction rolled back", slog.String("name", d.transaction.name))
		d.transaction = nil
		return err
	}
	// Inner level: poison flag will cause outer commit to rollback
	return nil
}

// keepOpen returns the transaction if it is still open after a commit.
func (d *Document) keepOpen() *TransactionState {
	if d.transaction == nil || d.transaction.depth == 0 {
		return nil
	}
	return d.transaction
}

// begin opens a transaction level. Caller must hold d.mu.
func (d *Document) begin(name string) {
	if d.transaction != nil {
		d.transaction.depth++
		return
	}
	cmd := &editCommand{doc: d, name: name}
	d.transaction = &TransactionState{depth: 1, name: name, cmd: cmd}
	d.store.journal = &cmd.graph
}

// commit closes a transaction level; the outermost level pushes the
// command. Caller must hold d.mu.
func (d *Document) commit() error {
	tx := d.transaction
	tx.depth--
	if tx.depth > 0 {
		return nil
	}

	d.store.journal = nil
	d.transaction = nil

	if tx.poisoned {
		d.transaction = tx
		err := d.revertTo(txMark{})
		d.transaction = nil
		d.logger.Warn("poisoned transaction rolled back", slog.String("name", tx.name))
		return errors.Join(ErrTransactionPoisoned, err)
	}
	if tx.cmd.empty() {
		return nil
	}
	d.undo.Push(tx.cmd)
	d.logger.Debug("command recorded",
		slog.String("name", tx.cmd.name),
		slog.Int("graph_edits", len(tx.cmd.graph)),
		slog.Int("model_edits", len(tx.cmd.model)))
	return nil
}

// txMark is a savepoint inside the current transaction.
type txMark struct {
	graph, model, nodes, edges, hooks int
}

func (d *Document) mark() txMark {
	cmd := d.transaction.cmd
	return txMark{
		graph: len(cmd.graph),
		model: len(cmd.model),
		nodes: len(cmd.deletedNodes),
		edges: len(cmd.deletedEdges),
		hooks: len(d.transaction.hooks),
	}
}

// revertTo undoes every edit recorded after m and forgets it.
// Caller must hold d.mu.
func (d *Document) revertTo(m txMark) error {
	tx := d.transaction
	cmd := tx.cmd

	for i := len(cmd.model) - 1; i >= m.model; i-- {
		cmd.model[i].undoModel(d.vm)
	}
	tail := cmd.graph[m.graph:]
	var errs []error
	for i := len(tail) - 1; i >= 0; i-- {
		if err := d.store.replay(tail[i], false); err != nil {
			errs = append(errs, err)
		}
	}
	for _, edit := range tail {
		switch edit.op {
		case opCreateEdge:
			d.releaseEdge(edit.edge)
		case opCreateNode:
			d.releaseNode(edit.node)
		}
	}

	cmd.model = cmd.model[:m.model]
	cmd.graph = cmd.graph[:m.graph]
	cmd.deletedNodes = cmd.deletedNodes[:m.nodes]
	cmd.deletedEdges = cmd.deletedEdges[:m.edges]
	tx.hooks = tx.hooks[:m.hooks]
	return errors.Join(errs...)
}

// mutate runs fn as one operation. A failing operation leaves no trace;
// a successful one is committed into the current transaction (or its own).
func (d *Document) mutate(name string, fn func() error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}

	d.begin(name)
	m := d.mark()
	err := fn()
	if err != nil {
		if rerr := d.revertTo(m); rerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: revert failed: %v", ErrInternal, rerr))
		}
	}

	// Hooks of a user transaction wait for its outermost commit.
	var hooks []func()
	if tx := d.transaction; tx.depth == 1 {
		hooks = tx.hooks
	}
	if cerr := d.commit(); cerr != nil && err == nil {
		err = cerr
		hooks = nil
	}
	d.transaction = d.keepOpen()
	d.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return err
}

// applyModel performs a view-model edit and records it.
func (d *Document) applyModel(edit modelEdit) {
	edit.redoModel(d.vm)
	d.recordModel(edit)
}

// recordModel records a view-model edit already performed.
func (d *Document) recordModel(edit modelEdit) {
	if d.transaction != nil {
		d.transaction.cmd.model = append(d.transaction.cmd.model, edit)
	}
}

func (d *Document) markDeleted(nodes []NodeID, edges []EdgeID) {
	if d.transaction == nil {
		return
	}
	cmd := d.transaction.cmd
	cmd.deletedNodes = append(cmd.deletedNodes, nodes...)
	cmd.deletedEdges = append(cmd.deletedEdges, edges...)
}

func (d *Document) queueHook(h func()) {
	if d.transaction != nil {
		d.transaction.hooks = append(d.transaction.hooks, h)
	}
}

// releaseNode frees a detached node slot and everything keyed by it.
func (d *Document) releaseNode(n NodeID) {
	if d.store.releaseNode(n) {
		d.vm.forget(n)
		delete(d.attachments, n)
	}
}

func (d *Document) releaseEdge(e EdgeID) {
	if d.store.releaseEdge(e) {
		d.vm.removeHiddenCrossReference(e)
	}
}

// Undo reverses the most recent command.
func (d *Document) Undo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transaction != nil {
		return ErrTransactionPending
	}
	name := d.undo.UndoName()
	if err := d.undo.Undo(); err != nil {
		if !errors.Is(err, ErrNothingToUndo) {
			d.logger.Warn("undo failed", slog.String("command", name), slog.Any("error", err))
		}
		return err
	}
	d.logger.Debug("undo", slog.String("command", name))
	return nil
}

// Redo replays the most recently undone command.
func (d *Document) Redo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transaction != nil {
		return ErrTransactionPending
	}
	name := d.undo.RedoName()
	if err := d.undo.Redo(); err != nil {
		if !errors.Is(err, ErrNothingToRedo) {
			d.logger.Warn("redo failed", slog.String("command", name), slog.Any("error", err))
		}
		return err
	}
	d.logger.Debug("redo", slog.String("command", name))
	return nil
}

// ResetQueue forgets the undo history.
func (d *Document) ResetQueue() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transaction != nil {
		return ErrTransactionPending
	}
	d.undo.ResetQueue()
	return nil
}

// CanUndo reports whether there is a command to undo.
func (d *Document) CanUndo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.undo.CanUndo()
}

// CanRedo reports whether there is a command to redo.
func (d *Document) CanRedo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.undo.CanRedo()
}

// UndoName names the command Undo would reverse ("" if none).
func (d *Document) UndoName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.undo.UndoName()
}

// RedoName names the command Redo would replay ("" if none).
func (d *Document) RedoName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.undo.RedoName()
}
