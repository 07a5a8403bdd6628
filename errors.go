// Package mindmap provides the structural model behind a collapsible mind-map
// editor: a rooted tree of items joined by tree edges and free-form
// cross-reference edges, with collapse/expand, left/right placement relative
// to the root item, and full undo/redo.
package mindmap

import "errors"

// Handle errors
var (
	// ErrInvalidHandle indicates that a node or edge handle does not exist,
	// is stale, or does not refer to a live record.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrInvalidParent indicates that the requested parent is not a live node.
	ErrInvalidParent = errors.New("invalid parent")
)

// Structure errors
var (
	// ErrCannotRemoveRoot indicates an attempt to remove the root item.
	ErrCannotRemoveRoot = errors.New("cannot remove root")

	// ErrCannotMoveRoot indicates an attempt to reparent the root item.
	ErrCannotMoveRoot = errors.New("cannot reparent root")

	// ErrWouldCreateCycle indicates that a reparent would make a node its own ancestor.
	ErrWouldCreateCycle = errors.New("operation would create a cycle")

	// ErrInvalidSide indicates a side value that is unset where one is required,
	// applied to the root, or that contradicts the parent's side.
	ErrInvalidSide = errors.New("invalid side")

	// ErrSelfReference indicates a cross-reference whose endpoints are the same node.
	ErrSelfReference = errors.New("cross-reference endpoints must differ")

	// ErrNotCrossReference indicates that an edge is a tree edge where a
	// cross-reference edge was expected.
	ErrNotCrossReference = errors.New("edge is not a cross-reference")

	// ErrInternal indicates an internal consistency error (should not happen).
	ErrInternal = errors.New("internal error")
)

// Collapse state errors. Both are benign: the operation did nothing.
var (
	// ErrNotCollapsed is returned when expanding a node that is not collapsed.
	ErrNotCollapsed = errors.New("node is not collapsed")

	// ErrAlreadyCollapsed is returned when collapsing a node that is already collapsed.
	ErrAlreadyCollapsed = errors.New("node is already collapsed")
)

// Undo errors
var (
	// ErrNothingToUndo indicates that the undo history is exhausted.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo indicates that there is no undone command to replay.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Transaction errors
var (
	// ErrTransactionPending indicates that an operation is not allowed during a transaction.
	ErrTransactionPending = errors.New("operation not allowed during transaction")

	// ErrTransactionPoisoned indicates that a transaction was poisoned by an inner rollback.
	ErrTransactionPoisoned = errors.New("transaction was poisoned by inner rollback")

	// ErrNoTransaction indicates that there is no active transaction.
	ErrNoTransaction = errors.New("no active transaction")
)

// Persistence errors
var (
	// ErrMalformedSnapshot indicates a snapshot with dangling or duplicate references.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrNotATree indicates that the tree edges of a snapshot do not form a rooted tree.
	ErrNotATree = errors.New("graph is not a mind map")

	// ErrDocumentNotFound indicates that a document is neither open nor stored.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNoStore indicates that persistence was requested but no store is configured.
	ErrNoStore = errors.New("snapshot store not configured")

	// ErrClosed indicates use of a closed document or library.
	ErrClosed = errors.New("closed")
)

// IsNoOp reports whether err is one of the benign collapse-state no-ops.
func IsNoOp(err error) bool {
	return errors.Is(err, ErrNotCollapsed) || errors.Is(err, ErrAlreadyCollapsed)
}
