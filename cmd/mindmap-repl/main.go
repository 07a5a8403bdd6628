// mindmap-repl is an interactive shell over the mindmap library.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/phroun/mindmap"
	"github.com/phroun/mindmap/storage"
)

// REPL holds the state of the interactive session
type REPL struct {
	ctx    context.Context
	lib    *mindmap.Library
	doc    *mindmap.Document
	store  mindmap.SnapshotStore
	dir    *storage.DirStore
	codec  storage.Codec
	reader *bufio.Reader
	logger *slog.Logger

	watcher *storage.Watcher
}

func main() {
	configPath := flag.String("config", "mindmap.yaml", "Configuration file")
	storeKind := flag.String("store", "", "Snapshot store: dir or sqlite")
	storePath := flag.String("path", "", "Store directory or database file")
	format := flag.String("format", "", "Snapshot format: json or yaml")
	undoLimit := flag.Int("undo", -1, "Undo history limit (0 = unlimited)")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error reading config: %v\n", err)
		os.Exit(1)
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
	}
	if *storePath != "" {
		cfg.Path = *storePath
	}
	if *format != "" {
		cfg.Format = *format
	}
	if *undoLimit >= 0 {
		cfg.UndoLimit = *undoLimit
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.level()}))
	ctx := context.Background()

	store, dir, closeStore, err := cfg.openStore(ctx)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()
	codec, _ := storage.CodecFor(cfg.Format)

	lib, err := mindmap.Init(mindmap.LibraryOptions{
		Logger:    logger,
		UndoLimit: cfg.UndoLimit,
		Store:     store,
	})
	if err != nil {
		fmt.Printf("Error initializing library: %v\n", err)
		os.Exit(1)
	}
	defer lib.Close()

	fmt.Println("Mindmap REPL")
	fmt.Println("Type 'help' for available commands, 'quit' to exit")
	fmt.Println()

	repl := &REPL{
		ctx:    ctx,
		lib:    lib,
		store:  store,
		dir:    dir,
		codec:  codec,
		reader: bufio.NewReader(os.Stdin),
		logger: logger,
	}
	repl.cmdNew(nil)

	// Main loop
	for {
		fmt.Print("mindmap> ")
		input, err := repl.reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nGoodbye!")
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if !repl.handleCommand(input) {
			break
		}
	}

	repl.stopWatch()
}

func (r *REPL) handleCommand(input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		r.printHelp()

	case "quit", "exit":
		fmt.Println("Goodbye!")
		return false

	case "new":
		r.cmdNew(args)

	case "open":
		r.cmdOpen(args)

	case "save":
		r.cmdSave()

	case "list":
		r.cmdList()

	case "export":
		r.cmdExport()

	case "status":
		r.cmdStatus()

	case "tree", "ls":
		fmt.Print(renderTree(r.doc))

	case "add":
		r.cmdAdd(args)

	case "sib", "sibling":
		r.cmdSibling(args)

	case "rm", "remove":
		r.withNode(args, r.doc.RemoveSubtree)

	case "collapse":
		r.withNode(args, r.doc.CollapseNode)

	case "expand":
		r.withNode(args, r.doc.ExpandNode)

	case "toggle":
		r.withNode(args, r.doc.ToggleCollapseState)

	case "side":
		r.cmdSide(args)

	case "move", "reparent":
		r.cmdMove(args)

	case "xref":
		r.cmdXref(args)

	case "unxref":
		r.cmdUnxref(args)

	case "text":
		r.cmdText(args)

	case "root":
		r.withNode(args, r.doc.SetRoot)

	case "reset":
		r.cmdReset(args)

	case "undo":
		r.report(r.doc.Undo())

	case "redo":
		r.report(r.doc.Redo())

	case "tx", "transaction":
		r.cmdTransaction(args)

	case "check":
		r.cmdCheck()

	case "watch":
		r.cmdWatch(args)

	default:
		fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", cmd)
	}

	return true
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  new [text]               Start a new document
  open <id>                Open a stored document
  save                     Save the current document
  list                     List stored documents
  export                   Print the current snapshot
  status                   Show document summary
  tree                     Show the tree

  add <parent> [left|right] <text>   Add a child ("root" names the root)
  sib <node> <text>        Add a sibling
  rm <node>                Remove a subtree
  collapse|expand|toggle <node>
  side <node> <left|right> Move a subtree to a side
  move <node> <parent>     Reparent a subtree
  xref <from> <to>         Add a cross-reference
  unxref <edge>            Remove a cross-reference
  text <node> <text>       Relabel a node
  root <node>              Designate the root
  reset [text]             Clear the document

  undo | redo
  tx start <name> | tx commit | tx rollback
  check                    Verify structural invariants
  watch on|off             Report stored documents changed on disk
  quit`)
}

func (r *REPL) report(err error) {
	switch {
	case err == nil:
		fmt.Println("OK")
	case mindmap.IsNoOp(err):
		fmt.Println(mutedStyle.Render("no change: " + err.Error()))
	default:
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
	}
}

func (r *REPL) node(arg string) (mindmap.NodeID, error) {
	if arg == "root" || arg == "." {
		return r.doc.Root(), nil
	}
	return mindmap.ParseNodeID(arg)
}

func (r *REPL) withNode(args []string, fn func(mindmap.NodeID) error) {
	if len(args) != 1 {
		fmt.Println("Usage: <command> <node>")
		return
	}
	n, err := r.node(args[0])
	if err != nil {
		r.report(err)
		return
	}
	r.report(fn(n))
}

func (r *REPL) setDocument(d *mindmap.Document) {
	if r.doc != nil && r.doc != d {
		r.doc.Close()
	}
	r.doc = d
}

func (r *REPL) cmdNew(args []string) {
	d, err := r.lib.NewDocument(mindmap.DocumentOptions{RootText: strings.Join(args, " ")})
	if err != nil {
		r.report(err)
		return
	}
	r.setDocument(d)
	fmt.Printf("New document %s\n", d.ID())
}

func (r *REPL) cmdOpen(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: open <id>")
		return
	}
	d, err := r.lib.Open(r.ctx, args[0])
	if err != nil {
		r.report(err)
		return
	}
	r.setDocument(d)
	fmt.Printf("Opened %s: %d nodes\n", d.ID(), d.NodeCount())
}

func (r *REPL) cmdSave() {
	r.report(r.lib.Save(r.ctx, r.doc))
}

// lister is implemented by every store in package storage.
type lister interface {
	List(ctx context.Context) ([]string, error)
}

func (r *REPL) cmdList() {
	l, ok := r.store.(lister)
	if !ok {
		r.report(mindmap.ErrNoStore)
		return
	}
	ids, err := l.List(r.ctx)
	if err != nil {
		r.report(err)
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func (r *REPL) cmdExport() {
	data, err := r.codec.Marshal(r.doc.Snapshot())
	if err != nil {
		r.report(err)
		return
	}
	fmt.Println(string(data))
}

func (r *REPL) cmdStatus() {
	fmt.Printf("Document: %s\n", r.doc.ID())
	fmt.Printf("Nodes: %d live, Edges: %d live\n", r.doc.NodeCount(), r.doc.EdgeCount())
	fmt.Printf("Hidden cross-references: %d\n", len(r.doc.HiddenCrossReferences()))
	if r.doc.InTransaction() {
		fmt.Printf("Transaction depth: %d\n", r.doc.TransactionDepth())
	}
	if name := r.doc.UndoName(); name != "" {
		fmt.Printf("Undo: %s\n", name)
	}
	if name := r.doc.RedoName(); name != "" {
		fmt.Printf("Redo: %s\n", name)
	}
}

func (r *REPL) cmdAdd(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: add <parent> [left|right] <text>")
		return
	}
	parent, err := r.node(args[0])
	if err != nil {
		r.report(err)
		return
	}
	side := mindmap.SideUnset
	rest := args[1:]
	if s, err := mindmap.ParseSide(rest[0]); err == nil && s != mindmap.SideUnset && len(rest) > 1 {
		side = s
		rest = rest[1:]
	}
	n, err := r.doc.AddNode(parent, strings.Join(rest, " "), side)
	if err != nil {
		r.report(err)
		return
	}
	fmt.Printf("Added %s (%s)\n", n, r.doc.Side(n))
}

func (r *REPL) cmdSibling(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: sib <node> <text>")
		return
	}
	target, err := r.node(args[0])
	if err != nil {
		r.report(err)
		return
	}
	n, err := r.doc.AddSibling(target, strings.Join(args[1:], " "))
	if err != nil {
		r.report(err)
		return
	}
	fmt.Printf("Added %s (%s)\n", n, r.doc.Side(n))
}

func (r *REPL) cmdSide(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: side <node> <left|right>")
		return
	}
	n, err := r.node(args[0])
	if err != nil {
		r.report(err)
		return
	}
	side, err := mindmap.ParseSide(args[1])
	if err != nil {
		r.report(err)
		return
	}
	r.report(r.doc.SetSideRecursive(n, side))
}

func (r *REPL) cmdMove(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: move <node> <parent>")
		return
	}
	n, err := r.node(args[0])
	if err != nil {
		r.report(err)
		return
	}
	parent, err := r.node(args[1])
	if err != nil {
		r.report(err)
		return
	}
	r.report(r.doc.Reparent(n, parent))
}

func (r *REPL) cmdXref(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: xref <from> <to>")
		return
	}
	from, err := r.node(args[0])
	if err != nil {
		r.report(err)
		return
	}
	to, err := r.node(args[1])
	if err != nil {
		r.report(err)
		return
	}
	e, err := r.doc.AddCrossReference(from, to)
	if err != nil {
		r.report(err)
		return
	}
	fmt.Printf("Added %s\n", e)
}

func (r *REPL) cmdUnxref(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: unxref <edge>")
		return
	}
	e, err := mindmap.ParseEdgeID(args[0])
	if err != nil {
		r.report(err)
		return
	}
	r.report(r.doc.RemoveCrossReference(e))
}

func (r *REPL) cmdText(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: text <node> <text>")
		return
	}
	n, err := r.node(args[0])
	if err != nil {
		r.report(err)
		return
	}
	r.report(r.doc.SetText(n, strings.Join(args[1:], " ")))
}

func (r *REPL) cmdReset(args []string) {
	root, err := r.doc.Reset(strings.Join(args, " "))
	if err != nil {
		r.report(err)
		return
	}
	fmt.Printf("New root %s\n", root)
}

func (r *REPL) cmdTransaction(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: tx start <name> | tx commit | tx rollback")
		return
	}
	switch args[0] {
	case "start", "begin":
		r.report(r.doc.TransactionStart(strings.Join(args[1:], " ")))
	case "commit":
		r.report(r.doc.TransactionCommit())
	case "rollback", "abort":
		r.report(r.doc.TransactionRollback())
	default:
		fmt.Printf("Unknown transaction command: %s\n", args[0])
	}
}

func (r *REPL) cmdCheck() {
	if err := r.doc.CheckInvariants(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Println(errorStyle.Render(line))
		}
		return
	}
	fmt.Println("All invariants hold")
}

func (r *REPL) cmdWatch(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Println("Usage: watch on|off")
		return
	}
	if args[0] == "off" {
		r.stopWatch()
		fmt.Println("OK")
		return
	}
	if r.dir == nil {
		r.report(errors.New("watch needs a directory store"))
		return
	}
	if r.watcher != nil {
		fmt.Println("Already watching")
		return
	}
	w, err := storage.NewWatcher(r.dir, r.logger)
	if err != nil {
		r.report(err)
		return
	}
	if err := w.Start(r.ctx); err != nil {
		w.Stop()
		r.report(err)
		return
	}
	r.watcher = w
	go func() {
		for id := range w.Changes() {
			fmt.Printf("\n%s\nmindmap> ", mutedStyle.Render("document "+id+" changed on disk"))
		}
	}()
	fmt.Printf("Watching %s\n", r.dir.Dir())
}

func (r *REPL) stopWatch() {
	if r.watcher != nil {
		r.watcher.Stop()
		r.watcher = nil
	}
}
