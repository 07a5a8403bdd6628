// mindmap-bench is a benchmark and stress test for the mindmap library.
// It grows several documents in parallel with random edits, checks their
// invariants, and measures undo/redo and snapshot round trips.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phroun/mindmap"
	"github.com/phroun/mindmap/storage"
)

type BenchResult struct {
	Name     string
	Duration time.Duration
	Ops      int
	Extra    string
}

func (r BenchResult) String() string {
	if r.Ops > 0 {
		opsPerSec := float64(r.Ops) / r.Duration.Seconds()
		if r.Extra != "" {
			return fmt.Sprintf("%-40s %12v  (%d ops, %.2f ops/sec) %s", r.Name, r.Duration.Round(time.Millisecond), r.Ops, opsPerSec, r.Extra)
		}
		return fmt.Sprintf("%-40s %12v  (%d ops, %.2f ops/sec)", r.Name, r.Duration.Round(time.Millisecond), r.Ops, opsPerSec)
	}
	if r.Extra != "" {
		return fmt.Sprintf("%-40s %12v  %s", r.Name, r.Duration.Round(time.Millisecond), r.Extra)
	}
	return fmt.Sprintf("%-40s %12v", r.Name, r.Duration.Round(time.Millisecond))
}

func main() {
	docs := flag.Int("docs", runtime.GOMAXPROCS(0), "Documents edited in parallel")
	ops := flag.Int("ops", 20000, "Random edits per document")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	fmt.Println("Mindmap Benchmark and Stress Test")
	fmt.Println("=================================")
	fmt.Printf("Documents: %d, edits per document: %d, seed: %d\n", *docs, *ops, *seed)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	fmt.Println()

	tmpDir, err := os.MkdirTemp("", "mindmap-bench-*")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	store, err := storage.NewDirStore(nil, tmpDir, storage.JSON)
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	lib, err := mindmap.Init(mindmap.LibraryOptions{Logger: logger, UndoLimit: 1000, Store: store})
	if err != nil {
		fmt.Printf("Failed to init library: %v\n", err)
		os.Exit(1)
	}
	defer lib.Close()

	var results []BenchResult
	runBench := func(name string, fn func() BenchResult) {
		fmt.Printf("  %-40s ", name+"...")
		result := fn()
		result.Name = name
		fmt.Printf("%v\n", result.Duration.Round(time.Millisecond))
		results = append(results, result)
	}

	ctx := context.Background()
	var documents []*mindmap.Document

	fmt.Println("Editing:")
	runBench("Parallel random edits", func() BenchResult {
		var r BenchResult
		documents, r = benchParallelEdits(ctx, lib, *docs, *ops, *seed)
		return r
	})
	if len(documents) == 0 {
		os.Exit(1)
	}
	g := documents[0]
	runBench("Undo all / redo all", func() BenchResult { return benchUndoRedo(g) })
	runBench("Collapse/expand root children", func() BenchResult { return benchCollapseCycle(g) })

	fmt.Println("\nPersistence:")
	runBench("Snapshot export", func() BenchResult { return benchSnapshot(g) })
	runBench("Save all documents", func() BenchResult { return benchSave(ctx, lib, documents) })
	runBench("Load all documents", func() BenchResult { return benchLoad(ctx, store, lib, documents) })

	fmt.Println("\n" + "=")
	fmt.Println("SUMMARY")
	fmt.Println("=")
	for _, r := range results {
		fmt.Println(r)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Println()
	fmt.Printf("Peak heap allocation: %d MB\n", m.HeapSys/(1024*1024))
	fmt.Printf("Total allocations: %d MB\n", m.TotalAlloc/(1024*1024))
}

func benchParallelEdits(ctx context.Context, lib *mindmap.Library, docs, ops int, seed uint64) ([]*mindmap.Document, BenchResult) {
	documents := make([]*mindmap.Document, docs)
	var mu sync.Mutex
	total := 0

	start := time.Now()
	eg, _ := errgroup.WithContext(ctx)
	for i := range docs {
		eg.Go(func() error {
			d, err := lib.NewDocument(mindmap.DocumentOptions{ID: fmt.Sprintf("bench-%03d", i)})
			if err != nil {
				return err
			}
			documents[i] = d
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			done := 0
			for range ops {
				if applyRandomEdit(d, rng) == nil {
					done++
				}
			}
			if err := d.CheckInvariants(); err != nil {
				return fmt.Errorf("document %s: %w", d.ID(), err)
			}
			mu.Lock()
			total += done
			mu.Unlock()
			return nil
		})
	}
	err := eg.Wait()
	r := BenchResult{Duration: time.Since(start), Ops: total}
	if err != nil {
		r.Extra = fmt.Sprintf("ERROR: %v", err)
		return nil, r
	}
	var nodes int
	for _, d := range documents {
		nodes += d.NodeCount()
	}
	r.Extra = fmt.Sprintf("%d live nodes", nodes)
	return documents, r
}

// applyRandomEdit performs one random structural edit. Rejected edits
// return their error and leave the document unchanged.
func applyRandomEdit(d *mindmap.Document, rng *rand.Rand) error {
	nodes := d.Nodes()
	pick := func() mindmap.NodeID { return nodes[rng.IntN(len(nodes))] }

	switch op := rng.IntN(100); {
	case op < 45:
		_, err := d.AddNode(pick(), "node", mindmap.SideUnset)
		return err
	case op < 55:
		_, err := d.AddSibling(pick(), "sibling")
		return err
	case op < 62:
		n := pick()
		if d.IsRoot(n) {
			return mindmap.ErrCannotRemoveRoot
		}
		return d.RemoveSubtree(n)
	case op < 72:
		return d.ToggleCollapseState(pick())
	case op < 80:
		return d.Reparent(pick(), pick())
	case op < 88:
		_, err := d.AddCrossReference(pick(), pick())
		return err
	case op < 94:
		return d.Undo()
	default:
		return d.Redo()
	}
}

func benchUndoRedo(d *mindmap.Document) BenchResult {
	start := time.Now()
	ops := 0
	for d.CanUndo() {
		if err := d.Undo(); err != nil {
			return BenchResult{Duration: time.Since(start), Extra: fmt.Sprintf("ERROR: %v", err)}
		}
		ops++
	}
	for d.CanRedo() {
		if err := d.Redo(); err != nil {
			return BenchResult{Duration: time.Since(start), Extra: fmt.Sprintf("ERROR: %v", err)}
		}
		ops++
	}
	r := BenchResult{Duration: time.Since(start), Ops: ops}
	if err := d.CheckInvariants(); err != nil {
		r.Extra = fmt.Sprintf("ERROR: %v", err)
	}
	return r
}

func benchCollapseCycle(d *mindmap.Document) BenchResult {
	start := time.Now()
	ops := 0
	for range 10 {
		for _, c := range d.Children(d.Root()) {
			if err := d.ToggleCollapseState(c); err != nil && !mindmap.IsNoOp(err) {
				return BenchResult{Duration: time.Since(start), Extra: fmt.Sprintf("ERROR: %v", err)}
			}
			ops++
		}
	}
	return BenchResult{Duration: time.Since(start), Ops: ops}
}

func benchSnapshot(d *mindmap.Document) BenchResult {
	start := time.Now()
	var size int
	for range 20 {
		data, err := storage.JSON.Marshal(d.Snapshot())
		if err != nil {
			return BenchResult{Duration: time.Since(start), Extra: fmt.Sprintf("ERROR: %v", err)}
		}
		size = len(data)
	}
	return BenchResult{Duration: time.Since(start), Ops: 20, Extra: fmt.Sprintf("%d KB", size/1024)}
}

func benchSave(ctx context.Context, lib *mindmap.Library, docs []*mindmap.Document) BenchResult {
	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	for _, d := range docs {
		eg.Go(func() error { return lib.Save(ctx, d) })
	}
	err := eg.Wait()
	r := BenchResult{Duration: time.Since(start), Ops: len(docs)}
	if err != nil {
		r.Extra = fmt.Sprintf("ERROR: %v", err)
	}
	return r
}

func benchLoad(ctx context.Context, store mindmap.SnapshotStore, lib *mindmap.Library, docs []*mindmap.Document) BenchResult {
	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	for _, d := range docs {
		eg.Go(func() error {
			snap, err := store.Load(ctx, d.ID())
			if err != nil {
				return err
			}
			loaded, err := lib.Load(snap, mindmap.DocumentOptions{ID: d.ID() + "-copy"})
			if err != nil {
				return err
			}
			defer loaded.Close()
			if loaded.NodeCount() != d.NodeCount() {
				return errors.New("node count mismatch after load in " + d.ID())
			}
			return loaded.CheckInvariants()
		})
	}
	err := eg.Wait()
	r := BenchResult{Duration: time.Since(start), Ops: len(docs)}
	if err != nil {
		r.Extra = fmt.Sprintf("ERROR: %v", err)
	}
	return r
}
