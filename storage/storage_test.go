package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/phroun/mindmap"
)

// sampleSnapshot exports a small document with a collapsed branch, a live
// cross-reference and a hidden one.
func sampleSnapshot(t *testing.T, id string) *mindmap.Snapshot {
	t.Helper()
	lib, err := mindmap.Init(mindmap.LibraryOptions{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { lib.Close() })

	d, err := lib.NewDocument(mindmap.DocumentOptions{ID: id, RootText: "topic"})
	if err != nil {
		t.Fatalf("NewDocument failed: %v", err)
	}
	root := d.Root()
	a, err := d.AddNode(root, "a", mindmap.SideLeft)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	b, err := d.AddNode(root, "b", mindmap.SideRight)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	a1, err := d.AddNode(a, "a1", mindmap.SideUnset)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if _, err := d.AddCrossReference(a1, b); err != nil {
		t.Fatalf("AddCrossReference failed: %v", err)
	}
	if _, err := d.AddCrossReference(b, a); err != nil {
		t.Fatalf("AddCrossReference failed: %v", err)
	}
	if err := d.CollapseNode(a); err != nil {
		t.Fatalf("CollapseNode failed: %v", err)
	}
	snap := d.Snapshot()
	if len(snap.CrossReferences) != 1 || len(snap.HiddenCrossReferences) != 1 {
		t.Fatalf("Unexpected sample: %d live and %d hidden cross-references",
			len(snap.CrossReferences), len(snap.HiddenCrossReferences))
	}
	return snap
}

func TestCodecRoundTrip(t *testing.T) {
	snap := sampleSnapshot(t, "codec")
	for _, codec := range []Codec{JSON, YAML} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Marshal(snap)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			got, err := codec.Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if !reflect.DeepEqual(got, snap) {
				t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", got, snap)
			}
		})
	}
}

func TestCodecMalformed(t *testing.T) {
	for _, codec := range []Codec{JSON, YAML} {
		if _, err := codec.Unmarshal([]byte("{nodes: [")); !errors.Is(err, mindmap.ErrMalformedSnapshot) {
			t.Errorf("%s: expected ErrMalformedSnapshot, got %v", codec.Name(), err)
		}
	}
}

func TestCodecFor(t *testing.T) {
	tests := []struct {
		name string
		want Codec
	}{
		{"", JSON},
		{"json", JSON},
		{"yaml", YAML},
		{"yml", YAML},
	}
	for _, tt := range tests {
		got, err := CodecFor(tt.name)
		if err != nil {
			t.Errorf("CodecFor(%q) failed: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CodecFor(%q) = %s, want %s", tt.name, got.Name(), tt.want.Name())
		}
	}
	if _, err := CodecFor("xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	for _, codec := range []Codec{JSON, YAML} {
		t.Run(codec.Name(), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "maps")
			store, err := NewDirStore(nil, dir, codec)
			if err != nil {
				t.Fatalf("NewDirStore failed: %v", err)
			}

			snap := sampleSnapshot(t, "plans")
			if err := store.Save(ctx, snap); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "plans"+codec.Ext())); err != nil {
				t.Errorf("Expected snapshot file: %v", err)
			}

			got, err := store.Load(ctx, "plans")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !reflect.DeepEqual(got, snap) {
				t.Errorf("Loaded snapshot differs from saved one")
			}

			if err := store.Save(ctx, sampleSnapshot(t, "alpha")); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			ids, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if !reflect.DeepEqual(ids, []string{"alpha", "plans"}) {
				t.Errorf("List = %v, want [alpha plans]", ids)
			}

			if err := store.Delete(ctx, "plans"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Load(ctx, "plans"); !errors.Is(err, mindmap.ErrDocumentNotFound) {
				t.Errorf("Expected ErrDocumentNotFound after delete, got %v", err)
			}
			if err := store.Delete(ctx, "plans"); !errors.Is(err, mindmap.ErrDocumentNotFound) {
				t.Errorf("Expected ErrDocumentNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestDirStoreRejectsBadIDs(t *testing.T) {
	store, err := NewDirStore(nil, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	for _, id := range []string{"", "../escape", `a\b`, ".hidden"} {
		if _, err := store.Load(context.Background(), id); err == nil {
			t.Errorf("Load(%q) should fail", id)
		}
	}
}

func TestDirStoreIDFromPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(nil, dir, JSON)
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	tests := []struct {
		path string
		id   string
		ok   bool
	}{
		{filepath.Join(dir, "plans.json"), "plans", true},
		{filepath.Join(dir, ".plans.tmp"), "", false},
		{filepath.Join(dir, "plans.yaml"), "", false},
		{filepath.Join(dir, "sub", "plans.json"), "", false},
	}
	for _, tt := range tests {
		id, ok := store.IDFromPath(tt.path)
		if id != tt.id || ok != tt.ok {
			t.Errorf("IDFromPath(%s) = %q, %v; want %q, %v", tt.path, id, ok, tt.id, tt.ok)
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "maps.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer store.Close()

	snap := sampleSnapshot(t, "plans")
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// Saving again replaces the row.
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}
	got, err := store.Load(ctx, "plans")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Errorf("Loaded snapshot differs from saved one")
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"plans"}) {
		t.Errorf("List = %v, want [plans]", ids)
	}

	if err := store.Delete(ctx, "plans"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "plans"); !errors.Is(err, mindmap.ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "plans"); !errors.Is(err, mindmap.ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound on second delete, got %v", err)
	}
}

func TestSQLiteStoreMixedFormats(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "maps.db")

	yamlStore, err := OpenSQLite(ctx, path, YAML)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	snap := sampleSnapshot(t, "written-as-yaml")
	if err := yamlStore.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	yamlStore.Close()

	// Rows remember their format, so a JSON store still reads them.
	jsonStore, err := OpenSQLite(ctx, path, JSON)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer jsonStore.Close()
	got, err := jsonStore.Load(ctx, "written-as-yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Errorf("Loaded snapshot differs from saved one")
	}
}

func TestLibraryWithDirStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewDirStore(nil, t.TempDir(), YAML)
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	if err := store.Save(ctx, sampleSnapshot(t, "shared")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	lib, err := mindmap.Init(mindmap.LibraryOptions{Store: store})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer lib.Close()
	d, err := lib.Open(ctx, "shared")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := d.CheckInvariants(); err != nil {
		t.Fatalf("Invariants after open: %v", err)
	}
	if got := len(d.HiddenCrossReferences()); got != 1 {
		t.Errorf("Expected 1 hidden cross-reference after open, got %d", got)
	}
	if d.CanUndo() {
		t.Error("Opened document should have no undo history")
	}
}

func TestWatcher(t *testing.T) {
	ctx := context.Background()
	store, err := NewDirStore(nil, t.TempDir(), JSON)
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	w, err := NewWatcher(store, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	// Saves through the watched store are reported like any other write.
	if err := store.Save(ctx, sampleSnapshot(t, "watched")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	select {
	case id := <-w.Changes():
		if id != "watched" {
			t.Errorf("Expected change for watched, got %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for change notification")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	// Changes closes once the watcher has stopped.
	for range w.Changes() {
	}
}
