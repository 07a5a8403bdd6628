package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of writes to one snapshot file.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports documents whose snapshot files in a DirStore changed on
// disk. Saves made through the watched store itself are reported too.
type Watcher struct {
	store   *DirStore
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	debounce time.Duration
	changes  chan string

	mu       sync.Mutex
	pending  map[string]*time.Timer
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher on the store directory. Call Start to begin.
func NewWatcher(store *DirStore, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    store,
		watcher:  fw,
		logger:   logger.With(slog.String("watch", store.Dir())),
		debounce: DefaultDebounce,
		changes:  make(chan string, 16),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a change is reported.
// Must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Changes delivers the IDs of changed documents.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.store.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", w.store.Dir(), err)
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.watchLoop()
	return nil
}

// Stop shuts the watcher down and closes the Changes channel.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	defer func() {
		w.cancel()
		w.mu.Lock()
		for id, t := range w.pending {
			t.Stop()
			delete(w.pending, id)
		}
		w.mu.Unlock()
		w.inflight.Wait()
		close(w.changes)
		close(w.done)
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Saves land through a rename, so Create covers them too.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			id, ok := w.store.IDFromPath(event.Name)
			if !ok {
				continue
			}
			w.schedule(id)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

// schedule reports id once no event for it arrived for the debounce period.
func (w *Watcher) schedule(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		_, live := w.pending[id]
		delete(w.pending, id)
		if live {
			w.inflight.Add(1)
		}
		w.mu.Unlock()
		if !live {
			return
		}
		defer w.inflight.Done()
		select {
		case w.changes <- id:
		case <-w.ctx.Done():
		}
	})
}
