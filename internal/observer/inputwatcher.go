package observer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/logging"
	"github.com/hochfrequenz/docai-batch/internal/source"
)

// ArrivalCallback is called with the documents that arrived during one debounce window, sorted
type ArrivalCallback func(files []string)

// InputWatcher monitors an input folder for new or rewritten documents
type InputWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	callback ArrivalCallback
	debounce time.Duration
	logger   *zap.Logger

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewInputWatcher creates a watcher for dir
func NewInputWatcher(dir string, callback ArrivalCallback, logger *zap.Logger) (*InputWatcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "watch", Path: dir, Err: os.ErrInvalid}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &InputWatcher{
		watcher:  watcher,
		dir:      dir,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		logger:   logging.OrNop(logger),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for file changes
func (w *InputWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("input watcher error", zap.String("dir", w.dir), zap.Error(err))
			}
		}
	}()
}

// Stop stops watching and drops pending arrivals
func (w *InputWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
	w.watcher.Close()
}

func (w *InputWatcher) handleEvent(event fsnotify.Event) {
	if !source.Supported(event.Name) {
		return
	}

	// Only care about writes and creates
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[filepath.Base(event.Name)] = struct{}{}

	// Reset or start debounce timer
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *InputWatcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	sort.Strings(files)
	w.logger.Info("documents arrived", zap.String("dir", w.dir), zap.Int("count", len(files)))
	w.callback(files)
}

// SetDebounce sets the debounce duration for batching file changes
func (w *InputWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}
