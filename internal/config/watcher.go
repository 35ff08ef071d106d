package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// DefaultDebounceDelay coalesces bursts of writes from editors and
// ConfigMap symlink swaps into one reload.
const DefaultDebounceDelay = 100 * time.Millisecond

// ConfigCallback is called with every successfully validated reload.
type ConfigCallback func(*GatewayConfig)

// ErrorCallback is called when a reload fails to load or validate.
type ErrorCallback func(error)

// Watcher reloads the configuration file when it changes. Invalid
// revisions are reported and skipped; the last good configuration stays
// in effect.
type Watcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      ConfigCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration
	lastConfig    *GatewayConfig
	mu            sync.RWMutex
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	running       bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		if delay > 0 {
			w.debounceDelay = delay
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithErrorCallback sets the reload error callback.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		debounceDelay: DefaultDebounceDelay,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads and validates the file once, then watches its directory
// until ctx is cancelled or Stop is called. The callback is not invoked
// for the initial load; use GetLastConfig.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	cfg, err := loadValidated(w.path)
	if err != nil {
		return err
	}
	w.lastConfig = cfg

	// Watching the directory survives atomic rename-over writes.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.running = true
	go w.watch(ctx)

	w.logger.Info("started watching configuration file",
		observability.String("path", w.path),
	)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// GetLastConfig returns the last successfully loaded configuration.
func (w *Watcher) GetLastConfig() *GatewayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastConfig
}

// ForceReload reloads immediately, bypassing the debounce.
func (w *Watcher) ForceReload() error {
	cfg, err := loadValidated(w.path)
	if err != nil {
		return err
	}
	w.apply(cfg)
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.debounceDelay)
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", observability.Error(err))
			w.reportError(err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (w *Watcher) reload() {
	w.logger.Info("reloading configuration", observability.String("path", w.path))

	cfg, err := loadValidated(w.path)
	if err != nil {
		w.logger.Error("configuration reload rejected, keeping previous revision",
			observability.Error(err),
		)
		w.reportError(err)
		return
	}

	w.apply(cfg)
	w.logger.Info("configuration reloaded successfully")
}

func (w *Watcher) apply(cfg *GatewayConfig) {
	w.mu.Lock()
	w.lastConfig = cfg
	w.mu.Unlock()

	if w.callback != nil {
		w.callback(cfg)
	}
}

func (w *Watcher) reportError(err error) {
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

func loadValidated(path string) (*GatewayConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
