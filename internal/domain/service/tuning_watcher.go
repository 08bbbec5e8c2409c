package service

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Tuning is the hot-reloadable subset of the configuration: query limits
// and backfill knobs. Everything else (slots, database, bridge) requires a
// restart.
type Tuning struct {
	Query    QueryConfig
	Backfill BackfillConfig
}

// TuningWatcher watches the config file and pushes changed tuning into the
// query service and the backfill orchestrator. Safe against partial writes:
// a file that fails to parse keeps the previous tuning.
//
// Usage:
//
//	watcher := NewTuningWatcher(path, query, backfill, logger)
//	go watcher.Start()
//	defer watcher.Stop()
type TuningWatcher struct {
	path     string
	query    *QueryService
	backfill *BackfillOrchestrator
	logger   *zap.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewTuningWatcher creates the watcher. The file does not need to exist
// yet — creation events are handled like writes.
func NewTuningWatcher(path string, query *QueryService, backfill *BackfillOrchestrator, logger *zap.Logger) *TuningWatcher {
	return &TuningWatcher{
		path:     path,
		query:    query,
		backfill: backfill,
		logger:   logger.With(zap.String("component", "tuning-watcher")),
		stopCh:   make(chan struct{}),
	}
}

// Start watches the config file for changes. Blocks until Stop is called.
func (w *TuningWatcher) Start() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("Tuning watcher unavailable", zap.Error(err))
		return
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go quiet.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		w.logger.Warn("Cannot watch config directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	w.logger.Info("Tuning watcher started", zap.String("path", w.path))

	var debounce *time.Timer
	for {
		select {
		case <-w.stopCh:
			w.logger.Info("Tuning watcher stopped")
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Debounce bursts of write events from a single save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, w.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Tuning watcher error", zap.Error(err))
		}
	}
}

// Stop signals the watcher to stop.
func (w *TuningWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

func (w *TuningWatcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		return
	}

	v := viper.New()
	v.SetConfigFile(w.path)
	if err := v.ReadInConfig(); err != nil {
		w.logger.Warn("Tuning reload failed, keeping previous values", zap.Error(err))
		return
	}

	tuning := Tuning{
		Query: QueryConfig{
			DefaultLimit: v.GetInt("query.default_limit"),
			MaxLimit:     v.GetInt("query.max_limit"),
		},
		Backfill: BackfillConfig{
			Concurrency:        v.GetInt("backfill.concurrency"),
			PageSize:           v.GetInt("backfill.page_size"),
			MaxPerConversation: v.GetInt("backfill.max_per_conversation"),
			ListRetries:        v.GetInt("backfill.list_retries"),
			ListRetryDelay:     v.GetDuration("backfill.list_retry_delay"),
		},
	}

	w.query.SetConfig(tuning.Query)
	w.backfill.SetConfig(tuning.Backfill)
	w.logger.Info("Tuning reloaded",
		zap.Int("query_max_limit", w.query.Config().MaxLimit),
		zap.Int("backfill_concurrency", w.backfill.Config().Concurrency),
	)
}
