package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestTuningReloadAppliesNewValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	query := newTestQuery(newMemoryMessageRepo())
	backfill := newTestBackfill(DefaultBackfillConfig(), newMemoryMessageRepo())
	w := NewTuningWatcher(path, query, backfill, zap.NewNop())

	content := `
query:
  default_limit: 25
  max_limit: 100
backfill:
  concurrency: 5
  page_size: 80
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	w.reload()

	if cfg := query.Config(); cfg.DefaultLimit != 25 || cfg.MaxLimit != 100 {
		t.Errorf("query config = %+v", cfg)
	}
	cfg := backfill.Config()
	if cfg.Concurrency != 5 || cfg.PageSize != 80 {
		t.Errorf("backfill config = %+v", cfg)
	}
	// Knobs absent from the file keep their previous values.
	if cfg.MaxPerConversation != DefaultBackfillConfig().MaxPerConversation {
		t.Errorf("cap = %d, want unchanged", cfg.MaxPerConversation)
	}
}

func TestTuningReloadKeepsValuesOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	query := newTestQuery(newMemoryMessageRepo())
	backfill := newTestBackfill(DefaultBackfillConfig(), newMemoryMessageRepo())
	w := NewTuningWatcher(path, query, backfill, zap.NewNop())

	if err := os.WriteFile(path, []byte("query: [unbalanced"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	w.reload()

	if cfg := query.Config(); cfg.MaxLimit != 200 {
		t.Errorf("broken file changed config: %+v", cfg)
	}
}

func TestTuningWatcherPicksUpFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	query := newTestQuery(newMemoryMessageRepo())
	backfill := newTestBackfill(DefaultBackfillConfig(), newMemoryMessageRepo())
	w := NewTuningWatcher(path, query, backfill, zap.NewNop())

	go w.Start()
	defer w.Stop()
	time.Sleep(50 * time.Millisecond) // let the watch register

	content := "backfill:\n  concurrency: 9\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return backfill.Config().Concurrency == 9
	}, "tuning applied after file write")
}
