package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/channel"
	"github.com/chatmirror/gateway/internal/infrastructure/monitoring"
)

// BackfillConfig tunes the historical crawl. All knobs are hot-reloadable
// through the tuning watcher; a running orchestration keeps the config it
// started with.
type BackfillConfig struct {
	Concurrency        int           // max conversations crawled in parallel per slot
	PageSize           int           // messages requested per history page
	MaxPerConversation int           // hard cap of messages pulled per conversation per cycle
	ListRetries        int           // retries waiting for the conversation set to populate
	ListRetryDelay     time.Duration // delay between those retries
}

// DefaultBackfillConfig returns the stock tuning.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		Concurrency:        3,
		PageSize:           50,
		MaxPerConversation: 500,
		ListRetries:        5,
		ListRetryDelay:     2 * time.Second,
	}
}

// BackfillOrchestrator crawls a freshly connected slot's conversation
// history into the store. Concurrency per slot is bounded by
// Concurrency; a page failure abandons that one conversation for the
// cycle and the rest continue. Correctness never depends on running at
// most once — ingestion is insert-if-absent — the run-once guard on the
// session exists purely to bound cost.
type BackfillOrchestrator struct {
	mu       sync.RWMutex
	cfg      BackfillConfig
	ingestor *Ingestor
	monitor  *monitoring.Monitor
	logger   *zap.Logger
}

// NewBackfillOrchestrator creates the orchestrator.
func NewBackfillOrchestrator(cfg BackfillConfig, ingestor *Ingestor, monitor *monitoring.Monitor, logger *zap.Logger) *BackfillOrchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultBackfillConfig().Concurrency
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultBackfillConfig().PageSize
	}
	return &BackfillOrchestrator{
		cfg:      cfg,
		ingestor: ingestor,
		monitor:  monitor,
		logger:   logger.With(zap.String("component", "backfill")),
	}
}

// Config returns the current tuning (thread-safe).
func (b *BackfillOrchestrator) Config() BackfillConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// SetConfig replaces the tuning. Takes effect on the next Run.
func (b *BackfillOrchestrator) SetConfig(cfg BackfillConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cfg.Concurrency > 0 {
		b.cfg.Concurrency = cfg.Concurrency
	}
	if cfg.PageSize > 0 {
		b.cfg.PageSize = cfg.PageSize
	}
	if cfg.MaxPerConversation > 0 {
		b.cfg.MaxPerConversation = cfg.MaxPerConversation
	}
	if cfg.ListRetries > 0 {
		b.cfg.ListRetries = cfg.ListRetries
	}
	if cfg.ListRetryDelay > 0 {
		b.cfg.ListRetryDelay = cfg.ListRetryDelay
	}
}

// Run performs one backfill cycle for a connected slot. Blocks until every
// admitted conversation finished or ctx is cancelled. Errors are logged,
// never returned — backfill is fire-and-forget from the session loop's
// point of view.
func (b *BackfillOrchestrator) Run(ctx context.Context, slot string, handle channel.Handle) {
	cfg := b.Config()
	log := b.logger.With(zap.String("slot", slot))
	b.monitor.IncBackfillRun()

	conversations := b.waitForConversations(ctx, handle, cfg, log)
	if len(conversations) == 0 {
		log.Info("Backfill found no conversations to crawl")
		return
	}

	log.Info("Backfill starting",
		zap.Int("conversations", len(conversations)),
		zap.Int("concurrency", cfg.Concurrency),
	)

	// Fixed worker pool: at most Concurrency conversations in flight, the
	// next queued conversation starts as one finishes.
	jobs := make(chan string)
	var wg sync.WaitGroup
	workers := cfg.Concurrency
	if workers > len(conversations) {
		workers = len(conversations)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for conversationID := range jobs {
				b.crawlConversation(ctx, slot, handle, conversationID, cfg, log)
			}
		}()
	}

	for _, conversationID := range conversations {
		select {
		case <-ctx.Done():
			log.Info("Backfill cancelled before all conversations were admitted")
			close(jobs)
			wg.Wait()
			return
		case jobs <- conversationID:
		}
	}
	close(jobs)
	wg.Wait()

	log.Info("Backfill finished", zap.Int("conversations", len(conversations)))
}

// waitForConversations polls the client for the conversation set. The set
// may be empty right after connect and populate asynchronously, so a few
// bounded retries are allowed before proceeding with whatever is there.
func (b *BackfillOrchestrator) waitForConversations(ctx context.Context, handle channel.Handle, cfg BackfillConfig, log *zap.Logger) []string {
	for attempt := 0; ; attempt++ {
		conversations, err := handle.ListKnownConversations(ctx)
		if err != nil {
			log.Warn("Listing known conversations failed", zap.Error(err))
		} else if len(conversations) > 0 {
			return conversations
		}

		if attempt >= cfg.ListRetries {
			return conversations
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.ListRetryDelay):
		}
	}
}

// crawlConversation pages one conversation until it is exhausted, the
// per-conversation cap is hit, or a page fetch fails. A failure abandons
// only this conversation for the cycle. The cap counts messages pulled
// from the channel, not rows stored: on a reconnect over an already
// mirrored conversation every page deduplicates to zero inserts, and a
// stored-row cap would re-page the entire history each cycle.
func (b *BackfillOrchestrator) crawlConversation(ctx context.Context, slot string, handle channel.Handle, conversationID string, cfg BackfillConfig, log *zap.Logger) {
	cursor := ""
	seen := 0
	stored := 0

	for {
		if ctx.Err() != nil {
			return
		}

		page, err := handle.FetchHistoryPage(ctx, conversationID, cfg.PageSize, cursor)
		if err != nil {
			b.monitor.IncBackfillError()
			log.Warn("History page fetch failed, abandoning conversation for this cycle",
				zap.String("conversation_id", conversationID),
				zap.Int("stored", stored),
				zap.Error(err),
			)
			return
		}
		b.monitor.IncBackfillPage()

		n, err := b.ingestor.IngestBatch(ctx, slot, page.Messages)
		if err != nil {
			log.Error("Backfill ingestion failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			return
		}
		stored += n
		seen += len(page.Messages)

		if cfg.MaxPerConversation > 0 && seen >= cfg.MaxPerConversation {
			break
		}
		if page.NextCursor == "" || len(page.Messages) < cfg.PageSize {
			break
		}
		cursor = page.NextCursor
	}

	b.monitor.IncBackfillConversation()
	log.Debug("Conversation backfilled",
		zap.String("conversation_id", conversationID),
		zap.Int("seen", seen),
		zap.Int("stored", stored),
	)
}
