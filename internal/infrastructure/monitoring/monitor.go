package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Metrics 指标收集器
type Metrics struct {
	// 摄取计数
	MessagesIngested  uint64
	MessagesDuplicate uint64
	MessagesDropped   uint64

	// 回填
	BackfillRuns          uint64
	BackfillPages         uint64
	BackfillConversations uint64
	BackfillErrors        uint64

	// 会话生命周期
	Reconnects     uint64
	ForceResets    uint64
	ConnectedSlots int64

	// 启动时间
	StartTime time.Time
}

// Monitor 性能监控器
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger
}

// NewMonitor 创建监控器
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		metrics: &Metrics{
			StartTime: time.Now(),
		},
		logger: logger,
	}
}

// 计数方法
func (m *Monitor) IncIngested()             { atomic.AddUint64(&m.metrics.MessagesIngested, 1) }
func (m *Monitor) IncDuplicate()            { atomic.AddUint64(&m.metrics.MessagesDuplicate, 1) }
func (m *Monitor) IncDropped()              { atomic.AddUint64(&m.metrics.MessagesDropped, 1) }
func (m *Monitor) IncBackfillRun()          { atomic.AddUint64(&m.metrics.BackfillRuns, 1) }
func (m *Monitor) IncBackfillPage()         { atomic.AddUint64(&m.metrics.BackfillPages, 1) }
func (m *Monitor) IncBackfillConversation() { atomic.AddUint64(&m.metrics.BackfillConversations, 1) }
func (m *Monitor) IncBackfillError()        { atomic.AddUint64(&m.metrics.BackfillErrors, 1) }
func (m *Monitor) IncReconnect()            { atomic.AddUint64(&m.metrics.Reconnects, 1) }
func (m *Monitor) IncForceReset()           { atomic.AddUint64(&m.metrics.ForceResets, 1) }

func (m *Monitor) AddConnectedSlots(delta int64) {
	atomic.AddInt64(&m.metrics.ConnectedSlots, delta)
}

// GetStats 获取当前统计（/health 用）
func (m *Monitor) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds":     time.Since(m.metrics.StartTime).Seconds(),
		"messages_ingested":  atomic.LoadUint64(&m.metrics.MessagesIngested),
		"messages_duplicate": atomic.LoadUint64(&m.metrics.MessagesDuplicate),
		"messages_dropped":   atomic.LoadUint64(&m.metrics.MessagesDropped),
		"backfill_runs":      atomic.LoadUint64(&m.metrics.BackfillRuns),
		"reconnects":         atomic.LoadUint64(&m.metrics.Reconnects),
		"connected_slots":    atomic.LoadInt64(&m.metrics.ConnectedSlots),
		"goroutines":         runtime.NumGoroutine(),
	}
}

// PrometheusHandler returns an http.Handler that serves Prometheus text format metrics.
// This avoids pulling in the full prometheus/client_golang dependency.
// Mount it at "/metrics" in your HTTP server.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(m.metrics.StartTime).Seconds()

		// Write metrics in Prometheus exposition format
		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			// Ingest counters
			{"chatmirror_messages_ingested_total", "Messages stored as new rows", "counter", atomic.LoadUint64(&m.metrics.MessagesIngested)},
			{"chatmirror_messages_duplicate_total", "Messages ignored as duplicates", "counter", atomic.LoadUint64(&m.metrics.MessagesDuplicate)},
			{"chatmirror_messages_dropped_total", "Messages dropped during normalization", "counter", atomic.LoadUint64(&m.metrics.MessagesDropped)},

			// Backfill counters
			{"chatmirror_backfill_runs_total", "Backfill orchestrations started", "counter", atomic.LoadUint64(&m.metrics.BackfillRuns)},
			{"chatmirror_backfill_pages_total", "History pages fetched", "counter", atomic.LoadUint64(&m.metrics.BackfillPages)},
			{"chatmirror_backfill_conversations_total", "Conversations crawled to completion", "counter", atomic.LoadUint64(&m.metrics.BackfillConversations)},
			{"chatmirror_backfill_errors_total", "Conversations abandoned on page errors", "counter", atomic.LoadUint64(&m.metrics.BackfillErrors)},

			// Session lifecycle
			{"chatmirror_reconnects_total", "Reconnect attempts across all slots", "counter", atomic.LoadUint64(&m.metrics.Reconnects)},
			{"chatmirror_force_resets_total", "Administrative slot resets", "counter", atomic.LoadUint64(&m.metrics.ForceResets)},
			{"chatmirror_connected_slots", "Slots currently in connected state", "gauge", atomic.LoadInt64(&m.metrics.ConnectedSlots)},
			{"chatmirror_uptime_seconds", "Process uptime in seconds", "gauge", uptime},

			// Runtime metrics
			{"chatmirror_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"chatmirror_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
			{"chatmirror_gc_cycles_total", "Total number of completed GC cycles", "counter", memStats.NumGC},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			case uint32:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			}
			fmt.Fprintln(w)
		}
	})
}
