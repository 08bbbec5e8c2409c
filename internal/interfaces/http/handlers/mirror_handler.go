package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/domain/service"
)

// MirrorHandler 镜像数据读取接口
type MirrorHandler struct {
	query  *service.QueryService
	logger *zap.Logger
}

// NewMirrorHandler 创建镜像数据处理器
func NewMirrorHandler(query *service.QueryService, logger *zap.Logger) *MirrorHandler {
	return &MirrorHandler{
		query:  query,
		logger: logger,
	}
}

type inboxEntryResponse struct {
	Slot        string      `json:"slot"`
	Counterpart string      `json:"counterpart"`
	LastMessage messageJSON `json:"last_message"`
}

// Inbox GET /inbox?slot=&limit= — 每个对端的最新一条消息
func (h *MirrorHandler) Inbox(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	entries, err := h.query.Inbox(c.Request.Context(), c.Query("slot"), limit)
	if err != nil {
		h.logger.Error("Inbox query failed", zap.Error(err))
		renderError(c, err)
		return
	}

	out := make([]inboxEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = inboxEntryResponse{
			Slot:        e.Slot,
			Counterpart: e.Counterpart,
			LastMessage: toMessageJSON(e.Last),
		}
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// History GET /history?slot=&counterpart=&before=&limit= — 单对端历史，升序
func (h *MirrorHandler) History(c *gin.Context) {
	before, ok := queryInt64(c, "before")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before"})
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	messages, err := h.query.History(c.Request.Context(), c.Query("slot"), c.Query("counterpart"), before, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toMessagesJSON(messages)})
}

// Range GET /range?slot=&from=&to=&limit= — 时间区间，降序
func (h *MirrorHandler) Range(c *gin.Context) {
	from, ok := queryInt64(c, "from")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, ok := queryInt64(c, "to")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	messages, err := h.query.Range(c.Request.Context(), c.Query("slot"), from, to, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toMessagesJSON(messages)})
}

type slotStatsResponse struct {
	Slot                 string `json:"slot"`
	MessageCount         int64  `json:"message_count"`
	DistinctCounterparts int64  `json:"distinct_counterparts"`
}

// Stats GET /stats?slot=&from=&to= — 按槽位聚合统计
func (h *MirrorHandler) Stats(c *gin.Context) {
	from, ok := queryInt64(c, "from")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, ok := queryInt64(c, "to")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}

	report, err := h.query.Stats(c.Request.Context(), c.Query("slot"), from, to)
	if err != nil {
		h.logger.Error("Stats query failed", zap.Error(err))
		renderError(c, err)
		return
	}

	perSlot := make([]slotStatsResponse, len(report.PerSlot))
	for i, s := range report.PerSlot {
		perSlot[i] = toSlotStatsResponse(s)
	}
	c.JSON(http.StatusOK, gin.H{
		"per_slot": perSlot,
		"totals":   toSlotStatsResponse(report.Totals),
	})
}

func toSlotStatsResponse(s entity.SlotStats) slotStatsResponse {
	return slotStatsResponse{
		Slot:                 s.Slot,
		MessageCount:         s.MessageCount,
		DistinctCounterparts: s.DistinctCounterparts,
	}
}
