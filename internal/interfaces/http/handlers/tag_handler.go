package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/service"
)

// TagHandler 对端标注接口
type TagHandler struct {
	query  *service.QueryService
	logger *zap.Logger
}

// NewTagHandler 创建标注处理器
func NewTagHandler(query *service.QueryService, logger *zap.Logger) *TagHandler {
	return &TagHandler{
		query:  query,
		logger: logger,
	}
}

type addTagRequest struct {
	Counterpart string `json:"counterpart" binding:"required"`
	Label       string `json:"label"`
}

// AddTag POST /tags — 追加一条标注
func (h *TagHandler) AddTag(c *gin.Context) {
	var req addTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tag, err := h.query.AddTag(c.Request.Context(), uuid.NewString(), req.Counterpart, req.Label)
	if err != nil {
		h.logger.Error("Add tag failed", zap.String("counterpart", req.Counterpart), zap.Error(err))
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          tag.ID,
		"counterpart": tag.Counterpart,
		"label":       tag.Label,
		"created_at":  tag.CreatedAt,
	})
}

// ListTags GET /tags?counterpart= — 某对端的全部标注
func (h *TagHandler) ListTags(c *gin.Context) {
	tags, err := h.query.TagsFor(c.Request.Context(), c.Query("counterpart"))
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]gin.H, len(tags))
	for i, t := range tags {
		out[i] = gin.H{
			"id":          t.ID,
			"counterpart": t.Counterpart,
			"label":       t.Label,
			"created_at":  t.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"tags": out})
}
