package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chatmirror/gateway/internal/domain/entity"
	apperrors "github.com/chatmirror/gateway/pkg/errors"
)

// messageJSON 消息响应体
type messageJSON struct {
	Slot           string `json:"slot"`
	ConversationID string `json:"conversation_id"`
	Counterpart    string `json:"counterpart"`
	Timestamp      int64  `json:"timestamp"`
	Direction      string `json:"direction"`
	Text           string `json:"text"`
}

func toMessageJSON(m *entity.Message) messageJSON {
	return messageJSON{
		Slot:           m.Slot(),
		ConversationID: m.ConversationID(),
		Counterpart:    m.Counterpart(),
		Timestamp:      m.Timestamp(),
		Direction:      string(m.Direction()),
		Text:           m.Text(),
	}
}

func toMessagesJSON(msgs []*entity.Message) []messageJSON {
	out := make([]messageJSON, len(msgs))
	for i, m := range msgs {
		out[i] = toMessageJSON(m)
	}
	return out
}

// queryInt64 解析可选的数字查询参数；缺省返回 0
func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// queryLimit 解析可选的 limit 参数；钳制在服务层做
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// renderError 统一错误映射：校验错误 400，未知资源 404，其余 500
func renderError(c *gin.Context, err error) {
	switch {
	case apperrors.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
