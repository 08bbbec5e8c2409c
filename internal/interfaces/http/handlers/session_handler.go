package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/domain/service"
)

// SessionHandler 会话生命周期接口
type SessionHandler struct {
	sessions *service.SessionManager
	logger   *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions *service.SessionManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

type slotStatusResponse struct {
	Slot           string `json:"slot"`
	State          string `json:"state"`
	Identity       string `json:"identity,omitempty"`
	PairingPending bool   `json:"pairing_pending"`
	Retries        int    `json:"retries"`
}

func toStatusResponse(snap service.SessionSnapshot) slotStatusResponse {
	return slotStatusResponse{
		Slot:           snap.Slot,
		State:          string(snap.State),
		Identity:       snap.Identity,
		PairingPending: snap.PairingPending,
		Retries:        snap.Retries,
	}
}

// ListStatus GET /status — 所有槽位的会话状态
func (h *SessionHandler) ListStatus(c *gin.Context) {
	snaps := h.sessions.Snapshots()
	out := make([]slotStatusResponse, len(snaps))
	for i, snap := range snaps {
		out[i] = toStatusResponse(snap)
	}
	c.JSON(http.StatusOK, gin.H{"slots": out})
}

// Status GET /status/:slot — 单个槽位的会话状态
func (h *SessionHandler) Status(c *gin.Context) {
	snap, err := h.sessions.Status(c.Param("slot"))
	if err != nil {
		if errors.Is(err, entity.ErrUnknownSlot) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown slot"})
			return
		}
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(snap))
}

// Pairing GET /slots/:slot/pairing — 当前配对挑战
func (h *SessionHandler) Pairing(c *gin.Context) {
	snap, err := h.sessions.Status(c.Param("slot"))
	if err != nil {
		if errors.Is(err, entity.ErrUnknownSlot) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown slot"})
			return
		}
		renderError(c, err)
		return
	}
	if snap.PairingChallenge == "" {
		c.JSON(http.StatusOK, gin.H{"pending": false, "message": "none pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": true, "challenge": snap.PairingChallenge})
}

// Reset POST /slots/:slot/reset — 管理操作：丢弃凭据并强制重新配对
func (h *SessionHandler) Reset(c *gin.Context) {
	slot := c.Param("slot")
	if err := h.sessions.ForceReset(slot); err != nil {
		if errors.Is(err, entity.ErrUnknownSlot) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown slot"})
			return
		}
		h.logger.Error("Force reset failed", zap.String("slot", slot), zap.Error(err))
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot, "state": string(service.StateStarting)})
}
