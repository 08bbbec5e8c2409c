package entity

import (
	"time"

	"github.com/chatmirror/gateway/internal/domain/valueobject"
)

// Message 镜像消息实体（入库后不可变）
type Message struct {
	slot           string
	conversationID string
	counterpart    string
	timestamp      int64 // 毫秒时间戳
	direction      valueobject.Direction
	text           string
}

// NewMessage 创建归一化后的镜像消息（工厂方法）
//
// 校验去重键的所有组成字段；timestamp 为 0 时取当前摄取时间。
func NewMessage(
	slot string,
	conversationID string,
	counterpart string,
	timestamp int64,
	direction valueobject.Direction,
	text string,
) (*Message, error) {
	if slot == "" {
		return nil, ErrInvalidSlot
	}
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}
	if counterpart == "" {
		return nil, ErrNoCounterpart
	}
	if !direction.Valid() {
		return nil, ErrInvalidDirection
	}
	if timestamp <= 0 {
		timestamp = time.Now().UnixMilli()
	}

	return &Message{
		slot:           slot,
		conversationID: conversationID,
		counterpart:    counterpart,
		timestamp:      timestamp,
		direction:      direction,
		text:           text,
	}, nil
}

// ReconstructMessage 重建消息（用于从持久化层恢复，不做校验）
func ReconstructMessage(
	slot string,
	conversationID string,
	counterpart string,
	timestamp int64,
	direction valueobject.Direction,
	text string,
) *Message {
	return &Message{
		slot:           slot,
		conversationID: conversationID,
		counterpart:    counterpart,
		timestamp:      timestamp,
		direction:      direction,
		text:           text,
	}
}

// Slot 返回所属账号槽位
func (m *Message) Slot() string {
	return m.slot
}

// ConversationID 返回网络级会话ID
func (m *Message) ConversationID() string {
	return m.conversationID
}

// Counterpart 返回归一化对端标识
func (m *Message) Counterpart() string {
	return m.counterpart
}

// Timestamp 返回毫秒时间戳
func (m *Message) Timestamp() int64 {
	return m.timestamp
}

// Direction 返回消息方向
func (m *Message) Direction() valueobject.Direction {
	return m.direction
}

// Text 返回归一化文本
func (m *Message) Text() string {
	return m.text
}

// IsInbound 判断是否为入站消息（业务规则）
func (m *Message) IsInbound() bool {
	return m.direction == valueobject.DirectionInbound
}
