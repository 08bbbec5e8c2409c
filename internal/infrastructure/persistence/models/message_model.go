package models

import "time"

// MessageModel 数据库消息模型
//
// 去重唯一键为 (slot, conversation_id, timestamp, direction, text) 组合
// 索引；同一元组重复写入由 insert-or-ignore 吸收，永不更新。
type MessageModel struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Slot           string `gorm:"size:64;not null;uniqueIndex:idx_messages_dedup;index:idx_messages_thread,priority:1"`
	ConversationID string `gorm:"size:128;not null;uniqueIndex:idx_messages_dedup"`
	Counterpart    string `gorm:"size:128;not null;index:idx_messages_thread,priority:2"`
	Timestamp      int64  `gorm:"not null;uniqueIndex:idx_messages_dedup;index:idx_messages_thread,priority:3;index:idx_messages_ts"`
	Direction      string `gorm:"size:16;not null;uniqueIndex:idx_messages_dedup"`
	Text           string `gorm:"type:text;not null;uniqueIndex:idx_messages_dedup"`
	CreatedAt      time.Time
}

// TableName 指定表名
func (MessageModel) TableName() string {
	return "messages"
}
