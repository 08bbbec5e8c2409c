package models

import "time"

// TagModel 数据库标注模型（仅追加）
type TagModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Counterpart string `gorm:"size:128;not null;index"`
	Label       string `gorm:"size:255"`
	CreatedAt   time.Time
}

// TableName 指定表名
func (TagModel) TableName() string {
	return "tags"
}
