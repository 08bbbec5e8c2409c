package entity

import "time"

// Tag 运营人员对某个对端的标注（仅追加）
type Tag struct {
	ID          string
	Counterpart string
	Label       string
	CreatedAt   time.Time
}

// NewTag 创建标注
func NewTag(id, counterpart, label string) (*Tag, error) {
	if counterpart == "" {
		return nil, ErrEmptyCounterpart
	}
	return &Tag{
		ID:          id,
		Counterpart: counterpart,
		Label:       label,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
