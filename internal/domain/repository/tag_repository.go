package repository

import (
	"context"

	"github.com/chatmirror/gateway/internal/domain/entity"
)

// TagRepository 标注仓储接口（仅追加）
type TagRepository interface {
	// Add 追加一条标注
	Add(ctx context.Context, tag *entity.Tag) error

	// FindByCounterpart 查找某对端的全部标注，按创建时间升序
	FindByCounterpart(ctx context.Context, counterpart string) ([]*entity.Tag, error)
}
