package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/domain/repository"
	"github.com/chatmirror/gateway/internal/infrastructure/persistence/models"
	domainErrors "github.com/chatmirror/gateway/pkg/errors"
)

// GormTagRepository GORM 实现的标注仓储
type GormTagRepository struct {
	db *gorm.DB
}

// NewGormTagRepository 创建 GORM 标注仓储
func NewGormTagRepository(db *gorm.DB) repository.TagRepository {
	return &GormTagRepository{
		db: db,
	}
}

// Add 追加一条标注
func (r *GormTagRepository) Add(ctx context.Context, tag *entity.Tag) error {
	model := &models.TagModel{
		ID:          tag.ID,
		Counterpart: tag.Counterpart,
		Label:       tag.Label,
		CreatedAt:   tag.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewStoreWriteError("failed to add tag", err)
	}
	return nil
}

// FindByCounterpart 查找某对端的全部标注，按创建时间升序
func (r *GormTagRepository) FindByCounterpart(ctx context.Context, counterpart string) ([]*entity.Tag, error) {
	var rows []models.TagModel
	err := r.db.WithContext(ctx).
		Where("counterpart = ?", counterpart).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to find tags: " + err.Error())
	}

	tags := make([]*entity.Tag, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, &entity.Tag{
			ID:          row.ID,
			Counterpart: row.Counterpart,
			Label:       row.Label,
			CreatedAt:   row.CreatedAt,
		})
	}
	return tags, nil
}
