package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/domain/repository"
	apperrors "github.com/chatmirror/gateway/pkg/errors"
)

// QueryConfig bounds client-supplied paging.
type QueryConfig struct {
	DefaultLimit int
	MaxLimit     int // hard ceiling, enforced regardless of the requested value
}

// DefaultQueryConfig returns the stock limits.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		DefaultLimit: 50,
		MaxLimit:     200,
	}
}

// QueryService 只读查询门面
//
// 包装消息/标注仓储的查询操作：校验必填参数、把客户端传入的 limit 钳制到
// 硬上限，然后委托仓储。无状态，可被 HTTP 层并发调用。
type QueryService struct {
	mu       sync.RWMutex
	cfg      QueryConfig
	messages repository.MessageRepository
	tags     repository.TagRepository
	logger   *zap.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(cfg QueryConfig, messages repository.MessageRepository, tags repository.TagRepository, logger *zap.Logger) *QueryService {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultQueryConfig().MaxLimit
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = DefaultQueryConfig().DefaultLimit
	}
	return &QueryService{
		cfg:      cfg,
		messages: messages,
		tags:     tags,
		logger:   logger.With(zap.String("component", "query-service")),
	}
}

// Config 返回当前限额配置
func (q *QueryService) Config() QueryConfig {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cfg
}

// SetConfig 热更新限额配置
func (q *QueryService) SetConfig(cfg QueryConfig) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cfg.MaxLimit > 0 {
		q.cfg.MaxLimit = cfg.MaxLimit
	}
	if cfg.DefaultLimit > 0 && cfg.DefaultLimit <= q.cfg.MaxLimit {
		q.cfg.DefaultLimit = cfg.DefaultLimit
	}
}

// clamp 钳制 limit：<=0 用默认值，超过硬上限取硬上限
func (q *QueryService) clamp(limit int) int {
	cfg := q.Config()
	if limit <= 0 {
		return cfg.DefaultLimit
	}
	if limit > cfg.MaxLimit {
		return cfg.MaxLimit
	}
	return limit
}

// Inbox 收件箱：每个 (slot, counterpart) 的最新一条消息，时间戳降序
func (q *QueryService) Inbox(ctx context.Context, slot string, limit int) ([]entity.InboxEntry, error) {
	return q.messages.Inbox(ctx, slot, q.clamp(limit))
}

// History 单个对端的历史，升序；slot 与 counterpart 必填
func (q *QueryService) History(ctx context.Context, slot, counterpart string, before int64, limit int) ([]*entity.Message, error) {
	if slot == "" {
		return nil, apperrors.NewInvalidInputError("slot is required")
	}
	if counterpart == "" {
		return nil, apperrors.NewInvalidInputError("counterpart is required")
	}
	return q.messages.History(ctx, slot, counterpart, before, q.clamp(limit))
}

// Range 时间区间查询，降序
func (q *QueryService) Range(ctx context.Context, slot string, fromTs, toTs int64, limit int) ([]*entity.Message, error) {
	if fromTs > 0 && toTs > 0 && fromTs > toTs {
		return nil, apperrors.NewInvalidInputError("from must not be after to")
	}
	return q.messages.Range(ctx, slot, fromTs, toTs, q.clamp(limit))
}

// Stats 聚合统计
func (q *QueryService) Stats(ctx context.Context, slot string, fromTs, toTs int64) (*entity.StatsReport, error) {
	return q.messages.Stats(ctx, slot, fromTs, toTs)
}

// AddTag 追加一条对端标注；counterpart 为空返回校验错误
func (q *QueryService) AddTag(ctx context.Context, id, counterpart, label string) (*entity.Tag, error) {
	tag, err := entity.NewTag(id, counterpart, label)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("counterpart is required")
	}
	if err := q.tags.Add(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// TagsFor 查询某对端的全部标注
func (q *QueryService) TagsFor(ctx context.Context, counterpart string) ([]*entity.Tag, error) {
	if counterpart == "" {
		return nil, apperrors.NewInvalidInputError("counterpart is required")
	}
	return q.tags.FindByCounterpart(ctx, counterpart)
}
