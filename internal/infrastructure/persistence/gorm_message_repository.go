package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/domain/repository"
	"github.com/chatmirror/gateway/internal/domain/valueobject"
	"github.com/chatmirror/gateway/internal/infrastructure/persistence/models"
	domainErrors "github.com/chatmirror/gateway/pkg/errors"
)

// GormMessageRepository GORM 实现的消息仓储
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GORM 消息仓储
func NewGormMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &GormMessageRepository{
		db: db,
	}
}

// Ingest 幂等写入消息
//
// 以去重唯一索引为冲突目标做 insert-or-ignore；RowsAffected == 0 表示
// 重复投递（实时流与回填重叠属于正常情况），不算错误。
func (r *GormMessageRepository) Ingest(ctx context.Context, message *entity.Message) (bool, error) {
	model := r.toModel(message)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, domainErrors.NewStoreWriteError("failed to ingest message", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Inbox 每个 (slot, counterpart) 的最新一条消息，时间戳降序
//
// 同一对端同一时间戳可能有多条（方向/文本不同），在 SQL 内以最大 id 收敛
// 为每组恰好一行，再套 limit——并列行不会占用 limit 名额。
func (r *GormMessageRepository) Inbox(ctx context.Context, slot string, limit int) ([]entity.InboxEntry, error) {
	latest := r.db.WithContext(ctx).Model(&models.MessageModel{}).
		Select("slot, counterpart, MAX(timestamp) AS max_ts").
		Group("slot").Group("counterpart")
	if slot != "" {
		latest = latest.Where("slot = ?", slot)
	}

	pick := r.db.WithContext(ctx).Model(&models.MessageModel{}).
		Select("MAX(messages.id) AS max_id").
		Joins("JOIN (?) AS latest ON messages.slot = latest.slot AND messages.counterpart = latest.counterpart AND messages.timestamp = latest.max_ts", latest).
		Group("messages.slot").Group("messages.counterpart")

	var rows []models.MessageModel
	err := r.db.WithContext(ctx).Model(&models.MessageModel{}).
		Where("id IN (?)", pick).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to query inbox: " + err.Error())
	}

	entries := make([]entity.InboxEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, entity.InboxEntry{
			Slot:        rows[i].Slot,
			Counterpart: rows[i].Counterpart,
			Last:        r.toEntity(&rows[i]),
		})
	}

	return entries, nil
}

// History 单个对端的历史消息，升序返回
//
// before > 0 时做 keyset 分页：取严格早于 before 的最新 limit 条，再反转
// 为时间升序（渲染顺序与内部扫描顺序无关）。
func (r *GormMessageRepository) History(ctx context.Context, slot, counterpart string, before int64, limit int) ([]*entity.Message, error) {
	q := r.db.WithContext(ctx).
		Where("slot = ? AND counterpart = ?", slot, counterpart)
	if before > 0 {
		q = q.Where("timestamp < ?", before)
	}

	var rows []models.MessageModel
	err := q.Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to query history: " + err.Error())
	}

	// 反转为升序
	messages := make([]*entity.Message, len(rows))
	for i := range rows {
		messages[len(rows)-1-i] = r.toEntity(&rows[i])
	}

	return messages, nil
}

// Range 时间区间查询，降序返回
func (r *GormMessageRepository) Range(ctx context.Context, slot string, fromTs, toTs int64, limit int) ([]*entity.Message, error) {
	q := r.db.WithContext(ctx).Model(&models.MessageModel{})
	if slot != "" {
		q = q.Where("slot = ?", slot)
	}
	if fromTs > 0 {
		q = q.Where("timestamp >= ?", fromTs)
	}
	if toTs > 0 {
		q = q.Where("timestamp <= ?", toTs)
	}

	var rows []models.MessageModel
	err := q.Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to query range: " + err.Error())
	}

	messages := make([]*entity.Message, len(rows))
	for i := range rows {
		messages[i] = r.toEntity(&rows[i])
	}

	return messages, nil
}

// slotStatsRow 聚合查询的扫描目标
type slotStatsRow struct {
	Slot                 string
	MessageCount         int64
	DistinctCounterparts int64
}

// Stats 区间内按槽位聚合的消息数与对端数
func (r *GormMessageRepository) Stats(ctx context.Context, slot string, fromTs, toTs int64) (*entity.StatsReport, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.MessageModel{})
		if slot != "" {
			q = q.Where("slot = ?", slot)
		}
		if fromTs > 0 {
			q = q.Where("timestamp >= ?", fromTs)
		}
		if toTs > 0 {
			q = q.Where("timestamp <= ?", toTs)
		}
		return q
	}

	var rows []slotStatsRow
	err := base().
		Select("slot, COUNT(*) AS message_count, COUNT(DISTINCT counterpart) AS distinct_counterparts").
		Group("slot").
		Order("slot").
		Scan(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to aggregate stats: " + err.Error())
	}

	report := &entity.StatsReport{
		PerSlot: make([]entity.SlotStats, 0, len(rows)),
	}
	for _, row := range rows {
		report.PerSlot = append(report.PerSlot, entity.SlotStats{
			Slot:                 row.Slot,
			MessageCount:         row.MessageCount,
			DistinctCounterparts: row.DistinctCounterparts,
		})
		report.Totals.MessageCount += row.MessageCount
	}

	// 跨槽位的去重对端数需要单独聚合（同一对端可能出现在多个槽位）
	var totalDistinct int64
	err = base().
		Distinct("counterpart").
		Count(&totalDistinct).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to aggregate stats: " + err.Error())
	}
	report.Totals.DistinctCounterparts = totalDistinct

	return report, nil
}

// 转换方法

func (r *GormMessageRepository) toModel(message *entity.Message) *models.MessageModel {
	return &models.MessageModel{
		Slot:           message.Slot(),
		ConversationID: message.ConversationID(),
		Counterpart:    message.Counterpart(),
		Timestamp:      message.Timestamp(),
		Direction:      string(message.Direction()),
		Text:           message.Text(),
	}
}

func (r *GormMessageRepository) toEntity(model *models.MessageModel) *entity.Message {
	return entity.ReconstructMessage(
		model.Slot,
		model.ConversationID,
		model.Counterpart,
		model.Timestamp,
		valueobject.Direction(model.Direction),
		model.Text,
	)
}
