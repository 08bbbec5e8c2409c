package repository

import (
	"context"

	"github.com/chatmirror/gateway/internal/domain/entity"
)

// MessageRepository 消息仓储接口
//
// 写路径只有 Ingest 一个操作：以 (slot, conversation_id, timestamp,
// direction, text) 为唯一键做 insert-if-absent。读路径均在查询时重排序，
// 不依赖插入顺序。
type MessageRepository interface {
	// Ingest 幂等写入；返回 true 表示新行，false 表示重复被忽略
	Ingest(ctx context.Context, message *entity.Message) (bool, error)

	// Inbox 每个 (slot, counterpart) 的最新一条消息，按时间戳降序。
	// slot 为空表示全部槽位。
	Inbox(ctx context.Context, slot string, limit int) ([]entity.InboxEntry, error)

	// History 单个对端的历史消息，升序返回。
	// before > 0 时做 keyset 分页：只取严格早于 before 的最新 limit 条。
	History(ctx context.Context, slot, counterpart string, before int64, limit int) ([]*entity.Message, error)

	// Range 时间区间查询，降序返回。slot 为空表示全部槽位。
	Range(ctx context.Context, slot string, fromTs, toTs int64, limit int) ([]*entity.Message, error)

	// Stats 区间内按槽位聚合的消息数与对端数。slot 为空表示全部槽位。
	Stats(ctx context.Context, slot string, fromTs, toTs int64) (*entity.StatsReport, error)
}
