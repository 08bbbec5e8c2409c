package entity

// InboxEntry 收件箱条目：某 (slot, counterpart) 的最新一条消息
type InboxEntry struct {
	Slot        string
	Counterpart string
	Last        *Message
}

// SlotStats 单个槽位的聚合统计
type SlotStats struct {
	Slot                 string
	MessageCount         int64
	DistinctCounterparts int64
}

// StatsReport 聚合统计结果
type StatsReport struct {
	PerSlot []SlotStats
	Totals  SlotStats
}
