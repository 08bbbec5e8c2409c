package valueobject

// Direction 消息方向
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// DirectionFromMe 根据 from_me 标记推导消息方向
func DirectionFromMe(fromMe bool) Direction {
	if fromMe {
		return DirectionOutbound
	}
	return DirectionInbound
}

// Valid 判断方向是否合法
func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}
