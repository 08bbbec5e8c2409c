package bridge

import "github.com/chatmirror/gateway/internal/domain/channel"

// FrameType 桥接协议帧类型
type FrameType string

const (
	// 网关 → 桥接进程
	FrameConnect        FrameType = "connect"
	FrameHistoryRequest FrameType = "history_request"
	FrameListRequest    FrameType = "list_request"

	// 桥接进程 → 网关
	FrameConnectionState FrameType = "connection_state"
	FrameMessages        FrameType = "messages"
	FrameCredsUpdate     FrameType = "creds_update"
	FrameHistoryResponse FrameType = "history_response"
	FrameListResponse    FrameType = "list_response"
	FrameError           FrameType = "error"
)

// WireMessage 桥接 WebSocket 帧
//
// 单一信封结构，按 Type 解释字段；与桥接进程（Node 侧）约定的 JSON 协议
// 一一对应。凭据 blob 走 base64，网关不解析其内容。
type WireMessage struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id,omitempty"` // RPC 关联 ID
	Slot string    `json:"slot,omitempty"`

	// connect / creds_update
	Token string `json:"token,omitempty"`
	Creds string `json:"creds,omitempty"` // base64 凭据 blob

	// connection_state
	State     string `json:"state,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// messages / history_response
	Messages   []WireRawMessage `json:"messages,omitempty"`
	Historical bool             `json:"historical,omitempty"`
	Final      bool             `json:"final,omitempty"`

	// history_request / history_response
	ConversationID string `json:"conversation_id,omitempty"`
	PageSize       int    `json:"page_size,omitempty"`
	Cursor         string `json:"cursor,omitempty"`
	NextCursor     string `json:"next_cursor,omitempty"`

	// list_response
	Conversations []string `json:"conversations,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// WireRawMessage 桥接传来的单条消息
type WireRawMessage struct {
	ConversationID string `json:"conversation_id"`
	Timestamp      int64  `json:"timestamp"`
	FromMe         bool   `json:"from_me"`
	Kind           string `json:"kind"`
	Text           string `json:"text"`
}

// toRaw 转换为通道层消息
func toRaw(wire []WireRawMessage) []channel.RawMessage {
	out := make([]channel.RawMessage, len(wire))
	for i, m := range wire {
		out[i] = channel.RawMessage{
			ConversationID: m.ConversationID,
			Timestamp:      m.Timestamp,
			FromMe:         m.FromMe,
			Kind:           m.Kind,
			Text:           m.Text,
		}
	}
	return out
}

// toConnState 映射桥接连接状态
func toConnState(state string) channel.ConnState {
	switch state {
	case "open":
		return channel.ConnOpen
	case "close":
		return channel.ConnClose
	default:
		return channel.ConnConnecting
	}
}

// toDisconnectReason 映射断开原因；显式登出是唯一的终态原因
func toDisconnectReason(reason string) channel.DisconnectReason {
	switch reason {
	case "logged_out", "logout", "401":
		return channel.ReasonLoggedOut
	case "":
		return channel.ReasonNone
	default:
		return channel.ReasonTransport
	}
}
