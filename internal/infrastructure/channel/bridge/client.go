package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/channel"
	apperrors "github.com/chatmirror/gateway/pkg/errors"
)

// Config 桥接客户端配置
type Config struct {
	URL            string        // 桥接进程 WebSocket 地址
	Token          string        // 桥接鉴权令牌
	HandshakeWait  time.Duration // 拨号超时
	CallTimeout    time.Duration // 单次 RPC 超时
	EventBufferLen int           // 每槽位事件队列长度
}

// Client 通过独立桥接进程接入消息网络的通道客户端实现
//
// 每个槽位一条 WebSocket 连接；桥接进程持有真正的网络会话，网关只消费
// 其事件流并通过 RPC 帧拉取历史分页。实现 channel.Client 能力接口。
type Client struct {
	cfg    Config
	logger *zap.Logger
}

// NewClient 创建桥接客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.HandshakeWait <= 0 {
		cfg.HandshakeWait = 15 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.EventBufferLen <= 0 {
		cfg.EventBufferLen = 256
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "bridge-client")),
	}
}

// Connect 建立或恢复一个槽位的连接
//
// 拨号成功后发送 connect 帧（携带已持久化的凭据 blob），随即启动读循环；
// 后续的连接状态、配对挑战、消息批次都以事件形式异步送达。
func (c *Client) Connect(ctx context.Context, slot string, creds channel.CredentialStore) (channel.Handle, error) {
	endpoint, err := url.JoinPath(c.cfg.URL, "session", slot)
	if err != nil {
		return nil, apperrors.NewConnectError("invalid bridge url", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeWait)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewConnectError("bridge dial failed", err)
	}

	blob, err := creds.Load(slot)
	if err != nil {
		_ = conn.Close()
		return nil, apperrors.NewConnectError("credential load failed", err)
	}

	h := &handle{
		slot:        slot,
		conn:        conn,
		creds:       creds,
		callTimeout: c.cfg.CallTimeout,
		events:      make(chan channel.Event, c.cfg.EventBufferLen),
		pending:     make(map[string]chan WireMessage),
		logger:      c.logger.With(zap.String("slot", slot)),
	}

	hello := WireMessage{
		Type:  FrameConnect,
		Slot:  slot,
		Token: c.cfg.Token,
	}
	if len(blob) > 0 {
		hello.Creds = base64.StdEncoding.EncodeToString(blob)
	}
	if err := h.writeFrame(hello); err != nil {
		_ = conn.Close()
		return nil, apperrors.NewConnectError("bridge handshake failed", err)
	}

	go h.readLoop()
	return h, nil
}

// handle 一条槽位连接
type handle struct {
	slot        string
	conn        *websocket.Conn
	creds       channel.CredentialStore
	callTimeout time.Duration
	events      chan channel.Event
	logger      *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan WireMessage
	closed  bool
}

// Events 返回事件流；连接断开时关闭
func (h *handle) Events() <-chan channel.Event {
	return h.events
}

// FetchHistoryPage 拉取一页历史消息
func (h *handle) FetchHistoryPage(ctx context.Context, conversationID string, pageSize int, cursor string) (channel.HistoryPage, error) {
	resp, err := h.call(ctx, WireMessage{
		Type:           FrameHistoryRequest,
		ConversationID: conversationID,
		PageSize:       pageSize,
		Cursor:         cursor,
	})
	if err != nil {
		return channel.HistoryPage{}, err
	}
	return channel.HistoryPage{
		Messages:   toRaw(resp.Messages),
		NextCursor: resp.NextCursor,
	}, nil
}

// ListKnownConversations 列出桥接进程已知的会话
func (h *handle) ListKnownConversations(ctx context.Context) ([]string, error) {
	resp, err := h.call(ctx, WireMessage{Type: FrameListRequest})
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Close 关闭连接并结束事件流
func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.conn.Close()
}

// call 发送一个 RPC 帧并等待对应 ID 的响应
func (h *handle) call(ctx context.Context, req WireMessage) (WireMessage, error) {
	req.ID = uuid.NewString()
	req.Slot = h.slot

	ch := make(chan WireMessage, 1)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return WireMessage{}, fmt.Errorf("bridge connection closed")
	}
	h.pending[req.ID] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, req.ID)
		h.mu.Unlock()
	}()

	if err := h.writeFrame(req); err != nil {
		return WireMessage{}, err
	}

	select {
	case <-ctx.Done():
		return WireMessage{}, ctx.Err()
	case <-time.After(h.callTimeout):
		return WireMessage{}, fmt.Errorf("bridge call timed out: %s", req.Type)
	case resp, ok := <-ch:
		if !ok {
			return WireMessage{}, fmt.Errorf("bridge connection closed")
		}
		if resp.Type == FrameError {
			return WireMessage{}, fmt.Errorf("bridge error: %s", resp.Message)
		}
		return resp, nil
	}
}

func (h *handle) writeFrame(msg WireMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return h.conn.WriteMessage(websocket.TextMessage, payload)
}

// readLoop 读取桥接帧并分发：状态与消息帧进事件流，响应帧路由到等待的
// RPC，凭据轮换帧落盘。套接字错误结束循环并关闭事件流。
func (h *handle) readLoop() {
	defer h.teardown()

	for {
		_, payload, err := h.conn.ReadMessage()
		if err != nil {
			h.mu.Lock()
			closed := h.closed
			h.mu.Unlock()
			if !closed {
				h.logger.Debug("Bridge socket read failed", zap.Error(err))
			}
			return
		}

		var msg WireMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Warn("Dropping malformed bridge frame", zap.Error(err))
			continue
		}

		switch msg.Type {
		case FrameConnectionState:
			h.deliver(channel.ConnectionStateEvent{
				State:            toConnState(msg.State),
				Identity:         msg.Identity,
				PairingChallenge: msg.Challenge,
				DisconnectReason: toDisconnectReason(msg.Reason),
			})

		case FrameMessages:
			h.deliver(channel.MessagesEvent{
				Batch:      toRaw(msg.Messages),
				Historical: msg.Historical,
				Final:      msg.Final,
			})

		case FrameCredsUpdate:
			blob, err := base64.StdEncoding.DecodeString(msg.Creds)
			if err != nil {
				h.logger.Warn("Dropping malformed credential update", zap.Error(err))
				continue
			}
			if err := h.creds.Save(h.slot, blob); err != nil {
				h.logger.Error("Persisting credential rotation failed", zap.Error(err))
			}

		case FrameHistoryResponse, FrameListResponse, FrameError:
			h.mu.Lock()
			ch := h.pending[msg.ID]
			h.mu.Unlock()
			if ch != nil {
				select {
				case ch <- msg:
				default:
				}
			}

		default:
			h.logger.Debug("Ignoring unknown bridge frame", zap.String("type", string(msg.Type)))
		}
	}
}

// deliver 推送事件；队列满时丢弃最旧事件，保证读循环永不阻塞
func (h *handle) deliver(ev channel.Event) {
	select {
	case h.events <- ev:
	default:
		select {
		case <-h.events:
		default:
		}
		select {
		case h.events <- ev:
		default:
		}
	}
}

func (h *handle) teardown() {
	h.mu.Lock()
	h.closed = true
	for id, ch := range h.pending {
		close(ch)
		delete(h.pending, id)
	}
	h.mu.Unlock()
	_ = h.conn.Close()
	close(h.events)
}
