package bridge

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/channel"
)

type memCreds struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemCreds() *memCreds { return &memCreds{blobs: make(map[string][]byte)} }

func (c *memCreds) Load(slot string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blobs[slot], nil
}

func (c *memCreds) Save(slot string, blob []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[slot] = blob
	return nil
}

func (c *memCreds) Delete(slot string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blobs, slot)
	return nil
}

// fakeBridge is an in-process bridge process end of the protocol.
type fakeBridge struct {
	t       *testing.T
	srv     *httptest.Server
	upgrade websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	frames []WireMessage

	onFrame func(conn *websocket.Conn, msg WireMessage)
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	b := &fakeBridge{t: t}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrade.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		for {
			var msg WireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			b.mu.Lock()
			b.frames = append(b.frames, msg)
			handler := b.onFrame
			b.mu.Unlock()
			if handler != nil {
				handler(conn, msg)
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBridge) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBridge) send(msg WireMessage) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		b.t.Fatal("no bridge connection yet")
	}
	if err := conn.WriteJSON(msg); err != nil {
		b.t.Errorf("bridge send: %v", err)
	}
}

func (b *fakeBridge) firstFrame() WireMessage {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		if len(b.frames) > 0 {
			f := b.frames[0]
			b.mu.Unlock()
			return f
		}
		b.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	b.t.Fatal("bridge received no frame")
	return WireMessage{}
}

func testClient(b *fakeBridge) *Client {
	return NewClient(Config{
		URL:         b.url(),
		Token:       "secret",
		CallTimeout: time.Second,
	}, zap.NewNop())
}

func TestConnectSendsCredentials(t *testing.T) {
	bridge := newFakeBridge(t)
	creds := newMemCreds()
	creds.Save("personal", []byte("stored-blob"))

	h, err := testClient(bridge).Connect(context.Background(), "personal", creds)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.Close()

	hello := bridge.firstFrame()
	if hello.Type != FrameConnect {
		t.Fatalf("first frame type = %s, want connect", hello.Type)
	}
	if hello.Slot != "personal" || hello.Token != "secret" {
		t.Errorf("hello = %+v", hello)
	}
	blob, err := base64.StdEncoding.DecodeString(hello.Creds)
	if err != nil || string(blob) != "stored-blob" {
		t.Errorf("creds in hello = %q (%v)", hello.Creds, err)
	}
}

func TestConnectWithoutStoredCredentials(t *testing.T) {
	bridge := newFakeBridge(t)

	h, err := testClient(bridge).Connect(context.Background(), "personal", newMemCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.Close()

	if hello := bridge.firstFrame(); hello.Creds != "" {
		t.Errorf("unpaired slot sent creds %q", hello.Creds)
	}
}

func TestEventsFlow(t *testing.T) {
	bridge := newFakeBridge(t)
	creds := newMemCreds()

	h, err := testClient(bridge).Connect(context.Background(), "personal", creds)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.Close()
	bridge.firstFrame() // wait for the hello so conn is set

	bridge.send(WireMessage{Type: FrameConnectionState, State: "connecting", Challenge: "123-456"})
	bridge.send(WireMessage{Type: FrameConnectionState, State: "open", Identity: "me@net"})
	bridge.send(WireMessage{Type: FrameMessages, Messages: []WireRawMessage{
		{ConversationID: "peer@s.whatsapp.net", Timestamp: 100, FromMe: true, Kind: "text", Text: "hi"},
	}})
	bridge.send(WireMessage{Type: FrameCredsUpdate, Creds: base64.StdEncoding.EncodeToString([]byte("rotated"))})
	bridge.send(WireMessage{Type: FrameConnectionState, State: "close", Reason: "logout"})

	next := func() channel.Event {
		select {
		case ev := <-h.Events():
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
			return nil
		}
	}

	ev, ok := next().(channel.ConnectionStateEvent)
	if !ok || ev.State != channel.ConnConnecting || ev.PairingChallenge != "123-456" {
		t.Fatalf("pairing event = %+v", ev)
	}

	ev, ok = next().(channel.ConnectionStateEvent)
	if !ok || ev.State != channel.ConnOpen || ev.Identity != "me@net" {
		t.Fatalf("open event = %+v", ev)
	}

	mev, ok := next().(channel.MessagesEvent)
	if !ok || len(mev.Batch) != 1 || mev.Batch[0].Text != "hi" || !mev.Batch[0].FromMe {
		t.Fatalf("messages event = %+v", mev)
	}

	ev, ok = next().(channel.ConnectionStateEvent)
	if !ok || ev.State != channel.ConnClose || ev.DisconnectReason != channel.ReasonLoggedOut {
		t.Fatalf("close event = %+v", ev)
	}

	// Rotation was persisted, not surfaced as an event.
	deadline := time.Now().Add(time.Second)
	for {
		blob, _ := creds.Load("personal")
		if string(blob) == "rotated" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("credential rotation not persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHistoryRPC(t *testing.T) {
	bridge := newFakeBridge(t)
	bridge.onFrame = func(conn *websocket.Conn, msg WireMessage) {
		switch msg.Type {
		case FrameHistoryRequest:
			_ = conn.WriteJSON(WireMessage{
				Type: FrameHistoryResponse,
				ID:   msg.ID,
				Messages: []WireRawMessage{
					{ConversationID: msg.ConversationID, Timestamp: 100, Text: "old"},
				},
				NextCursor: "cursor-2",
			})
		case FrameListRequest:
			_ = conn.WriteJSON(WireMessage{
				Type:          FrameListResponse,
				ID:            msg.ID,
				Conversations: []string{"a@g.us", "b@g.us"},
			})
		}
	}

	h, err := testClient(bridge).Connect(context.Background(), "personal", newMemCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.Close()

	page, err := h.FetchHistoryPage(context.Background(), "peer@s.whatsapp.net", 50, "")
	if err != nil {
		t.Fatalf("FetchHistoryPage failed: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Text != "old" || page.NextCursor != "cursor-2" {
		t.Errorf("page = %+v", page)
	}

	conversations, err := h.ListKnownConversations(context.Background())
	if err != nil {
		t.Fatalf("ListKnownConversations failed: %v", err)
	}
	if len(conversations) != 2 {
		t.Errorf("conversations = %v", conversations)
	}
}

func TestRPCErrorFrame(t *testing.T) {
	bridge := newFakeBridge(t)
	bridge.onFrame = func(conn *websocket.Conn, msg WireMessage) {
		if msg.Type == FrameHistoryRequest {
			_ = conn.WriteJSON(WireMessage{Type: FrameError, ID: msg.ID, Message: "history sync unavailable"})
		}
	}

	h, err := testClient(bridge).Connect(context.Background(), "personal", newMemCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.Close()

	if _, err := h.FetchHistoryPage(context.Background(), "peer@s.whatsapp.net", 50, ""); err == nil {
		t.Fatal("expected error from error frame")
	} else if !strings.Contains(err.Error(), "history sync unavailable") {
		t.Errorf("error = %v", err)
	}
}

func TestEventsChannelClosesOnTeardown(t *testing.T) {
	bridge := newFakeBridge(t)

	h, err := testClient(bridge).Connect(context.Background(), "personal", newMemCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	_ = h.Close()

	select {
	case _, ok := <-h.Events():
		if ok {
			t.Error("expected closed event stream after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("event stream not closed")
	}
}

func TestProtocolMappings(t *testing.T) {
	if toConnState("open") != channel.ConnOpen || toConnState("close") != channel.ConnClose {
		t.Error("state mapping broken")
	}
	if toConnState("qr") != channel.ConnConnecting {
		t.Error("unknown states should map to connecting")
	}

	for _, reason := range []string{"logged_out", "logout", "401"} {
		if toDisconnectReason(reason) != channel.ReasonLoggedOut {
			t.Errorf("reason %q should be terminal", reason)
		}
	}
	if toDisconnectReason("") != channel.ReasonNone {
		t.Error("empty reason should map to none")
	}
	if toDisconnectReason("stream_error") != channel.ReasonTransport {
		t.Error("other reasons should map to transport")
	}
}
