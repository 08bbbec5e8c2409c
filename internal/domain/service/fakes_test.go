package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chatmirror/gateway/internal/domain/channel"
	"github.com/chatmirror/gateway/internal/domain/entity"
)

// memoryMessageRepo is an in-memory MessageRepository with the same
// insert-if-absent contract as the GORM implementation.
type memoryMessageRepo struct {
	mu        sync.Mutex
	seen      map[string]bool
	messages  []*entity.Message
	lastLimit int
	failWrite error
}

func newMemoryMessageRepo() *memoryMessageRepo {
	return &memoryMessageRepo{seen: make(map[string]bool)}
}

func (r *memoryMessageRepo) Ingest(ctx context.Context, m *entity.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return false, r.failWrite
	}
	key := fmt.Sprintf("%s|%s|%d|%s|%s", m.Slot(), m.ConversationID(), m.Timestamp(), m.Direction(), m.Text())
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	r.messages = append(r.messages, m)
	return true, nil
}

func (r *memoryMessageRepo) Inbox(ctx context.Context, slot string, limit int) ([]entity.InboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	return nil, nil
}

func (r *memoryMessageRepo) History(ctx context.Context, slot, counterpart string, before int64, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var out []*entity.Message
	for _, m := range r.messages {
		if m.Slot() == slot && m.Counterpart() == counterpart && (before <= 0 || m.Timestamp() < before) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryMessageRepo) Range(ctx context.Context, slot string, fromTs, toTs int64, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	return nil, nil
}

func (r *memoryMessageRepo) Stats(ctx context.Context, slot string, fromTs, toTs int64) (*entity.StatsReport, error) {
	return &entity.StatsReport{}, nil
}

func (r *memoryMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// memoryTagRepo is an in-memory TagRepository.
type memoryTagRepo struct {
	mu   sync.Mutex
	tags []*entity.Tag
}

func (r *memoryTagRepo) Add(ctx context.Context, tag *entity.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
	return nil
}

func (r *memoryTagRepo) FindByCounterpart(ctx context.Context, counterpart string) ([]*entity.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Tag
	for _, t := range r.tags {
		if t.Counterpart == counterpart {
			out = append(out, t)
		}
	}
	return out, nil
}

// memoryCredStore is an in-memory CredentialStore that records deletions.
type memoryCredStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deletes int
}

func newMemoryCredStore() *memoryCredStore {
	return &memoryCredStore{blobs: make(map[string][]byte)}
}

func (s *memoryCredStore) Load(slot string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[slot], nil
}

func (s *memoryCredStore) Save(slot string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[slot] = blob
	return nil
}

func (s *memoryCredStore) Delete(slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, slot)
	s.deletes++
	return nil
}

func (s *memoryCredStore) deleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// slowWipeCredStore delays Delete, modeling a credential backend where
// the wipe takes a moment to land.
type slowWipeCredStore struct {
	*memoryCredStore
	deleteDelay time.Duration
}

func (s *slowWipeCredStore) Delete(slot string) error {
	time.Sleep(s.deleteDelay)
	return s.memoryCredStore.Delete(slot)
}

// fakeHandle is a scriptable channel.Handle. Tests push events onto the
// stream and override the history/list behavior per scenario.
type fakeHandle struct {
	events    chan channel.Event
	closeOnce sync.Once

	listFn  func(ctx context.Context) ([]string, error)
	fetchFn func(ctx context.Context, conversationID string, pageSize int, cursor string) (channel.HistoryPage, error)
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan channel.Event, 16)}
}

func (h *fakeHandle) Events() <-chan channel.Event { return h.events }

func (h *fakeHandle) FetchHistoryPage(ctx context.Context, conversationID string, pageSize int, cursor string) (channel.HistoryPage, error) {
	if h.fetchFn != nil {
		return h.fetchFn(ctx, conversationID, pageSize, cursor)
	}
	return channel.HistoryPage{}, nil
}

func (h *fakeHandle) ListKnownConversations(ctx context.Context) ([]string, error) {
	if h.listFn != nil {
		return h.listFn(ctx)
	}
	return nil, nil
}

func (h *fakeHandle) Close() error {
	h.closeOnce.Do(func() { close(h.events) })
	return nil
}

func (h *fakeHandle) push(ev channel.Event) { h.events <- ev }

// fakeClient hands out pre-scripted handles, one per connect attempt.
type fakeClient struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	connects int
	err      error
}

func (c *fakeClient) Connect(ctx context.Context, slot string, creds channel.CredentialStore) (channel.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.handles) == 0 {
		h := newFakeHandle()
		c.handles = append(c.handles, h)
		return h, nil
	}
	h := c.handles[0]
	if len(c.handles) > 1 {
		c.handles = c.handles[1:]
	}
	return h, nil
}

func (c *fakeClient) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// credLoadingClient mirrors the bridge client's connect behavior: it loads
// the persisted credential blob before dialing and records what it saw.
type credLoadingClient struct {
	fakeClient
	loadMu sync.Mutex
	loads  [][]byte
}

func (c *credLoadingClient) Connect(ctx context.Context, slot string, creds channel.CredentialStore) (channel.Handle, error) {
	blob, _ := creds.Load(slot)
	c.loadMu.Lock()
	c.loads = append(c.loads, blob)
	c.loadMu.Unlock()
	return c.fakeClient.Connect(ctx, slot, creds)
}

func (c *credLoadingClient) loadedBlobs() [][]byte {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	out := make([][]byte, len(c.loads))
	copy(out, c.loads)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", d, msg)
}
