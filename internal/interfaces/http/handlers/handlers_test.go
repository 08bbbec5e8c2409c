package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/channel"
	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/domain/service"
	"github.com/chatmirror/gateway/internal/domain/valueobject"
	"github.com/chatmirror/gateway/internal/infrastructure/monitoring"
)

type stubMessageRepo struct {
	messages []*entity.Message
}

func (r *stubMessageRepo) Ingest(ctx context.Context, m *entity.Message) (bool, error) {
	r.messages = append(r.messages, m)
	return true, nil
}

func (r *stubMessageRepo) Inbox(ctx context.Context, slot string, limit int) ([]entity.InboxEntry, error) {
	var out []entity.InboxEntry
	for _, m := range r.messages {
		out = append(out, entity.InboxEntry{Slot: m.Slot(), Counterpart: m.Counterpart(), Last: m})
	}
	return out, nil
}

func (r *stubMessageRepo) History(ctx context.Context, slot, counterpart string, before int64, limit int) ([]*entity.Message, error) {
	return r.messages, nil
}

func (r *stubMessageRepo) Range(ctx context.Context, slot string, fromTs, toTs int64, limit int) ([]*entity.Message, error) {
	return r.messages, nil
}

func (r *stubMessageRepo) Stats(ctx context.Context, slot string, fromTs, toTs int64) (*entity.StatsReport, error) {
	return &entity.StatsReport{}, nil
}

type stubTagRepo struct {
	tags []*entity.Tag
}

func (r *stubTagRepo) Add(ctx context.Context, tag *entity.Tag) error {
	r.tags = append(r.tags, tag)
	return nil
}

func (r *stubTagRepo) FindByCounterpart(ctx context.Context, counterpart string) ([]*entity.Tag, error) {
	return r.tags, nil
}

type stubCredStore struct{}

func (stubCredStore) Load(slot string) ([]byte, error)    { return nil, nil }
func (stubCredStore) Save(slot string, blob []byte) error { return nil }
func (stubCredStore) Delete(slot string) error            { return nil }

type stubClient struct{}

func (stubClient) Connect(ctx context.Context, slot string, creds channel.CredentialStore) (channel.Handle, error) {
	return nil, context.Canceled
}

func testRouter(t *testing.T, repo *stubMessageRepo) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	monitor := monitoring.NewMonitor(logger)

	query := service.NewQueryService(service.DefaultQueryConfig(), repo, &stubTagRepo{}, logger)
	ingestor := service.NewIngestor(repo, monitor, logger)
	backfill := service.NewBackfillOrchestrator(service.DefaultBackfillConfig(), ingestor, monitor, logger)
	sessions := service.NewSessionManager(service.SessionManagerConfig{
		Slots: []string{"personal", "work"},
	}, stubClient{}, stubCredStore{}, ingestor, backfill, monitor, logger)

	sessionHandler := NewSessionHandler(sessions, logger)
	mirrorHandler := NewMirrorHandler(query, logger)
	tagHandler := NewTagHandler(query, logger)

	router := gin.New()
	router.GET("/status", sessionHandler.ListStatus)
	router.GET("/status/:slot", sessionHandler.Status)
	router.GET("/slots/:slot/pairing", sessionHandler.Pairing)
	router.POST("/slots/:slot/reset", sessionHandler.Reset)
	router.GET("/inbox", mirrorHandler.Inbox)
	router.GET("/history", mirrorHandler.History)
	router.GET("/range", mirrorHandler.Range)
	router.GET("/stats", mirrorHandler.Stats)
	router.POST("/tags", tagHandler.AddTag)
	router.GET("/tags", tagHandler.ListTags)
	return router
}

func doRequest(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoints(t *testing.T) {
	router := testRouter(t, &stubMessageRepo{})

	w := doRequest(router, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", w.Code)
	}
	var listResp struct {
		Slots []struct {
			Slot  string `json:"slot"`
			State string `json:"state"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listResp.Slots) != 2 || listResp.Slots[0].Slot != "personal" {
		t.Errorf("slots = %+v", listResp.Slots)
	}
	if listResp.Slots[0].State != "starting" {
		t.Errorf("state = %s, want starting", listResp.Slots[0].State)
	}

	w = doRequest(router, http.MethodGet, "/status/personal", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /status/personal = %d", w.Code)
	}
	w = doRequest(router, http.MethodGet, "/status/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /status/nope = %d, want 404", w.Code)
	}
}

func TestPairingEndpoint(t *testing.T) {
	router := testRouter(t, &stubMessageRepo{})

	w := doRequest(router, http.MethodGet, "/slots/personal/pairing", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET pairing = %d", w.Code)
	}
	var resp struct {
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pending {
		t.Error("no challenge was set, pending should be false")
	}

	w = doRequest(router, http.MethodGet, "/slots/nope/pairing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET pairing unknown slot = %d, want 404", w.Code)
	}
}

func TestResetEndpoint(t *testing.T) {
	router := testRouter(t, &stubMessageRepo{})

	w := doRequest(router, http.MethodPost, "/slots/personal/reset", "")
	if w.Code != http.StatusOK {
		t.Errorf("POST reset = %d", w.Code)
	}
	w = doRequest(router, http.MethodPost, "/slots/nope/reset", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("POST reset unknown slot = %d, want 404", w.Code)
	}
}

func TestHistoryValidation(t *testing.T) {
	repo := &stubMessageRepo{}
	m, _ := entity.NewMessage("personal", "alice@s.whatsapp.net", "alice", 100, valueobject.DirectionInbound, "hi")
	repo.messages = append(repo.messages, m)
	router := testRouter(t, repo)

	w := doRequest(router, http.MethodGet, "/history?counterpart=alice", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing slot = %d, want 400", w.Code)
	}
	w = doRequest(router, http.MethodGet, "/history?slot=personal", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing counterpart = %d, want 400", w.Code)
	}
	w = doRequest(router, http.MethodGet, "/history?slot=personal&counterpart=alice&before=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad before = %d, want 400", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/history?slot=personal&counterpart=alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("valid history = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Messages []struct {
			Counterpart string `json:"counterpart"`
			Timestamp   int64  `json:"timestamp"`
			Direction   string `json:"direction"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Counterpart != "alice" || resp.Messages[0].Direction != "inbound" {
		t.Errorf("messages = %+v", resp.Messages)
	}
}

func TestRangeValidation(t *testing.T) {
	router := testRouter(t, &stubMessageRepo{})

	w := doRequest(router, http.MethodGet, "/range?from=500&to=100", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("inverted window = %d, want 400", w.Code)
	}
	w = doRequest(router, http.MethodGet, "/range?from=100&to=500", "")
	if w.Code != http.StatusOK {
		t.Errorf("valid range = %d", w.Code)
	}
}

func TestInboxLimitValidation(t *testing.T) {
	router := testRouter(t, &stubMessageRepo{})

	w := doRequest(router, http.MethodGet, "/inbox?limit=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}
	w = doRequest(router, http.MethodGet, "/inbox", "")
	if w.Code != http.StatusOK {
		t.Errorf("default inbox = %d", w.Code)
	}
}

func TestTagEndpoints(t *testing.T) {
	router := testRouter(t, &stubMessageRepo{})

	w := doRequest(router, http.MethodPost, "/tags", `{"label":"vip"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing counterpart = %d, want 400", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/tags", `{"counterpart":"alice","label":"vip"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add tag = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID          string `json:"id"`
		Counterpart string `json:"counterpart"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Counterpart != "alice" {
		t.Errorf("tag response = %+v", resp)
	}

	w = doRequest(router, http.MethodGet, "/tags?counterpart=alice", "")
	if w.Code != http.StatusOK {
		t.Errorf("list tags = %d", w.Code)
	}
	w = doRequest(router, http.MethodGet, "/tags", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("list tags without counterpart = %d, want 400", w.Code)
	}
}
