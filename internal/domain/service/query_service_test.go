package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	apperrors "github.com/chatmirror/gateway/pkg/errors"
)

func newTestQuery(repo *memoryMessageRepo) *QueryService {
	return NewQueryService(QueryConfig{DefaultLimit: 50, MaxLimit: 200}, repo, &memoryTagRepo{}, zap.NewNop())
}

func TestQueryClampsLimit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"zero uses default", 0, 50},
		{"negative uses default", -5, 50},
		{"in range passes through", 120, 120},
		{"above ceiling clamps", 100000, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryMessageRepo()
			q := newTestQuery(repo)

			if _, err := q.Inbox(context.Background(), "", tt.limit); err != nil {
				t.Fatalf("Inbox failed: %v", err)
			}
			if repo.lastLimit != tt.wantLimit {
				t.Errorf("repo saw limit %d, want %d", repo.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestHistoryRequiresSlotAndCounterpart(t *testing.T) {
	q := newTestQuery(newMemoryMessageRepo())

	if _, err := q.History(context.Background(), "", "peer", 0, 10); !apperrors.IsInvalidInput(err) {
		t.Errorf("missing slot: err = %v, want invalid input", err)
	}
	if _, err := q.History(context.Background(), "personal", "", 0, 10); !apperrors.IsInvalidInput(err) {
		t.Errorf("missing counterpart: err = %v, want invalid input", err)
	}
	if _, err := q.History(context.Background(), "personal", "peer", 0, 10); err != nil {
		t.Errorf("valid query failed: %v", err)
	}
}

func TestRangeRejectsInvertedWindow(t *testing.T) {
	q := newTestQuery(newMemoryMessageRepo())

	if _, err := q.Range(context.Background(), "", 500, 100, 10); !apperrors.IsInvalidInput(err) {
		t.Errorf("inverted window: err = %v, want invalid input", err)
	}
	// Open-ended bounds are fine.
	if _, err := q.Range(context.Background(), "", 0, 100, 10); err != nil {
		t.Errorf("open from failed: %v", err)
	}
	if _, err := q.Range(context.Background(), "", 500, 0, 10); err != nil {
		t.Errorf("open to failed: %v", err)
	}
}

func TestAddTagValidation(t *testing.T) {
	q := newTestQuery(newMemoryMessageRepo())

	if _, err := q.AddTag(context.Background(), "id-1", "", "vip"); !apperrors.IsInvalidInput(err) {
		t.Errorf("empty counterpart: err = %v, want invalid input", err)
	}

	tag, err := q.AddTag(context.Background(), "id-1", "55511999887766", "vip")
	if err != nil {
		t.Fatalf("AddTag failed: %v", err)
	}
	if tag.Counterpart != "55511999887766" || tag.Label != "vip" {
		t.Errorf("tag = %+v", tag)
	}

	tags, err := q.TagsFor(context.Background(), "55511999887766")
	if err != nil {
		t.Fatalf("TagsFor failed: %v", err)
	}
	if len(tags) != 1 {
		t.Errorf("got %d tags, want 1", len(tags))
	}
}

func TestQuerySetConfigKeepsInvariants(t *testing.T) {
	q := newTestQuery(newMemoryMessageRepo())

	// A default above the ceiling is rejected, the ceiling still applies.
	q.SetConfig(QueryConfig{DefaultLimit: 500, MaxLimit: 0})
	cfg := q.Config()
	if cfg.DefaultLimit != 50 || cfg.MaxLimit != 200 {
		t.Errorf("config = %+v, want unchanged", cfg)
	}

	q.SetConfig(QueryConfig{DefaultLimit: 25, MaxLimit: 100})
	cfg = q.Config()
	if cfg.DefaultLimit != 25 || cfg.MaxLimit != 100 {
		t.Errorf("config = %+v", cfg)
	}
}
