package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/channel"
	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/domain/repository"
	"github.com/chatmirror/gateway/internal/domain/valueobject"
	"github.com/chatmirror/gateway/internal/infrastructure/monitoring"
)

// Ingestor normalizes raw channel messages and writes them through the
// message repository's insert-if-absent path. It is the single write path
// for both live delivery and backfill, which is what makes the two safe to
// interleave.
type Ingestor struct {
	messages repository.MessageRepository
	monitor  *monitoring.Monitor
	logger   *zap.Logger
}

// NewIngestor creates an ingestor.
func NewIngestor(messages repository.MessageRepository, monitor *monitoring.Monitor, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		messages: messages,
		monitor:  monitor,
		logger:   logger.With(zap.String("component", "ingestor")),
	}
}

// Ingest normalizes and stores one raw message.
// Returns true when a new row was written, false when the message was
// dropped (no derivable counterpart) or was a duplicate. Duplicates are
// not errors — re-delivery is expected.
func (i *Ingestor) Ingest(ctx context.Context, slot string, raw channel.RawMessage) (bool, error) {
	if raw.ConversationID == "" {
		i.monitor.IncDropped()
		return false, nil
	}
	counterpart := valueobject.CounterpartFromConversation(raw.ConversationID)
	if counterpart == "" {
		i.monitor.IncDropped()
		i.logger.Debug("Dropping message without derivable counterpart",
			zap.String("slot", slot),
			zap.String("conversation_id", raw.ConversationID),
		)
		return false, nil
	}

	msg, err := entity.NewMessage(
		slot,
		raw.ConversationID,
		counterpart,
		raw.Timestamp,
		valueobject.DirectionFromMe(raw.FromMe),
		valueobject.NormalizeText(raw.Kind, raw.Text),
	)
	if err != nil {
		i.monitor.IncDropped()
		return false, nil
	}

	inserted, err := i.messages.Ingest(ctx, msg)
	if err != nil {
		return false, err
	}
	if inserted {
		i.monitor.IncIngested()
	} else {
		i.monitor.IncDuplicate()
	}
	return inserted, nil
}

// IngestBatch ingests a whole batch, counting stored rows. A failing row
// aborts the batch — storage failures are not per-row conditions.
func (i *Ingestor) IngestBatch(ctx context.Context, slot string, batch []channel.RawMessage) (int, error) {
	stored := 0
	for _, raw := range batch {
		ok, err := i.Ingest(ctx, slot, raw)
		if err != nil {
			return stored, err
		}
		if ok {
			stored++
		}
	}
	return stored, nil
}
