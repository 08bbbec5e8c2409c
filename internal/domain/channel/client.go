// Package channel defines the capability boundary to the external
// messaging-network client. The gateway depends on this port, never on a
// concrete transport: the client may disconnect and reconnect at any time,
// and may deliver the same message more than once with no ordering
// guarantee. Everything downstream must tolerate that.
package channel

import "context"

// ConnState is the coarse connection state reported by the client.
type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClose      ConnState = "close"
)

// DisconnectReason classifies a close event. Only ReasonLoggedOut is
// terminal — everything else is retryable.
type DisconnectReason string

const (
	ReasonNone      DisconnectReason = ""
	ReasonLoggedOut DisconnectReason = "logged_out"
	ReasonTransport DisconnectReason = "transport"
)

// RawMessage is one unit of conversation content as the network delivered
// it. The gateway only ever extracts a normalized text from it — payload
// internals stay opaque.
type RawMessage struct {
	ConversationID string
	Timestamp      int64 // unix millis; 0 = unknown, ingestion time is used
	FromMe         bool
	Kind           string // "text", "image", "reaction", ... best-effort
	Text           string
}

// Event is a typed event pushed by the client onto the per-slot event
// stream. The session loop consumes events sequentially, which preserves
// per-slot ordering while slots run in parallel.
type Event interface {
	isEvent()
}

// ConnectionStateEvent reports a connection-state transition. On ConnOpen
// the Identity of the authenticated account is set; while pairing is
// required, PairingChallenge carries the opaque challenge to render.
type ConnectionStateEvent struct {
	State            ConnState
	Identity         string
	PairingChallenge string
	DisconnectReason DisconnectReason
}

func (ConnectionStateEvent) isEvent() {}

// MessagesEvent carries a batch of messages. Historical marks batches
// replayed by the network itself (as opposed to live traffic); Final marks
// the last historical batch of a replay.
type MessagesEvent struct {
	Batch      []RawMessage
	Historical bool
	Final      bool
}

func (MessagesEvent) isEvent() {}

// HistoryPage is one page of a cursor-paginated history fetch, ordered
// newest-first. NextCursor == "" means the conversation is exhausted.
type HistoryPage struct {
	Messages   []RawMessage
	NextCursor string
}

// Handle is one live connection for one slot.
type Handle interface {
	// Events returns the per-slot event stream. The channel is closed when
	// the connection is torn down.
	Events() <-chan Event

	// FetchHistoryPage pulls one page of historical messages for a
	// conversation. Pass cursor == "" for the first page.
	FetchHistoryPage(ctx context.Context, conversationID string, pageSize int, cursor string) (HistoryPage, error)

	// ListKnownConversations returns the conversation ids the client knows
	// about. Best-effort: may be empty right after connect and populate
	// asynchronously.
	ListKnownConversations(ctx context.Context) ([]string, error)

	// Close tears the connection down and closes the event stream.
	Close() error
}

// Client establishes connections. One Client serves all slots; credential
// state is loaded from and rotated back into the CredentialStore.
type Client interface {
	Connect(ctx context.Context, slot string, creds CredentialStore) (Handle, error)
}

// CredentialStore durably holds the opaque per-slot credential blobs the
// client hands back on rotation. The gateway never inspects the bytes.
type CredentialStore interface {
	// Load returns the stored blob, or nil when the slot has never paired.
	Load(slot string) ([]byte, error)
	Save(slot string, blob []byte) error
	Delete(slot string) error
}
