package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SlotState represents the discrete states of a slot's session lifecycle.
type SlotState string

const (
	StateStarting     SlotState = "starting"     // Connecting (initial, and between retries)
	StateConnected    SlotState = "connected"    // Authenticated and receiving events
	StateDisconnected SlotState = "disconnected" // Dropped, retry pending
	StateLoggedOut    SlotState = "logged_out"   // Explicit logout — terminal, needs re-pairing
)

// validTransitions defines the allowed state transitions.
// Key = from state, Value = set of allowed target states.
var validTransitions = map[SlotState]map[SlotState]bool{
	StateStarting: {
		StateConnected: true,
		StateStarting:  true, // connect failed, retry
		StateLoggedOut: true, // auth rejected outright
	},
	StateConnected: {
		StateDisconnected: true,
		StateLoggedOut:    true,
		StateStarting:     true, // forceReset while connected
	},
	StateDisconnected: {
		StateStarting: true,
	},
	// Terminal — only forceReset may leave it, see ForceTo.
	StateLoggedOut: {},
}

// SessionSnapshot captures one slot's session state at a point in time.
type SessionSnapshot struct {
	Slot             string    `json:"slot"`
	State            SlotState `json:"state"`
	Identity         string    `json:"identity,omitempty"`
	PairingChallenge string    `json:"-"`
	PairingPending   bool      `json:"pairing_pending"`
	BackfillDone     bool      `json:"backfill_done"`
	ConnectedAt      time.Time `json:"connected_at,omitempty"`
	Retries          int       `json:"retries"`
}

// Session holds the in-memory lifecycle state for one slot.
// Thread-safe — the HTTP layer reads snapshots while the session loop
// transitions states.
type Session struct {
	mu               sync.RWMutex
	slot             string
	state            SlotState
	identity         string
	pairingChallenge string
	backfillDone     bool
	connectedAt      time.Time
	retries          int
	logger           *zap.Logger
}

// NewSession creates a session in Starting.
func NewSession(slot string, logger *zap.Logger) *Session {
	return &Session{
		slot:   slot,
		state:  StateStarting,
		logger: logger.With(zap.String("slot", slot)),
	}
}

// State returns the current state (thread-safe).
func (s *Session) State() SlotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsTerminal reports whether the session reached a terminal state.
func (s *Session) IsTerminal() bool {
	return s.State() == StateLoggedOut
}

// Snapshot returns a full copy of the current session state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{
		Slot:             s.slot,
		State:            s.state,
		Identity:         s.identity,
		PairingChallenge: s.pairingChallenge,
		PairingPending:   s.pairingChallenge != "",
		BackfillDone:     s.backfillDone,
		ConnectedAt:      s.connectedAt,
		Retries:          s.retries,
	}
}

// Transition moves the session to a new state, enforcing validTransitions.
func (s *Session) Transition(to SlotState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	if from == to && to != StateStarting {
		return nil // idempotent, except retry re-entry which is counted
	}
	if !validTransitions[from][to] {
		return fmt.Errorf("invalid session transition: %s -> %s", from, to)
	}
	s.applyLocked(from, to)
	return nil
}

// ForceTo moves the session to a state without transition validation.
// Only forceReset uses this — it must work from any state, including the
// terminal LoggedOut.
func (s *Session) ForceTo(to SlotState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(s.state, to)
}

func (s *Session) applyLocked(from, to SlotState) {
	s.state = to

	switch to {
	case StateConnected:
		// Reaching connected clears any pending pairing challenge.
		s.pairingChallenge = ""
		s.connectedAt = time.Now()
		s.retries = 0
	case StateStarting:
		if from == StateStarting || from == StateDisconnected {
			s.retries++
		}
	}

	s.logger.Info("Session state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// SetIdentity records the authenticated identity (set once per connection).
func (s *Session) SetIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity != "" {
		s.identity = identity
	}
}

// SetPairingChallenge stores the latest pairing challenge from the client.
func (s *Session) SetPairingChallenge(challenge string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairingChallenge = challenge
}

// PairingChallenge returns the pending challenge, "" when none.
func (s *Session) PairingChallenge() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairingChallenge
}

// ArmBackfill marks the connection-cycle's single backfill run as taken.
// Returns true exactly once per cycle; Reset re-arms it.
func (s *Session) ArmBackfill() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backfillDone {
		return false
	}
	s.backfillDone = true
	return true
}

// RearmBackfill re-arms backfill for the next connection cycle.
func (s *Session) RearmBackfill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backfillDone = false
}

// Reset clears per-pairing state: identity, challenge, backfill guard.
// Used by forceReset before restarting the slot.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = ""
	s.pairingChallenge = ""
	s.backfillDone = false
	s.retries = 0
	s.connectedAt = time.Time{}
	s.state = StateStarting
	s.logger.Info("Session reset")
}
