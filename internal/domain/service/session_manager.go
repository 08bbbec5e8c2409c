package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/channel"
	"github.com/chatmirror/gateway/internal/domain/entity"
	"github.com/chatmirror/gateway/internal/infrastructure/monitoring"
	"github.com/chatmirror/gateway/pkg/safego"
)

// SessionManagerConfig tunes the per-slot session loops.
type SessionManagerConfig struct {
	Slots          []string
	ReconnectDelay time.Duration // minimum delay between connect attempts
}

// slotRuntime bundles one slot's session with its connection-cycle
// plumbing. The cancel func tears down the current cycle (event loop and
// any in-flight backfill); resetCh wakes a loop parked in logged_out.
type slotRuntime struct {
	session *Session

	mu         sync.Mutex
	connCancel context.CancelFunc
	handle     channel.Handle
	wipe       bool

	backfillWG sync.WaitGroup
	resetCh    chan struct{}
}

func (rt *slotRuntime) setCycle(cancel context.CancelFunc, handle channel.Handle) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.connCancel = cancel
	rt.handle = handle
}

func (rt *slotRuntime) cancelCycle() {
	rt.mu.Lock()
	cancel := rt.connCancel
	handle := rt.handle
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if handle != nil {
		_ = handle.Close()
	}
}

func (rt *slotRuntime) requestWipe() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.wipe = true
}

func (rt *slotRuntime) takeWipe() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	w := rt.wipe
	rt.wipe = false
	return w
}

// awaitReset blocks until ForceReset signals that the credential wipe and
// session reset finished. Returns false when ctx is cancelled first.
func (rt *slotRuntime) awaitReset(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-rt.resetCh:
		return true
	}
}

// disconnect outcomes of one connection cycle
type cycleOutcome int

const (
	outcomeRetry cycleOutcome = iota
	outcomeLoggedOut
	outcomeCancelled
)

// SessionManager owns one session per configured slot and drives its
// lifecycle: connect, react to channel events, forward messages to the
// ingestor, trigger backfill once per connection cycle, reconnect with a
// minimum delay, and park terminally logged-out slots until an operator
// reset. All slots run concurrently; each slot's events are consumed
// sequentially.
type SessionManager struct {
	cfg      SessionManagerConfig
	client   channel.Client
	creds    channel.CredentialStore
	ingestor *Ingestor
	backfill *BackfillOrchestrator
	monitor  *monitoring.Monitor
	logger   *zap.Logger

	mu    sync.RWMutex
	slots map[string]*slotRuntime
	wg    sync.WaitGroup
}

// NewSessionManager creates the manager and registers one session per
// configured slot.
func NewSessionManager(
	cfg SessionManagerConfig,
	client channel.Client,
	creds channel.CredentialStore,
	ingestor *Ingestor,
	backfill *BackfillOrchestrator,
	monitor *monitoring.Monitor,
	logger *zap.Logger,
) *SessionManager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	m := &SessionManager{
		cfg:      cfg,
		client:   client,
		creds:    creds,
		ingestor: ingestor,
		backfill: backfill,
		monitor:  monitor,
		logger:   logger.With(zap.String("component", "session-manager")),
		slots:    make(map[string]*slotRuntime, len(cfg.Slots)),
	}
	for _, slot := range cfg.Slots {
		m.slots[slot] = &slotRuntime{
			session: NewSession(slot, logger),
			resetCh: make(chan struct{}, 1),
		}
	}
	return m
}

// Start launches one session loop per slot. Non-blocking.
func (m *SessionManager) Start(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for slot, rt := range m.slots {
		slot, rt := slot, rt
		m.wg.Add(1)
		safego.Go(m.logger, "session-loop:"+slot, func() {
			defer m.wg.Done()
			m.runSlot(ctx, slot, rt)
		})
	}
}

// Wait blocks until every session loop has exited (after the Start ctx is
// cancelled).
func (m *SessionManager) Wait() {
	m.wg.Wait()
}

// Status returns the session snapshot for one slot.
func (m *SessionManager) Status(slot string) (SessionSnapshot, error) {
	rt := m.runtime(slot)
	if rt == nil {
		return SessionSnapshot{}, entity.ErrUnknownSlot
	}
	return rt.session.Snapshot(), nil
}

// Snapshots returns snapshots for all configured slots, ordered by slot id.
func (m *SessionManager) Snapshots() []SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionSnapshot, 0, len(m.slots))
	for _, rt := range m.slots {
		out = append(out, rt.session.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// ForceReset tears down the slot's current connection cycle, waits for any
// in-flight backfill to stop (writes must not race the credential wipe),
// discards the persisted credential state, and restarts the slot in
// Starting with a fresh pairing challenge. Safe to call from any state,
// including the terminal LoggedOut.
func (m *SessionManager) ForceReset(slot string) error {
	rt := m.runtime(slot)
	if rt == nil {
		return entity.ErrUnknownSlot
	}
	log := m.logger.With(zap.String("slot", slot))
	log.Info("Force reset requested")
	m.monitor.IncForceReset()

	rt.requestWipe()
	rt.cancelCycle()
	rt.backfillWG.Wait()

	if err := m.creds.Delete(slot); err != nil {
		log.Warn("Credential wipe failed", zap.Error(err))
	}
	rt.session.Reset()

	// Signal completion: releases a loop parked in logged_out, or one
	// holding a reconnect until the wipe is done.
	select {
	case rt.resetCh <- struct{}{}:
	default:
	}
	return nil
}

func (m *SessionManager) runtime(slot string) *slotRuntime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slots[slot]
}

// runSlot is the per-slot lifecycle loop. One logical task per slot: it
// connects, consumes events sequentially until the cycle ends, and decides
// whether to retry, park, or exit.
func (m *SessionManager) runSlot(ctx context.Context, slot string, rt *slotRuntime) {
	log := m.logger.With(zap.String("slot", slot))

	for {
		if ctx.Err() != nil {
			return
		}

		// Terminal state parks the loop until ForceReset wakes it. The
		// signal arrives after the wipe finished, so the pending flag is
		// consumed here rather than re-handled on the next iteration.
		if rt.session.IsTerminal() {
			select {
			case <-ctx.Done():
				return
			case <-rt.resetCh:
				rt.takeWipe()
				continue
			}
		}

		// A reset requested while the loop was between cycles: let the
		// wipe finish before dialing.
		if rt.takeWipe() {
			if !rt.awaitReset(ctx) {
				return
			}
		}

		cycleCtx, cancel := context.WithCancel(ctx)
		handle, err := m.client.Connect(cycleCtx, slot, m.creds)
		if err != nil {
			cancel()
			log.Warn("Channel connect failed, will retry", zap.Error(err))
			m.monitor.IncReconnect()
			if rt.takeWipe() {
				if !rt.awaitReset(ctx) {
					return
				}
				continue // reset mid-connect: reconnect with fresh state
			}
			_ = rt.session.Transition(StateStarting)
			if !sleepCtx(ctx, m.cfg.ReconnectDelay) {
				return
			}
			continue
		}
		rt.setCycle(cancel, handle)

		outcome := m.consumeEvents(cycleCtx, slot, rt, handle, log)

		cancel()
		_ = handle.Close()
		rt.backfillWG.Wait()
		rt.setCycle(nil, nil)

		if rt.takeWipe() {
			// The flag is set before ForceReset wipes; reconnecting now
			// could load a credential blob whose deletion is still in
			// flight and silently resume the old session. Wait for the
			// completion signal before dialing again.
			if !rt.awaitReset(ctx) {
				return
			}
			continue
		}

		switch outcome {
		case outcomeLoggedOut:
			_ = rt.session.Transition(StateLoggedOut)
			log.Warn("Slot logged out — parked until operator reset")
		case outcomeCancelled:
			return
		default:
			_ = rt.session.Transition(StateDisconnected)
			_ = rt.session.Transition(StateStarting)
			rt.session.RearmBackfill()
			m.monitor.IncReconnect()
			if !sleepCtx(ctx, m.cfg.ReconnectDelay) {
				return
			}
		}
	}
}

// consumeEvents drains the handle's event stream until the connection
// closes, the cycle is cancelled, or the stream ends. Message batches are
// forwarded to the ingestor unchanged — no filtering happens here.
func (m *SessionManager) consumeEvents(ctx context.Context, slot string, rt *slotRuntime, handle channel.Handle, log *zap.Logger) cycleOutcome {
	connected := false
	defer func() {
		if connected {
			m.monitor.AddConnectedSlots(-1)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return outcomeCancelled
		case ev, ok := <-handle.Events():
			if !ok {
				// Stream closed underneath us: treat as transport loss.
				return outcomeRetry
			}
			switch e := ev.(type) {
			case channel.ConnectionStateEvent:
				if e.PairingChallenge != "" {
					rt.session.SetPairingChallenge(e.PairingChallenge)
				}
				switch e.State {
				case channel.ConnOpen:
					if !connected {
						connected = true
						m.monitor.AddConnectedSlots(1)
					}
					rt.session.SetIdentity(e.Identity)
					if err := rt.session.Transition(StateConnected); err != nil {
						log.Warn("Ignoring open event", zap.Error(err))
						continue
					}
					log.Info("Slot connected", zap.String("identity", e.Identity))
					m.launchBackfill(ctx, slot, rt, handle)
				case channel.ConnClose:
					if e.DisconnectReason == channel.ReasonLoggedOut {
						return outcomeLoggedOut
					}
					log.Info("Connection closed", zap.String("reason", string(e.DisconnectReason)))
					return outcomeRetry
				}

			case channel.MessagesEvent:
				if _, err := m.ingestor.IngestBatch(ctx, slot, e.Batch); err != nil {
					// Storage failure is fatal to this batch, never to the
					// process or the connection.
					log.Error("Batch ingestion failed",
						zap.Int("batch_size", len(e.Batch)),
						zap.Bool("historical", e.Historical),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// launchBackfill fires the connection-cycle's single backfill run.
// Fire-and-forget: failures are logged inside the orchestrator and never
// affect the session.
func (m *SessionManager) launchBackfill(ctx context.Context, slot string, rt *slotRuntime, handle channel.Handle) {
	if !rt.session.ArmBackfill() {
		return
	}
	rt.backfillWG.Add(1)
	safego.Go(m.logger, "backfill:"+slot, func() {
		defer rt.backfillWG.Done()
		m.backfill.Run(ctx, slot, handle)
	})
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
