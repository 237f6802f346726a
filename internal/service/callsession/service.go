package callsession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsync-core/internal/domain"
	"callsync-core/pkg/errors"
	"callsync-core/pkg/logger"
	"callsync-core/pkg/metrics"
)

// Presenter displays an incoming call to the user through one platform
// mechanism (native call UI, in-app full-screen, best-effort notification)
type Presenter interface {
	Name() string
	Present(ctx context.Context, session *domain.CallSession) error
	Dismiss(ctx context.Context, callID uuid.UUID) error
}

// KeepAlive is the OS-level foreground keep-alive mechanism. Failures must
// not block call progress.
type KeepAlive interface {
	Start(ctx context.Context, callID uuid.UUID) error
	Stop(ctx context.Context, callID uuid.UUID) error
}

// HistoryRecorder persists terminal sessions to the call log, best effort
type HistoryRecorder interface {
	Record(ctx context.Context, session *domain.CallSession) error
}

// InviteStore is the durable key-value store used to rehydrate an answered
// call from a cold-start context where the session only exists as an invite
// payload
type InviteStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// Config controls call session behavior
type Config struct {
	// InviteTTL bounds how long a persisted invite can rehydrate a session
	InviteTTL time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		InviteTTL: 2 * time.Minute,
	}
}

// Service owns the canonical state of the device's call session. At most one
// session may be in a non-terminal state at a time; a second incoming call is
// rejected deterministically with a CALL_CONFLICT error.
type Service struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.CallSession

	// Most recently finalized call; late transitions on it are dropped as
	// stale instead of reported as unknown
	lastTerminalID    uuid.UUID
	lastTerminalState domain.CallState

	cfg       Config
	presenter Presenter
	keepAlive KeepAlive
	history   HistoryRecorder
	invites   InviteStore
	emitter   *Emitter
}

// NewService creates a new call session service. presenter and invites are
// required; keepAlive and history may be nil (their side effects are skipped).
func NewService(cfg Config, presenter Presenter, invites InviteStore, keepAlive KeepAlive, history HistoryRecorder) *Service {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = DefaultConfig().InviteTTL
	}
	return &Service{
		sessions:  make(map[uuid.UUID]*domain.CallSession),
		cfg:       cfg,
		presenter: presenter,
		keepAlive: keepAlive,
		history:   history,
		invites:   invites,
		emitter:   NewEmitter(),
	}
}

// Events returns the lifecycle event registry
func (s *Service) Events() *Emitter {
	return s.emitter
}

func inviteKey(callID uuid.UUID) string {
	return fmt.Sprintf("call:invite:%s", callID)
}

// DisplayIncomingCall validates the invite, creates the session in ringing,
// and triggers the platform incoming-call presentation. A second incoming
// call while one is active is rejected, never queued.
func (s *Service) DisplayIncomingCall(ctx context.Context, invite *domain.InvitePayload) (uuid.UUID, error) {
	if err := invite.Validate(); err != nil {
		return uuid.Nil, errors.ValidationError(err.Error())
	}

	callID := uuid.New()
	if invite.CallID != "" {
		parsed, err := uuid.Parse(invite.CallID)
		if err != nil {
			return uuid.Nil, errors.InvalidInputError(fmt.Sprintf("call_id %q is not a valid UUID", invite.CallID))
		}
		callID = parsed
	}

	session := &domain.CallSession{
		CallID:            callID,
		CallerID:          invite.CallerID,
		CallerDisplayName: invite.CallerDisplayName,
		CallerRole:        invite.CallerRole,
		CallKind:          invite.CallKind,
		RoomReference:     invite.RoomReference,
		State:             domain.CallStateRinging,
		Metadata:          invite.ParsedMetadata(),
		CreatedAt:         time.Now(),
	}

	s.mu.Lock()
	// Invariant: at most one non-terminal session per device
	if active := s.activeLocked(); active != nil {
		activeID := active.CallID
		s.mu.Unlock()
		metrics.CallConflictRejectedTotal.Inc()
		logger.Warn("Incoming call rejected, another call is active",
			zap.String("call_id", callID.String()),
			zap.String("active_call_id", activeID.String()))
		return uuid.Nil, errors.CallConflictError(activeID.String())
	}
	if _, exists := s.sessions[callID]; exists {
		s.mu.Unlock()
		return uuid.Nil, errors.ConflictError(fmt.Sprintf("call %s already exists", callID))
	}
	s.sessions[callID] = session
	s.mu.Unlock()

	metrics.CallSessionCreatedTotal.WithLabelValues(string(session.CallKind), "incoming").Inc()
	metrics.CallActiveSessions.Inc()

	// Persist the invite so Answer can rehydrate the session after a cold
	// start that lost the in-memory record
	if data, err := json.Marshal(invite); err == nil {
		if err := s.invites.Set(ctx, inviteKey(callID), data, s.cfg.InviteTTL); err != nil {
			logger.Warn("Failed to persist invite record",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
	}

	// Present the call. Presenter failure is terminal for the invite: the
	// chain has already exhausted every fallback mechanism.
	if err := s.presenter.Present(ctx, session); err != nil {
		logger.Error("All presentation mechanisms failed",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		s.finalize(ctx, callID, domain.CallStateFailed, "presentation failed")
		return uuid.Nil, errors.PresentationFailedError(callID.String())
	}

	logger.Info("Incoming call displayed",
		zap.String("call_id", callID.String()),
		zap.String("caller_id", session.CallerID),
		zap.String("call_kind", string(session.CallKind)))

	return callID, nil
}

// Answer transitions ringing -> answered -> connecting, firing the
// call-answered event exactly once. When the session is unknown (cold start)
// it is rehydrated from the persisted invite record.
func (s *Service) Answer(ctx context.Context, callID uuid.UUID) error {
	s.mu.Lock()
	session, exists := s.sessions[callID]
	if !exists && callID == s.lastTerminalID {
		// Late answer for a call that already finished
		s.dropStale(callID, s.lastTerminalState, domain.CallStateAnswered)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if !exists {
		rehydrated, err := s.rehydrate(ctx, callID)
		if err != nil {
			return err
		}
		session = rehydrated
	}

	s.mu.Lock()
	if session.State != domain.CallStateRinging {
		state := session.State
		s.mu.Unlock()
		s.dropStale(callID, state, domain.CallStateAnswered)
		return nil
	}
	now := time.Now()
	session.State = domain.CallStateAnswered
	session.AnsweredAt = &now
	answeredSnapshot := *session
	s.mu.Unlock()

	metrics.CallTransitionTotal.WithLabelValues(string(domain.CallStateRinging), string(domain.CallStateAnswered)).Inc()
	logger.Info("Call answered", zap.String("call_id", callID.String()))

	// Foreground keep-alive failure must not block call progress
	if s.keepAlive != nil {
		if err := s.keepAlive.Start(ctx, callID); err != nil {
			logger.Warn("Keep-alive start failed",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
	}

	s.emitter.emitAnswered(&answeredSnapshot)

	// Immediately begin connecting; the transport drives it to active
	s.mu.Lock()
	if session.State == domain.CallStateAnswered {
		session.State = domain.CallStateConnecting
	}
	s.mu.Unlock()
	metrics.CallTransitionTotal.WithLabelValues(string(domain.CallStateAnswered), string(domain.CallStateConnecting)).Inc()

	return nil
}

// Decline applies the terminal declined transition and fires the
// call-declined event. Declining an already-declined call is a no-op because
// user input and transport callbacks can race.
func (s *Service) Decline(ctx context.Context, callID uuid.UUID) error {
	return s.terminalFromRinging(ctx, callID, domain.CallStateDeclined, "declined by user")
}

// ReportMissed applies the terminal missed transition
func (s *Service) ReportMissed(ctx context.Context, callID uuid.UUID) error {
	return s.terminalFromRinging(ctx, callID, domain.CallStateMissed, "not answered")
}

// terminalFromRinging moves ringing -> target; any other current state makes
// the event stale and it is dropped, not applied
func (s *Service) terminalFromRinging(ctx context.Context, callID uuid.UUID, target domain.CallState, reason string) error {
	s.mu.Lock()
	session, exists := s.sessions[callID]
	if !exists {
		err := s.unknownLocked(callID, target)
		s.mu.Unlock()
		return err
	}
	if session.State != domain.CallStateRinging {
		state := session.State
		s.mu.Unlock()
		s.dropStale(callID, state, target)
		return nil
	}
	s.mu.Unlock()

	s.finalize(ctx, callID, target, reason)
	return nil
}

// unknownLocked classifies a transition on an unknown call id: a late event
// for the most recently finalized call is stale, anything else is an error.
// Caller holds the lock.
func (s *Service) unknownLocked(callID uuid.UUID, to domain.CallState) error {
	if callID == s.lastTerminalID {
		s.dropStale(callID, s.lastTerminalState, to)
		return nil
	}
	return errors.CallNotFoundError(callID.String())
}

// MarkConnected is the transport-driven connecting -> active transition
func (s *Service) MarkConnected(ctx context.Context, callID uuid.UUID) error {
	s.mu.Lock()
	session, exists := s.sessions[callID]
	if !exists {
		err := s.unknownLocked(callID, domain.CallStateActive)
		s.mu.Unlock()
		return err
	}
	switch session.State {
	case domain.CallStateConnecting:
		session.State = domain.CallStateActive
		s.mu.Unlock()
		metrics.CallTransitionTotal.WithLabelValues(string(domain.CallStateConnecting), string(domain.CallStateActive)).Inc()
		logger.Info("Call connected", zap.String("call_id", callID.String()))
		return nil
	case domain.CallStateActive:
		// Duplicate transport callback
		s.mu.Unlock()
		return nil
	default:
		state := session.State
		s.mu.Unlock()
		s.dropStale(callID, state, domain.CallStateActive)
		return nil
	}
}

// MarkEnded is the transport-driven terminal transition from connecting or
// active
func (s *Service) MarkEnded(ctx context.Context, callID uuid.UUID, reason string) error {
	s.mu.Lock()
	session, exists := s.sessions[callID]
	if !exists {
		err := s.unknownLocked(callID, domain.CallStateEnded)
		s.mu.Unlock()
		return err
	}
	switch session.State {
	case domain.CallStateConnecting, domain.CallStateActive:
		s.mu.Unlock()
	default:
		state := session.State
		s.mu.Unlock()
		s.dropStale(callID, state, domain.CallStateEnded)
		return nil
	}

	s.finalize(ctx, callID, domain.CallStateEnded, reason)
	return nil
}

// MarkFailed applies the terminal failed transition from any non-terminal
// state. Used when recovery is exhausted.
func (s *Service) MarkFailed(ctx context.Context, callID uuid.UUID, reason string) error {
	s.mu.Lock()
	session, exists := s.sessions[callID]
	if !exists {
		err := s.unknownLocked(callID, domain.CallStateFailed)
		s.mu.Unlock()
		return err
	}
	if session.State.IsTerminal() {
		state := session.State
		s.mu.Unlock()
		s.dropStale(callID, state, domain.CallStateFailed)
		return nil
	}
	s.mu.Unlock()

	s.finalize(ctx, callID, domain.CallStateFailed, reason)
	return nil
}

// EndSession ends whatever session is currently non-terminal. Calling it with
// no active session is a no-op, not an error.
func (s *Service) EndSession(ctx context.Context, reason string) error {
	s.mu.Lock()
	active := s.activeLocked()
	s.mu.Unlock()

	if active == nil {
		logger.Debug("EndSession called with no active session")
		return nil
	}

	s.finalize(ctx, active.CallID, domain.CallStateEnded, reason)
	return nil
}

// ActiveSession returns a copy of the current non-terminal session, nil when
// there is none
func (s *Service) ActiveSession() *domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active := s.activeLocked(); active != nil {
		snapshot := *active
		return &snapshot
	}
	return nil
}

// Session returns a copy of the session with the given id
func (s *Service) Session(callID uuid.UUID) (*domain.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[callID]
	if !exists {
		return nil, false
	}
	snapshot := *session
	return &snapshot, true
}

// activeLocked returns the non-terminal session, nil when none. Caller holds
// the lock.
func (s *Service) activeLocked() *domain.CallSession {
	for _, session := range s.sessions {
		if !session.State.IsTerminal() {
			return session
		}
	}
	return nil
}

// rehydrate reconstructs a ringing session from the persisted invite record.
// Answer may be invoked from a cold-start context where the in-memory session
// was lost with the previous process.
func (s *Service) rehydrate(ctx context.Context, callID uuid.UUID) (*domain.CallSession, error) {
	data, found, err := s.invites.Get(ctx, inviteKey(callID))
	if err != nil {
		return nil, errors.StorageError(err)
	}
	if !found {
		return nil, errors.CallNotFoundError(callID.String())
	}

	var invite domain.InvitePayload
	if err := json.Unmarshal(data, &invite); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, "corrupt invite record", err)
	}

	session := &domain.CallSession{
		CallID:            callID,
		CallerID:          invite.CallerID,
		CallerDisplayName: invite.CallerDisplayName,
		CallerRole:        invite.CallerRole,
		CallKind:          invite.CallKind,
		RoomReference:     invite.RoomReference,
		State:             domain.CallStateRinging,
		Metadata:          invite.ParsedMetadata(),
		CreatedAt:         time.Now(),
	}

	s.mu.Lock()
	if existing, exists := s.sessions[callID]; exists {
		// Lost the race with another rehydration
		s.mu.Unlock()
		return existing, nil
	}
	if active := s.activeLocked(); active != nil {
		activeID := active.CallID
		s.mu.Unlock()
		return nil, errors.CallConflictError(activeID.String())
	}
	s.sessions[callID] = session
	s.mu.Unlock()

	metrics.CallActiveSessions.Inc()
	logger.Info("Call session rehydrated from persisted invite",
		zap.String("call_id", callID.String()))

	return session, nil
}

// finalize applies a terminal state and runs every terminal side effect
// exactly once: presenter dismissal, keep-alive stop, history record, invite
// cleanup, event emission
func (s *Service) finalize(ctx context.Context, callID uuid.UUID, target domain.CallState, reason string) {
	s.mu.Lock()
	session, exists := s.sessions[callID]
	if !exists {
		s.mu.Unlock()
		return
	}
	if session.State.IsTerminal() {
		state := session.State
		s.mu.Unlock()
		s.dropStale(callID, state, target)
		return
	}
	from := session.State
	now := time.Now()
	session.State = target
	session.EndedAt = &now
	session.EndReason = reason
	terminalSnapshot := *session
	s.mu.Unlock()

	metrics.CallTransitionTotal.WithLabelValues(string(from), string(target)).Inc()
	metrics.CallActiveSessions.Dec()
	if terminalSnapshot.AnsweredAt != nil {
		metrics.CallDurationSeconds.Observe(now.Sub(*terminalSnapshot.AnsweredAt).Seconds())
	}

	logger.Info("Call session reached terminal state",
		zap.String("call_id", callID.String()),
		zap.String("from", string(from)),
		zap.String("state", string(target)),
		zap.String("reason", reason))

	// Release the platform call UI
	if err := s.presenter.Dismiss(ctx, callID); err != nil {
		logger.Warn("Presenter dismiss failed",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	// Keep-alive stop failure is logged, never propagated
	if s.keepAlive != nil {
		if err := s.keepAlive.Stop(ctx, callID); err != nil {
			logger.Warn("Keep-alive stop failed",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
	}

	// The invite record must not rehydrate a terminal call
	if err := s.invites.Delete(ctx, inviteKey(callID)); err != nil {
		logger.Warn("Failed to delete invite record",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	// Call log is best effort
	if s.history != nil {
		if err := s.history.Record(ctx, &terminalSnapshot); err != nil {
			logger.Warn("Failed to record call history",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
	}

	if target == domain.CallStateDeclined {
		s.emitter.emitDeclined(&terminalSnapshot)
	}
	s.emitter.emitTerminal(&terminalSnapshot)

	// Terminal sessions leave the active set
	s.mu.Lock()
	delete(s.sessions, callID)
	s.lastTerminalID = callID
	s.lastTerminalState = target
	s.mu.Unlock()
}

// dropStale records an out-of-order or duplicate transition that was ignored
func (s *Service) dropStale(callID uuid.UUID, from, to domain.CallState) {
	metrics.CallStaleTransitionTotal.WithLabelValues(string(from), string(to)).Inc()
	logger.Warn("Stale transition dropped",
		zap.String("call_id", callID.String()),
		zap.String("current_state", string(from)),
		zap.String("attempted_state", string(to)))
}
