// Package collab orchestrates named collaborative workspaces: participant
// join/leave, workspace patching, and lifecycle (pending -> active ->
// ended). Domain events fan out through the realtime relay on the
// session's topic; state is written through to Postgres.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/models"
)

// DefaultEmptyGracePeriod is how long a session with no participants is
// kept alive before it ends, tolerating transient disconnects.
const DefaultEmptyGracePeriod = 60 * time.Second

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("collaboration session not found")
	// ErrSessionEnded is returned for any mutation of an ended session.
	ErrSessionEnded = errors.New("collaboration session ended")
	// ErrNotAParticipant is returned when a workspace update comes from a
	// non-member.
	ErrNotAParticipant = errors.New("not a session participant")
)

// Relay fans out session events to subscribers of the session topic.
// Satisfied by *realtime.Hub.
type Relay interface {
	Publish(topic, event string, payload interface{})
}

// Repository persists collaboration sessions and participant logs.
type Repository interface {
	Create(ctx context.Context, sess *models.CollabSession) error
	SetStatus(ctx context.Context, id uuid.UUID, status string, endedAt *time.Time) error
	SaveWorkspace(ctx context.Context, id uuid.UUID, workspace json.RawMessage) error
	LogJoin(ctx context.Context, sessionID, participantID uuid.UUID) error
	LogLeave(ctx context.Context, sessionID, participantID uuid.UUID) error
}

// Patch is a workspace patch: key -> replacement value. Overlapping
// patches resolve last-write-wins in arrival order at the manager.
type Patch map[string]json.RawMessage

// state is the in-memory authoritative view of one live session.
type state struct {
	sess         models.CollabSession
	participants map[uuid.UUID]struct{}
	workspace    map[string]json.RawMessage
	emptySince   time.Time // zero while occupied
}

// Manager owns the live session table. All mutations are serialized by
// its mutex; persistence and relay publishes happen write-through.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*state
	repo     Repository
	relay    Relay
	grace    time.Duration
	logger   *zap.Logger

	now func() time.Time // injectable for tests
}

// NewManager creates a session manager. A non-positive grace period
// falls back to the default.
func NewManager(repo Repository, relay Relay, grace time.Duration, logger *zap.Logger) *Manager {
	if grace <= 0 {
		grace = DefaultEmptyGracePeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*state),
		repo:     repo,
		relay:    relay,
		grace:    grace,
		logger:   logger,
		now:      time.Now,
	}
}

// Topic returns the relay topic for a session.
func Topic(sessionID uuid.UUID) string {
	return "collab:" + sessionID.String()
}

// CreateSession registers a new pending session for a project. It
// becomes active when the first participant joins.
func (m *Manager) CreateSession(ctx context.Context, projectRef string, initiatorID uuid.UUID, sessionType string) (*models.CollabSession, error) {
	sess := &models.CollabSession{
		ProjectRef:  projectRef,
		Type:        sessionType,
		InitiatorID: initiatorID,
		Status:      models.CollabStatusPending,
		Workspace:   json.RawMessage("{}"),
	}
	if err := m.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[sess.ID] = &state{
		sess:         *sess,
		participants: make(map[uuid.UUID]struct{}),
		workspace:    make(map[string]json.RawMessage),
	}
	m.mu.Unlock()

	m.logger.Info("collab session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("project_ref", projectRef))
	return sess, nil
}

// JoinSession adds a participant. Joining twice is a no-op. The first
// join activates a pending session. Publishes participant-joined.
func (m *Manager) JoinSession(ctx context.Context, sessionID, participantID uuid.UUID) error {
	m.mu.Lock()
	st, err := m.liveSession(ctx, sessionID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := st.participants[participantID]; ok {
		m.mu.Unlock()
		return nil
	}
	st.participants[participantID] = struct{}{}
	st.emptySince = time.Time{}
	activated := st.sess.Status == models.CollabStatusPending
	if activated {
		st.sess.Status = models.CollabStatusActive
	}
	m.mu.Unlock()

	if activated {
		if err := m.repo.SetStatus(ctx, sessionID, models.CollabStatusActive, nil); err != nil {
			m.logger.Warn("persist session activation failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
	}
	if err := m.repo.LogJoin(ctx, sessionID, participantID); err != nil {
		m.logger.Warn("persist join log failed", zap.Error(err), zap.String("session_id", sessionID.String()))
	}
	m.relay.Publish(Topic(sessionID), "participant-joined", map[string]string{
		"participant_id": participantID.String(),
	})
	return nil
}

// LeaveSession removes a participant. When the set becomes empty the
// grace clock starts; the session ends only once the grace period has
// elapsed (checked lazily and by ReapEmpty). Publishes participant-left.
func (m *Manager) LeaveSession(ctx context.Context, sessionID, participantID uuid.UUID) error {
	m.mu.Lock()
	st, err := m.liveSession(ctx, sessionID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := st.participants[participantID]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(st.participants, participantID)
	if len(st.participants) == 0 {
		st.emptySince = m.now()
	}
	m.mu.Unlock()

	if err := m.repo.LogLeave(ctx, sessionID, participantID); err != nil {
		m.logger.Warn("persist leave log failed", zap.Error(err), zap.String("session_id", sessionID.String()))
	}
	m.relay.Publish(Topic(sessionID), "participant-left", map[string]string{
		"participant_id": participantID.String(),
	})
	return nil
}

// UpdateWorkspace applies a patch from a current participant.
// Publishes workspace-updated carrying the patch, not the full state.
func (m *Manager) UpdateWorkspace(ctx context.Context, sessionID, participantID uuid.UUID, patch Patch) error {
	m.mu.Lock()
	st, err := m.liveSession(ctx, sessionID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := st.participants[participantID]; !ok {
		m.mu.Unlock()
		return ErrNotAParticipant
	}
	for k, v := range patch {
		st.workspace[k] = v
	}
	full, err := json.Marshal(st.workspace)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("marshal workspace: %w", err)
	}
	st.sess.Workspace = full
	m.mu.Unlock()

	if err := m.repo.SaveWorkspace(ctx, sessionID, full); err != nil {
		m.logger.Warn("persist workspace failed", zap.Error(err), zap.String("session_id", sessionID.String()))
	}
	m.relay.Publish(Topic(sessionID), "workspace-updated", map[string]interface{}{
		"participant_id": participantID.String(),
		"patch":          patch,
	})
	return nil
}

// EndSession ends a session explicitly. Only a current participant or
// the initiator may end it. Ended sessions are immutable.
func (m *Manager) EndSession(ctx context.Context, sessionID, participantID uuid.UUID) error {
	m.mu.Lock()
	st, err := m.liveSession(ctx, sessionID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	_, member := st.participants[participantID]
	if !member && st.sess.InitiatorID != participantID {
		m.mu.Unlock()
		return ErrNotAParticipant
	}
	m.endLocked(ctx, st)
	m.mu.Unlock()
	return nil
}

// GetSession returns a snapshot of the session, applying the lazy
// grace-period check on access.
func (m *Manager) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.CollabSession, []uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	m.maybeExpireLocked(ctx, st)
	sess := st.sess
	participants := make([]uuid.UUID, 0, len(st.participants))
	for id := range st.participants {
		participants = append(participants, id)
	}
	return &sess, participants, nil
}

// ReapEmpty ends every session whose participant set has been empty past
// the grace period and reclaims ended sessions' memory. Called
// periodically by the background worker.
func (m *Manager) ReapEmpty(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	reaped := 0
	for id, st := range m.sessions {
		if m.maybeExpireLocked(ctx, st) {
			reaped++
		}
		if st.sess.Status == models.CollabStatusEnded {
			delete(m.sessions, id)
		}
	}
	return reaped
}

// liveSession fetches a session by ID, applying the lazy grace check.
// Returns ErrSessionNotFound or ErrSessionEnded. Caller holds the lock.
func (m *Manager) liveSession(ctx context.Context, sessionID uuid.UUID) (*state, error) {
	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	m.maybeExpireLocked(ctx, st)
	if st.sess.Status == models.CollabStatusEnded {
		return nil, ErrSessionEnded
	}
	return st, nil
}

// maybeExpireLocked ends an active session whose grace period has
// elapsed. Returns true when the session transitioned. Caller holds the lock.
func (m *Manager) maybeExpireLocked(ctx context.Context, st *state) bool {
	if st.sess.Status != models.CollabStatusActive {
		return false
	}
	if len(st.participants) > 0 || st.emptySince.IsZero() {
		return false
	}
	if m.now().Sub(st.emptySince) < m.grace {
		return false
	}
	m.endLocked(ctx, st)
	return true
}

// endLocked transitions a session to ended, persists, and publishes
// session-ended. Caller holds the lock.
func (m *Manager) endLocked(ctx context.Context, st *state) {
	endedAt := m.now()
	st.sess.Status = models.CollabStatusEnded
	st.sess.EndedAt = &endedAt
	if err := m.repo.SetStatus(ctx, st.sess.ID, models.CollabStatusEnded, &endedAt); err != nil {
		m.logger.Warn("persist session end failed", zap.Error(err), zap.String("session_id", st.sess.ID.String()))
	}
	m.relay.Publish(Topic(st.sess.ID), "session-ended", map[string]string{
		"session_id": st.sess.ID.String(),
	})
	m.logger.Info("collab session ended", zap.String("session_id", st.sess.ID.String()))
}
