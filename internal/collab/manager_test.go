package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/models"
)

// memRepo is an in-memory Repository for manager tests.
type memRepo struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
	saves    int
}

func newMemRepo() *memRepo {
	return &memRepo{statuses: make(map[uuid.UUID]string)}
}

func (r *memRepo) Create(_ context.Context, sess *models.CollabSession) error {
	sess.ID = uuid.New()
	sess.CreatedAt = time.Now()
	r.mu.Lock()
	r.statuses[sess.ID] = sess.Status
	r.mu.Unlock()
	return nil
}

func (r *memRepo) SetStatus(_ context.Context, id uuid.UUID, status string, _ *time.Time) error {
	r.mu.Lock()
	r.statuses[id] = status
	r.mu.Unlock()
	return nil
}

func (r *memRepo) SaveWorkspace(context.Context, uuid.UUID, json.RawMessage) error {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return nil
}

func (r *memRepo) LogJoin(context.Context, uuid.UUID, uuid.UUID) error  { return nil }
func (r *memRepo) LogLeave(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (r *memRepo) status(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

// memRelay records published events.
type memRelay struct {
	mu     sync.Mutex
	events []string
	topics []string
}

func (r *memRelay) Publish(topic, event string, _ interface{}) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.topics = append(r.topics, topic)
	r.mu.Unlock()
}

func (r *memRelay) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

func newTestManager(grace time.Duration) (*Manager, *memRepo, *memRelay, *time.Time) {
	repo := newMemRepo()
	relay := &memRelay{}
	m := NewManager(repo, relay, grace, zap.NewNop())
	clock := time.Now()
	m.now = func() time.Time { return clock }
	return m, repo, relay, &clock
}

func TestCreateAndFirstJoinActivates(t *testing.T) {
	m, repo, relay, _ := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)
	assert.Equal(t, models.CollabStatusPending, sess.Status)

	p := uuid.New()
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))

	got, participants, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollabStatusActive, got.Status)
	assert.Len(t, participants, 1)
	assert.Equal(t, models.CollabStatusActive, repo.status(sess.ID))
	assert.Equal(t, "participant-joined", relay.last())
	assert.Equal(t, Topic(sess.ID), relay.topics[len(relay.topics)-1])
}

func TestJoinIdempotent(t *testing.T) {
	m, _, _, _ := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)

	p := uuid.New()
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))

	_, participants, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}

func TestJoinUnknownSession(t *testing.T) {
	m, _, _, _ := newTestManager(time.Minute)
	err := m.JoinSession(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEmptySessionEndsAfterGracePeriodOnly(t *testing.T) {
	m, repo, relay, clock := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)
	p := uuid.New()
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))
	require.NoError(t, m.LeaveSession(ctx, sess.ID, p))
	assert.Equal(t, "participant-left", relay.last())

	// Within the grace period the session stays active and rejoinable.
	*clock = clock.Add(30 * time.Second)
	got, _, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollabStatusActive, got.Status)
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))
	require.NoError(t, m.LeaveSession(ctx, sess.ID, p))

	// Past the grace period the next access ends it.
	*clock = clock.Add(2 * time.Minute)
	got, _, err = m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollabStatusEnded, got.Status)
	assert.Equal(t, models.CollabStatusEnded, repo.status(sess.ID))
	assert.Equal(t, "session-ended", relay.last())

	assert.ErrorIs(t, m.JoinSession(ctx, sess.ID, p), ErrSessionEnded)
}

func TestRejoinCancelsGraceClock(t *testing.T) {
	m, _, _, clock := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)
	p := uuid.New()
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))
	require.NoError(t, m.LeaveSession(ctx, sess.ID, p))
	*clock = clock.Add(30 * time.Second)
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))

	// Occupied sessions never expire, however much time passes.
	*clock = clock.Add(time.Hour)
	got, _, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollabStatusActive, got.Status)
}

func TestUpdateWorkspace(t *testing.T) {
	m, repo, relay, _ := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)
	p := uuid.New()
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))

	patch := Patch{"title": json.RawMessage(`"Draft"`)}
	require.NoError(t, m.UpdateWorkspace(ctx, sess.ID, p, patch))
	assert.Equal(t, "workspace-updated", relay.last())
	assert.Equal(t, 1, repo.saves)

	// Last write wins per key.
	require.NoError(t, m.UpdateWorkspace(ctx, sess.ID, p, Patch{"title": json.RawMessage(`"Final"`)}))
	got, _, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	var ws map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(got.Workspace, &ws))
	assert.JSONEq(t, `"Final"`, string(ws["title"]))
}

func TestUpdateWorkspaceRequiresMembership(t *testing.T) {
	m, _, _, _ := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)
	require.NoError(t, m.JoinSession(ctx, sess.ID, uuid.New()))

	err = m.UpdateWorkspace(ctx, sess.ID, uuid.New(), Patch{"k": json.RawMessage(`1`)})
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestEndSessionExplicit(t *testing.T) {
	m, _, relay, _ := newTestManager(time.Minute)
	ctx := context.Background()

	initiator := uuid.New()
	sess, err := m.CreateSession(ctx, "proj-1", initiator, "research")
	require.NoError(t, err)
	p := uuid.New()
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))

	assert.ErrorIs(t, m.EndSession(ctx, sess.ID, uuid.New()), ErrNotAParticipant)
	require.NoError(t, m.EndSession(ctx, sess.ID, p))
	assert.Equal(t, "session-ended", relay.last())

	// Ended sessions are immutable.
	assert.ErrorIs(t, m.JoinSession(ctx, sess.ID, p), ErrSessionEnded)
	assert.ErrorIs(t, m.UpdateWorkspace(ctx, sess.ID, p, Patch{}), ErrSessionEnded)
	assert.ErrorIs(t, m.EndSession(ctx, sess.ID, p), ErrSessionEnded)
}

func TestReapEmpty(t *testing.T) {
	m, _, _, clock := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)
	p := uuid.New()
	require.NoError(t, m.JoinSession(ctx, sess.ID, p))
	require.NoError(t, m.LeaveSession(ctx, sess.ID, p))

	assert.Equal(t, 0, m.ReapEmpty(ctx))
	*clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, m.ReapEmpty(ctx))

	// Reaped sessions are evicted from memory.
	_, _, err = m.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLeaveUnknownParticipantIsNoop(t *testing.T) {
	m, _, _, _ := newTestManager(time.Minute)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "proj-1", uuid.New(), "research")
	require.NoError(t, err)
	require.NoError(t, m.JoinSession(ctx, sess.ID, uuid.New()))
	assert.NoError(t, m.LeaveSession(ctx, sess.ID, uuid.New()))

	_, participants, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}
