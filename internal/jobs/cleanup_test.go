package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository/memory"
	"github.com/careconnect/pairing-server/internal/service"
)

type mockReaper struct {
	mu         sync.Mutex
	calls      int
	retentions []time.Duration
	err        error
	called     chan struct{}
}

func newMockReaper() *mockReaper {
	return &mockReaper{called: make(chan struct{}, 10)}
}

func (m *mockReaper) ReapExpired(_ context.Context, retention time.Duration) (int64, error) {
	m.mu.Lock()
	m.calls++
	m.retentions = append(m.retentions, retention)
	m.mu.Unlock()
	select {
	case m.called <- struct{}{}:
	default:
	}
	return 3, m.err
}

func (m *mockReaper) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCleanupJob_RunsImmediatelyAndOnTicks(t *testing.T) {
	reaper := newMockReaper()
	job := NewCleanupJob(reaper, 168*time.Hour, 10*time.Millisecond)

	job.Start()
	for i := 0; i < 2; i++ {
		select {
		case <-reaper.called:
		case <-time.After(time.Second):
			t.Fatal("reaper was not called")
		}
	}
	job.Stop()

	calls := reaper.Calls()
	assert.GreaterOrEqual(t, calls, 2)
	assert.Equal(t, 168*time.Hour, reaper.retentions[0])

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, reaper.Calls(), "no passes after Stop")
}

func TestCleanupJob_StopIsIdempotent(t *testing.T) {
	job := NewCleanupJob(newMockReaper(), time.Hour, time.Hour)
	job.Start()
	job.Stop()
	job.Stop()
}

func TestCleanupJob_ErrorDoesNotStopJob(t *testing.T) {
	reaper := newMockReaper()
	reaper.err = errors.New("database unavailable")
	job := NewCleanupJob(reaper, time.Hour, 10*time.Millisecond)

	job.Start()
	defer job.Stop()
	for i := 0; i < 2; i++ {
		select {
		case <-reaper.called:
		case <-time.After(time.Second):
			t.Fatal("job stopped after an error")
		}
	}
}

func TestCleanupJob_ReapsThroughTokenService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.New(clock)

	doctor, err := store.Users().Create(ctx, model.CreateUserParams{
		Email: "kim@clinic.example.com", PasswordHash: "x", Role: model.RoleDoctor, DisplayName: "Dr. Kim",
	})
	require.NoError(t, err)

	tokens := service.NewTokenService(store.Tokens(), store.Users(), "", clock)
	old, err := tokens.Issue(ctx, doctor.ID, 1, 1)
	require.NoError(t, err)

	now = now.Add(10 * 24 * time.Hour)
	fresh, err := tokens.Issue(ctx, doctor.ID, 1, 1)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)

	reaped, err := tokens.ReapExpired(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reaped)

	_, err = tokens.Get(ctx, old.Token)
	assert.Error(t, err)
	_, err = tokens.Get(ctx, fresh.Token)
	assert.NoError(t, err, "expired tokens inside the retention window are kept")
}
