package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository/memory"
	"github.com/careconnect/pairing-server/internal/sse"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	UserID string
	Event  sse.Event
}

func (p *recordingPublisher) Publish(_ context.Context, userID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{UserID: userID, Event: event})
	return p.err
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, userID string, event sse.Event) error {
	args := m.Called(ctx, userID, event)
	return args.Error(0)
}

type testEnv struct {
	clock       *fakeClock
	store       *memory.Store
	events      *recordingPublisher
	tokens      *TokenService
	connections *ConnectionService
	pairing     *PairingService
	workspaces  *WorkspaceService
	auth        *AuthService
	patients    *PatientService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	store := memory.New(clock.Now)
	events := &recordingPublisher{}

	tokens := NewTokenService(store.Tokens(), store.Users(), "https://care.example.com/connect?token=", clock.Now)
	connections := NewConnectionService(store.Connections(), events)

	return &testEnv{
		clock:       clock,
		store:       store,
		events:      events,
		tokens:      tokens,
		connections: connections,
		pairing:     NewPairingService(tokens, connections, store.Users()),
		workspaces:  NewWorkspaceService(store.Connections(), store.Workspaces(), store.Users()),
		auth:        NewAuthService(store.Users(), "test-secret-test-secret-test-secret", 24*time.Hour, clock.Now),
		patients:    NewPatientService(store.Users(), store.Connections()),
	}
}

func (e *testEnv) user(t *testing.T, email string, role model.Role, name string) *model.User {
	t.Helper()
	u, err := e.store.Users().Create(context.Background(), model.CreateUserParams{
		Email:        email,
		PasswordHash: "unused",
		Role:         role,
		DisplayName:  name,
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) doctor(t *testing.T, name string) *model.User {
	t.Helper()
	return e.user(t, name+"@clinic.example.com", model.RoleDoctor, "Dr. "+name)
}

func (e *testEnv) patient(t *testing.T, name string) *model.User {
	t.Helper()
	return e.user(t, name+"@mail.example.com", model.RolePatient, name)
}

// acceptedConnection creates a manual doctor-initiated connection and has the
// patient accept it.
func (e *testEnv) acceptedConnection(t *testing.T, doctor, patient *model.User) *model.Connection {
	t.Helper()
	ctx := context.Background()
	c, err := e.pairing.Connect(ctx, doctor.ID, doctor.ID, patient.ID, nil)
	require.NoError(t, err)
	c, err = e.pairing.AcceptConnection(ctx, c.ID, patient.ID, nil)
	require.NoError(t, err)
	return c
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, "unexpected error: %v", err)
}
