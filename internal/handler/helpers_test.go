package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careconnect/pairing-server/internal/middleware"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository/memory"
	"github.com/careconnect/pairing-server/internal/service"
	"github.com/careconnect/pairing-server/internal/sse"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
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

type testServer struct {
	clock   *fakeClock
	broker  *sse.Broker
	auth    *service.AuthService
	tokens  *service.TokenService
	pairing *service.PairingService
	handler http.Handler
}

type testUser struct {
	*model.User
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	store := memory.New(clock.Now)
	broker := sse.NewBroker(nil)
	t.Cleanup(broker.Close)

	auth := service.NewAuthService(store.Users(), "handler-test-secret-handler-test", 24*time.Hour, clock.Now)
	tokens := service.NewTokenService(store.Tokens(), store.Users(), "https://care.example.com/connect?token=", clock.Now)
	connections := service.NewConnectionService(store.Connections(), broker)
	pairing := service.NewPairingService(tokens, connections, store.Users())

	handler := NewRouter(RouterDeps{
		Auth:        auth,
		Tokens:      tokens,
		Pairing:     pairing,
		Connections: connections,
		Workspaces:  service.NewWorkspaceService(store.Connections(), store.Workspaces(), store.Users()),
		Patients:    service.NewPatientService(store.Users(), store.Connections()),
		Broker:      broker,
		Limiter:     middleware.NewMemoryLimiter(),
	})

	return &testServer{
		clock:   clock,
		broker:  broker,
		auth:    auth,
		tokens:  tokens,
		pairing: pairing,
		handler: handler,
	}
}

func (s *testServer) signup(t *testing.T, email string, role model.Role, name string) testUser {
	t.Helper()
	result, err := s.auth.Signup(context.Background(), service.SignupParams{
		Email:          email,
		Password:       "correct-horse",
		Role:           role,
		DisplayName:    name,
		Specialization: "Internal Medicine",
	})
	require.NoError(t, err)
	return testUser{User: result.User, token: result.Token}
}

func (s *testServer) doctor(t *testing.T, name string) testUser {
	return s.signup(t, name+"@clinic.example.com", model.RoleDoctor, "Dr. "+name)
}

func (s *testServer) patient(t *testing.T, name string) testUser {
	return s.signup(t, name+"@mail.example.com", model.RolePatient, name)
}

// do sends a request through the full router. body is JSON-encoded when
// non-nil.
func (s *testServer) do(t *testing.T, method, path string, as *testUser, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+as.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// issueToken issues a token through the API and returns its value.
func (s *testServer) issueToken(t *testing.T, doctor testUser, body any) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/tokens", &doctor, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["token"].(string)
}

func connectionID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	conn, ok := decode(t, rec)["connection"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return conn["id"].(string)
}
