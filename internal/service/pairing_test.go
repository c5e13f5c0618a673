package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
)

func TestPairing_QRScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := env.user(t, "kim@clinic.example.com", model.RoleDoctor, "Dr. Kim")
	p1 := env.patient(t, "p1")
	p2 := env.patient(t, "p2")

	pt, err := env.tokens.Issue(ctx, doctor.ID, 24, 1)
	require.NoError(t, err)

	// Validation shows the doctor without spending a use, however often it runs.
	for i := 0; i < 3; i++ {
		v, err := env.pairing.ValidateQRToken(ctx, pt.Token)
		require.NoError(t, err)
		require.True(t, v.Valid)
		assert.Equal(t, "Dr. Kim", v.Doctor.Name)
		assert.Equal(t, doctor.ID, v.Doctor.ID)
		assert.NoError(t, v.Err())
	}
	current, err := env.tokens.Get(ctx, pt.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, current.UseCount)

	c, err := env.pairing.ScanQRCode(ctx, p1.ID, pt.Token)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusPending, c.Status())
	assert.Equal(t, model.ConnectionTypeQRCode, c.ConnectionType)
	assert.Equal(t, doctor.ID, c.DoctorID)
	assert.Equal(t, p1.ID, c.PatientID)
	assert.Equal(t, model.RolePatient, c.InitiatedBy)

	_, err = env.pairing.ScanQRCode(ctx, p2.ID, pt.Token)
	requireCode(t, err, apperrors.ErrCodeTokenExhausted)

	v, err := env.pairing.ValidateQRToken(ctx, pt.Token)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Nil(t, v.Doctor)
	assert.Equal(t, apperrors.ErrCodeTokenExhausted, v.Reason)
	assert.NotEmpty(t, v.Message)

	// The doctor responds to a patient-initiated QR request.
	accepted, err := env.pairing.AcceptConnection(ctx, c.ID, doctor.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusAccepted, accepted.Status())
}

func TestPairing_ValidateQRToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := env.doctor(t, "kim")

	pt, err := env.tokens.Issue(ctx, doctor.ID, 1, 2)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		before func()
		reason apperrors.ErrorCode
	}{
		{name: "too short", token: "abc", reason: apperrors.ErrCodeInvalidToken},
		{name: "unknown", token: "ffffffffffffffffffffffffffffffff", reason: apperrors.ErrCodeInvalidToken},
		{name: "expired", token: pt.Token, before: func() { env.clock.Advance(time.Hour) }, reason: apperrors.ErrCodeTokenExpired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.before != nil {
				tc.before()
			}
			v, err := env.pairing.ValidateQRToken(ctx, tc.token)
			require.NoError(t, err)
			assert.False(t, v.Valid)
			assert.Equal(t, tc.reason, v.Reason)
			requireCode(t, v.Err(), tc.reason)
		})
	}
}

func TestPairing_ScanQRCode(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token is InvalidToken", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.patient(t, "p")
		_, err := env.pairing.ScanQRCode(ctx, p.ID, "ffffffffffffffffffffffffffffffff")
		requireCode(t, err, apperrors.ErrCodeInvalidToken)
	})

	t.Run("expired token is TokenExpired", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		p := env.patient(t, "p")
		pt, err := env.tokens.Issue(ctx, doctor.ID, 1, 1)
		require.NoError(t, err)

		env.clock.Advance(90 * time.Minute)
		_, err = env.pairing.ScanQRCode(ctx, p.ID, pt.Token)
		requireCode(t, err, apperrors.ErrCodeTokenExpired)
	})

	t.Run("doctors cannot scan", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		other := env.doctor(t, "park")
		pt, err := env.tokens.Issue(ctx, doctor.ID, 24, 1)
		require.NoError(t, err)

		_, err = env.pairing.ScanQRCode(ctx, other.ID, pt.Token)
		requireCode(t, err, apperrors.ErrCodeForbidden)

		current, err := env.tokens.Get(ctx, pt.Token)
		require.NoError(t, err)
		assert.Equal(t, 0, current.UseCount)
	})

	t.Run("duplicate active connection keeps the spent use", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		p := env.patient(t, "p")
		env.acceptedConnection(t, doctor, p)

		pt, err := env.tokens.Issue(ctx, doctor.ID, 24, 2)
		require.NoError(t, err)

		_, err = env.pairing.ScanQRCode(ctx, p.ID, pt.Token)
		requireCode(t, err, apperrors.ErrCodeDuplicateActiveConnection)

		current, err := env.tokens.Get(ctx, pt.Token)
		require.NoError(t, err)
		assert.Equal(t, 1, current.UseCount)
		assert.Equal(t, []string{p.ID}, []string(current.UsedBy))
	})
}

func TestPairing_ManualConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("doctor initiates, patient accepts, workspace opens", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		patient := env.patient(t, "lee")
		outsider := env.patient(t, "q")

		note := "  Follow-up after discharge  "
		c, err := env.pairing.Connect(ctx, doctor.ID, doctor.ID, patient.ID, &note)
		require.NoError(t, err)
		assert.Equal(t, model.ConnectionTypeManual, c.ConnectionType)
		assert.Equal(t, model.RoleDoctor, c.InitiatedBy)
		require.NotNil(t, c.InitiatorNote)
		assert.Equal(t, "Follow-up after discharge", *c.InitiatorNote)

		_, err = env.workspaces.GetWorkspace(ctx, c.ID, doctor.ID)
		requireCode(t, err, apperrors.ErrCodeNotFound)

		_, err = env.pairing.AcceptConnection(ctx, c.ID, patient.ID, nil)
		require.NoError(t, err)

		for _, u := range []*model.User{doctor, patient} {
			ws, err := env.workspaces.GetWorkspace(ctx, c.ID, u.ID)
			require.NoError(t, err)
			assert.Equal(t, c.ID, ws.ConnectionID)
			assert.Equal(t, "Dr. kim", ws.Doctor.Name)
		}

		_, err = env.workspaces.GetWorkspace(ctx, c.ID, outsider.ID)
		requireCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("patient rejects, workspace stays unavailable", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		patient := env.patient(t, "lee")

		c, err := env.pairing.Connect(ctx, doctor.ID, doctor.ID, patient.ID, nil)
		require.NoError(t, err)
		rejected, err := env.pairing.RejectConnection(ctx, c.ID, patient.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, model.ConnectionStatusRejected, rejected.Status())

		for _, u := range []*model.User{doctor, patient} {
			_, err := env.workspaces.GetWorkspace(ctx, c.ID, u.ID)
			requireCode(t, err, apperrors.ErrCodeNotFound)
		}

		// A fresh request is allowed once the previous one was rejected.
		again, err := env.pairing.Connect(ctx, doctor.ID, doctor.ID, patient.ID, nil)
		require.NoError(t, err)
		assert.NotEqual(t, c.ID, again.ID)
	})

	t.Run("duplicate active connection", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		patient := env.patient(t, "lee")

		_, err := env.pairing.Connect(ctx, doctor.ID, doctor.ID, patient.ID, nil)
		require.NoError(t, err)

		_, err = env.pairing.Connect(ctx, doctor.ID, doctor.ID, patient.ID, nil)
		requireCode(t, err, apperrors.ErrCodeDuplicateActiveConnection)
	})

	t.Run("patients cannot connect manually", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		patient := env.patient(t, "lee")

		_, err := env.pairing.Connect(ctx, patient.ID, doctor.ID, patient.ID, nil)
		requireCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("malformed ids", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")

		_, err := env.pairing.Connect(ctx, doctor.ID, doctor.ID, "abc", nil)
		requireCode(t, err, apperrors.ErrCodeInvalidParameter)

		_, err = env.pairing.Connect(ctx, "abc", "abc", "def", nil)
		requireCode(t, err, apperrors.ErrCodeInvalidParameter)

		_, err = env.pairing.AcceptConnection(ctx, "xyz", doctor.ID, nil)
		requireCode(t, err, apperrors.ErrCodeNotFound)
	})

	t.Run("actor must be a participant", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		patient := env.patient(t, "lee")
		other := env.doctor(t, "park")

		_, err := env.pairing.Connect(ctx, other.ID, doctor.ID, patient.ID, nil)
		requireCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("roles must match", func(t *testing.T) {
		env := newTestEnv(t)
		doctor := env.doctor(t, "kim")
		other := env.doctor(t, "park")

		_, err := env.pairing.Connect(ctx, doctor.ID, doctor.ID, other.ID, nil)
		requireCode(t, err, apperrors.ErrCodeInvalidParameter)

		_, err = env.pairing.Connect(ctx, doctor.ID, doctor.ID, "00000000-0000-0000-0000-000000000000", nil)
		requireCode(t, err, apperrors.ErrCodeNotFound)

		_, err = env.pairing.Connect(ctx, doctor.ID, doctor.ID, "", nil)
		requireCode(t, err, apperrors.ErrCodeMissingRequired)
	})
}

func TestPairing_Respond(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	doctor := env.doctor(t, "kim")
	patient := env.patient(t, "lee")
	outsider := env.patient(t, "q")

	c, err := env.pairing.Connect(ctx, doctor.ID, doctor.ID, patient.ID, nil)
	require.NoError(t, err)

	t.Run("initiator cannot respond", func(t *testing.T) {
		_, err := env.pairing.AcceptConnection(ctx, c.ID, doctor.ID, nil)
		requireCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("outsider cannot respond", func(t *testing.T) {
		_, err := env.pairing.AcceptConnection(ctx, c.ID, outsider.ID, nil)
		requireCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("unknown connection", func(t *testing.T) {
		_, err := env.pairing.AcceptConnection(ctx, "missing", patient.ID, nil)
		requireCode(t, err, apperrors.ErrCodeNotFound)
	})

	t.Run("second response fails and leaves state unchanged", func(t *testing.T) {
		note := "See you Tuesday"
		accepted, err := env.pairing.AcceptConnection(ctx, c.ID, patient.ID, &note)
		require.NoError(t, err)
		require.NotNil(t, accepted.ResponderNote)

		_, err = env.pairing.RejectConnection(ctx, c.ID, patient.ID, nil)
		requireCode(t, err, apperrors.ErrCodeAlreadyResponded)

		current, err := env.connections.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ConnectionStatusAccepted, current.Status())
		assert.Equal(t, note, *current.ResponderNote)
	})
}
