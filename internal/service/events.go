package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/sse"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

const (
	EventConnectionRequested = "connection.requested"
	EventConnectionAccepted  = "connection.accepted"
	EventConnectionRejected  = "connection.rejected"
	EventConnectionRemoved   = "connection.removed"
)

// EventPublisher delivers an event to every live session of userID.
type EventPublisher interface {
	Publish(ctx context.Context, userID string, event sse.Event) error
}

type ConnectionEvent struct {
	ConnectionID   string                 `json:"connectionId"`
	DoctorID       string                 `json:"doctorId"`
	PatientID      string                 `json:"patientId"`
	ConnectionType model.ConnectionType   `json:"connectionType"`
	Status         model.ConnectionStatus `json:"status"`
	ActorID        string                 `json:"actorId"`
}

// notifyCounterparty tells the participant who did not act about a
// transition. Failures are logged and never fail the transition.
func notifyCounterparty(ctx context.Context, pub EventPublisher, eventType string, c *model.Connection, actorID string) {
	if pub == nil {
		return
	}

	data, err := json.Marshal(ConnectionEvent{
		ConnectionID:   c.ID,
		DoctorID:       c.DoctorID,
		PatientID:      c.PatientID,
		ConnectionType: c.ConnectionType,
		Status:         c.Status(),
		ActorID:        actorID,
	})
	if err != nil {
		log.Error().Err(err).Str("connectionId", c.ID).Msg("failed to encode connection event")
		return
	}

	recipient := c.Counterparty(actorID)
	if err := pub.Publish(ctx, recipient, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Warn().
			Err(err).
			Str("eventType", eventType).
			Str("connectionId", c.ID).
			Str("recipientId", recipient).
			Msg("failed to publish connection event")
	}
}
