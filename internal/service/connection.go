package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/careconnect/pairing-server/internal/audit"
	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
	"github.com/careconnect/pairing-server/internal/util"
)

// ConnectionService is the connection registry.
type ConnectionService struct {
	connections repository.ConnectionRepository
	events      EventPublisher
}

func NewConnectionService(connections repository.ConnectionRepository, events EventPublisher) *ConnectionService {
	return &ConnectionService{
		connections: connections,
		events:      events,
	}
}

// Create inserts a pending connection. The active-pair check and the insert
// happen in one store operation.
func (s *ConnectionService) Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	c, err := s.connections.Create(ctx, params)
	if errors.Is(err, repository.ErrDuplicateActiveConnection) {
		return nil, apperrors.DuplicateActiveConnection()
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	actorID := c.DoctorID
	if params.InitiatedBy == model.RolePatient {
		actorID = c.PatientID
	}

	log.Info().
		Str("connectionId", c.ID).
		Str("doctorId", c.DoctorID).
		Str("patientId", c.PatientID).
		Str("connectionType", string(c.ConnectionType)).
		Msg("connection requested")

	audit.Log(ctx, audit.Event{
		Type:       audit.EventConnectionCreate,
		UserID:     actorID,
		ResourceID: c.ID,
		Details:    map[string]interface{}{"connectionType": string(c.ConnectionType)},
	})

	notifyCounterparty(ctx, s.events, EventConnectionRequested, c, actorID)
	return c, nil
}

// Get loads a connection. Ids that are not UUIDs cannot exist and are
// reported as NotFound without touching the store.
func (s *ConnectionService) Get(ctx context.Context, id string) (*model.Connection, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.NotFound("Connection")
	}
	c, err := s.connections.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if c == nil {
		return nil, apperrors.NotFound("Connection")
	}
	return c, nil
}

// Respond records the counterparty's decision on a pending connection.
func (s *ConnectionService) Respond(
	ctx context.Context,
	id string,
	responderID string,
	decision model.Decision,
	note *string,
) (*model.Connection, error) {
	if !decision.Valid() {
		return nil, apperrors.InvalidParameter("decision", "must be accepted or rejected")
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsParticipant(responderID) || c.Responder() != responderID {
		return nil, apperrors.Forbidden("Only the invited participant can respond to this request")
	}

	updated, err := s.connections.Respond(ctx, model.RespondConnectionParams{
		ID:            id,
		Decision:      decision,
		ResponderNote: note,
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("Connection")
	case errors.Is(err, repository.ErrAlreadyResponded):
		return nil, apperrors.AlreadyResponded()
	case err != nil:
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("connectionId", id).
		Str("responderId", responderID).
		Str("decision", string(decision)).
		Msg("connection responded")

	audit.Log(ctx, audit.Event{
		Type:       audit.EventConnectionRespond,
		UserID:     responderID,
		ResourceID: id,
		Details:    map[string]interface{}{"decision": string(decision)},
	})

	eventType := EventConnectionAccepted
	if decision == model.DecisionRejected {
		eventType = EventConnectionRejected
	}
	notifyCounterparty(ctx, s.events, eventType, updated, responderID)

	return updated, nil
}

// Remove ends an accepted connection. History is kept; the workspace
// becomes unreachable.
func (s *ConnectionService) Remove(ctx context.Context, id, requesterID string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !c.IsParticipant(requesterID) {
		return apperrors.Forbidden("Only participants can remove a connection")
	}

	removed, err := s.connections.Remove(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("Connection")
	case errors.Is(err, repository.ErrConnectionNotActive):
		return apperrors.ConnectionNotActive()
	case err != nil:
		return apperrors.Database(err)
	}

	log.Info().
		Str("connectionId", id).
		Str("requesterId", requesterID).
		Msg("connection removed")

	audit.Log(ctx, audit.Event{
		Type:       audit.EventConnectionRemove,
		UserID:     requesterID,
		ResourceID: id,
	})

	notifyCounterparty(ctx, s.events, EventConnectionRemoved, removed, requesterID)
	return nil
}

func (s *ConnectionService) ListForDoctor(ctx context.Context, doctorID string, status *model.ConnectionStatus) ([]model.Connection, error) {
	return s.list(ctx, model.ConnectionFilter{DoctorID: doctorID, Status: status})
}

func (s *ConnectionService) ListForPatient(ctx context.Context, patientID string, status *model.ConnectionStatus) ([]model.Connection, error) {
	return s.list(ctx, model.ConnectionFilter{PatientID: patientID, Status: status})
}

func (s *ConnectionService) list(ctx context.Context, filter model.ConnectionFilter) ([]model.Connection, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperrors.InvalidParameter("status", "must be pending, accepted, rejected or removed")
	}
	connections, err := s.connections.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return connections, nil
}

// LatestForPair returns the most recent connection between doctorID and
// patientID, or nil.
func (s *ConnectionService) LatestForPair(ctx context.Context, doctorID, patientID string) (*model.Connection, error) {
	c, err := s.connections.FindLatestByPair(ctx, doctorID, patientID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return c, nil
}
