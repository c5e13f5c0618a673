package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careconnect/pairing-server/internal/audit"
	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
	"github.com/careconnect/pairing-server/internal/util"
)

type Participant struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

// Workspace is the care view of an accepted connection.
type Workspace struct {
	ConnectionID   string                `json:"connectionId"`
	ConnectionType model.ConnectionType  `json:"connectionType"`
	ConnectedAt    *time.Time            `json:"connectedAt,omitempty"`
	Doctor         Participant           `json:"doctor"`
	Patient        Participant           `json:"patient"`
	Plan           model.CarePlan        `json:"plan"`
	Timeline       []model.TimelineEntry `json:"timeline"`
}

type WorkspaceSummary struct {
	ConnectionID string      `json:"connectionId"`
	Doctor       Participant `json:"doctor"`
	Patient      Participant `json:"patient"`
	Title        string      `json:"title"`
	UpdatedAt    *time.Time  `json:"updatedAt,omitempty"`
}

// WorkspaceService projects accepted connections into care workspaces and
// lets the doctor author plan fields and timeline entries.
type WorkspaceService struct {
	connections repository.ConnectionRepository
	workspaces  repository.WorkspaceRepository
	users       repository.UserRepository
}

func NewWorkspaceService(
	connections repository.ConnectionRepository,
	workspaces repository.WorkspaceRepository,
	users repository.UserRepository,
) *WorkspaceService {
	return &WorkspaceService{
		connections: connections,
		workspaces:  workspaces,
		users:       users,
	}
}

// GetWorkspace returns the workspace for connectionID. A missing connection
// is NotFound, a non-participant is Forbidden, and a connection that is not
// accepted is NotFound.
func (s *WorkspaceService) GetWorkspace(ctx context.Context, connectionID, requesterID string) (*Workspace, error) {
	c, err := s.accessible(ctx, connectionID, requesterID)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, c, requesterID == c.DoctorID)
}

func (s *WorkspaceService) ListWorkspaces(ctx context.Context, requester *model.User) ([]WorkspaceSummary, error) {
	accepted := model.ConnectionStatusAccepted
	filter := model.ConnectionFilter{Status: &accepted}
	if requester.Role == model.RoleDoctor {
		filter.DoctorID = requester.ID
	} else {
		filter.PatientID = requester.ID
	}

	connections, err := s.connections.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	summaries := make([]WorkspaceSummary, 0, len(connections))
	for i := range connections {
		c := &connections[i]
		doctor, patient, err := s.participants(ctx, c)
		if err != nil {
			return nil, err
		}
		plan, err := s.workspaces.GetPlan(ctx, c.ID)
		if err != nil {
			return nil, apperrors.Database(err)
		}

		summary := WorkspaceSummary{ConnectionID: c.ID, Doctor: doctor, Patient: patient}
		if plan != nil {
			summary.Title = plan.Title
			updatedAt := plan.UpdatedAt
			summary.UpdatedAt = &updatedAt
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UpdatePlan applies a partial plan update. Only the connection's doctor may
// author.
func (s *WorkspaceService) UpdatePlan(ctx context.Context, requesterID string, params model.UpdateCarePlanParams) (*Workspace, error) {
	c, err := s.authorable(ctx, params.ConnectionID, requesterID)
	if err != nil {
		return nil, err
	}

	if _, err := s.workspaces.UpsertPlan(ctx, params); err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("connectionId", c.ID).
		Str("doctorId", requesterID).
		Msg("care plan updated")

	audit.Log(ctx, audit.Event{
		Type:       audit.EventWorkspaceUpdate,
		UserID:     requesterID,
		ResourceID: c.ID,
	})

	return s.project(ctx, c, true)
}

func (s *WorkspaceService) AddEntry(ctx context.Context, requesterID string, params model.CreateTimelineEntryParams) (*model.TimelineEntry, error) {
	params.Title = strings.TrimSpace(params.Title)
	if params.Title == "" {
		return nil, apperrors.MissingRequired("title")
	}
	if params.EntryType == "" {
		params.EntryType = model.EntryTypeNote
	}
	if !params.EntryType.Valid() {
		return nil, apperrors.InvalidParameter("entry_type", "must be note, guideline, medication, follow_up or alert")
	}
	if params.Visibility == "" {
		params.Visibility = model.VisibilityPatient
	}
	if params.Visibility != model.VisibilityPatient && params.Visibility != model.VisibilityInternal {
		return nil, apperrors.InvalidParameter("visibility", "must be patient or internal")
	}

	c, err := s.authorable(ctx, params.ConnectionID, requesterID)
	if err != nil {
		return nil, err
	}
	params.CreatedBy = requesterID

	entry, err := s.workspaces.AddEntry(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("connectionId", c.ID).
		Str("entryId", entry.ID).
		Str("entryType", string(entry.EntryType)).
		Bool("critical", entry.IsCritical).
		Msg("timeline entry added")

	return entry, nil
}

func (s *WorkspaceService) accessible(ctx context.Context, connectionID, requesterID string) (*model.Connection, error) {
	if !util.IsValidUUID(connectionID) {
		return nil, apperrors.NotFound("Workspace")
	}
	c, err := s.connections.FindByID(ctx, connectionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if c == nil {
		return nil, apperrors.NotFound("Workspace")
	}
	if !c.IsParticipant(requesterID) {
		return nil, apperrors.Forbidden("You are not a participant in this workspace")
	}
	if c.Status() != model.ConnectionStatusAccepted {
		return nil, apperrors.NotFound("Workspace")
	}
	return c, nil
}

func (s *WorkspaceService) authorable(ctx context.Context, connectionID, requesterID string) (*model.Connection, error) {
	c, err := s.accessible(ctx, connectionID, requesterID)
	if err != nil {
		return nil, err
	}
	if requesterID != c.DoctorID {
		return nil, apperrors.Forbidden("Only the doctor can edit this workspace")
	}
	return c, nil
}

func (s *WorkspaceService) project(ctx context.Context, c *model.Connection, includeInternal bool) (*Workspace, error) {
	doctor, patient, err := s.participants(ctx, c)
	if err != nil {
		return nil, err
	}

	plan, err := s.workspaces.GetPlan(ctx, c.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if plan == nil {
		plan = &model.CarePlan{ConnectionID: c.ID}
	}

	timeline, err := s.workspaces.ListEntries(ctx, c.ID, includeInternal)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	return &Workspace{
		ConnectionID:   c.ID,
		ConnectionType: c.ConnectionType,
		ConnectedAt:    c.RespondedAt,
		Doctor:         doctor,
		Patient:        patient,
		Plan:           *plan,
		Timeline:       timeline,
	}, nil
}

func (s *WorkspaceService) participants(ctx context.Context, c *model.Connection) (Participant, Participant, error) {
	doctor, err := s.participant(ctx, c.DoctorID)
	if err != nil {
		return Participant{}, Participant{}, err
	}
	patient, err := s.participant(ctx, c.PatientID)
	if err != nil {
		return Participant{}, Participant{}, err
	}
	return doctor, patient, nil
}

func (s *WorkspaceService) participant(ctx context.Context, id string) (Participant, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return Participant{}, apperrors.Database(err)
	}
	if u == nil {
		return Participant{ID: id}, nil
	}
	return Participant{ID: u.ID, Name: u.DisplayName, Specialization: u.Specialization}, nil
}
