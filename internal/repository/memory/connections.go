package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
)

type connectionRepo struct{ s *Store }

func (r *connectionRepo) Create(_ context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, row := range r.s.connections {
		if row.DoctorID == params.DoctorID && row.PatientID == params.PatientID && row.IsActive() {
			return nil, repository.ErrDuplicateActiveConnection
		}
	}

	row := &connectionRow{
		Connection: model.Connection{
			ID:             uuid.NewString(),
			DoctorID:       params.DoctorID,
			PatientID:      params.PatientID,
			ConnectionType: params.ConnectionType,
			InitiatedBy:    params.InitiatedBy,
			InitiatorNote:  params.InitiatorNote,
			CreatedAt:      r.s.now(),
		},
		seq: r.s.nextSeq(),
	}
	r.s.connections[row.ID] = row
	c := row.Connection
	return &c, nil
}

func (r *connectionRepo) FindByID(_ context.Context, id string) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.connections[id]
	if !ok {
		return nil, nil
	}
	c := row.Connection
	return &c, nil
}

func (r *connectionRepo) Respond(_ context.Context, params model.RespondConnectionParams) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.connections[params.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if row.Status() != model.ConnectionStatusPending {
		return nil, repository.ErrAlreadyResponded
	}

	decision := params.Decision
	now := r.s.now()
	row.Decision = &decision
	row.ResponderNote = params.ResponderNote
	row.RespondedAt = &now
	c := row.Connection
	return &c, nil
}

func (r *connectionRepo) Remove(_ context.Context, id string) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.connections[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if row.Status() != model.ConnectionStatusAccepted {
		return nil, repository.ErrConnectionNotActive
	}

	now := r.s.now()
	row.RemovedAt = &now
	c := row.Connection
	return &c, nil
}

func (r *connectionRepo) List(_ context.Context, filter model.ConnectionFilter) ([]model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []*connectionRow
	for _, row := range r.s.connections {
		if filter.DoctorID != "" && row.DoctorID != filter.DoctorID {
			continue
		}
		if filter.PatientID != "" && row.PatientID != filter.PatientID {
			continue
		}
		if filter.Status != nil && row.Status() != *filter.Status {
			continue
		}
		rows = append(rows, row)
	}
	sortConnections(rows)

	connections := make([]model.Connection, 0, len(rows))
	for _, row := range rows {
		connections = append(connections, row.Connection)
	}
	return connections, nil
}

func (r *connectionRepo) FindLatestByPair(_ context.Context, doctorID, patientID string) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []*connectionRow
	for _, row := range r.s.connections {
		if row.DoctorID == doctorID && row.PatientID == patientID {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sortConnections(rows)
	c := rows[0].Connection
	return &c, nil
}
