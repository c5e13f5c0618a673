package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/careconnect/pairing-server/internal/model"
)

const activePairIndex = "uq_connections_active_pair"

type ConnectionRepository interface {
	// Create inserts a pending connection. It returns
	// ErrDuplicateActiveConnection when the pair already has a pending or
	// accepted connection.
	Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error)
	FindByID(ctx context.Context, id string) (*model.Connection, error)
	// Respond records the decision only while the connection is pending.
	// It returns ErrNotFound or ErrAlreadyResponded otherwise.
	Respond(ctx context.Context, params model.RespondConnectionParams) (*model.Connection, error)
	// Remove moves an accepted connection to removed. It returns ErrNotFound
	// or ErrConnectionNotActive otherwise.
	Remove(ctx context.Context, id string) (*model.Connection, error)
	List(ctx context.Context, filter model.ConnectionFilter) ([]model.Connection, error)
	FindLatestByPair(ctx context.Context, doctorID, patientID string) (*model.Connection, error)
}

type connectionRepo struct {
	db *sqlx.DB
}

func NewConnectionRepository(db *sqlx.DB) ConnectionRepository {
	return &connectionRepo{db: db}
}

func (r *connectionRepo) Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `
		INSERT INTO connections (doctor_id, patient_id, connection_type, initiated_by, initiator_note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.DoctorID, params.PatientID, params.ConnectionType, params.InitiatedBy, params.InitiatorNote)
	if isUniqueViolation(err, activePairIndex) {
		return nil, ErrDuplicateActiveConnection
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *connectionRepo) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `SELECT * FROM connections WHERE id = $1`, id)
	return HandleNotFound(&c, err)
}

func (r *connectionRepo) Respond(ctx context.Context, params model.RespondConnectionParams) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `
		UPDATE connections SET
			decision = $2,
			responder_note = $3,
			responded_at = NOW()
		WHERE id = $1 AND decision IS NULL AND removed_at IS NULL
		RETURNING *
	`, params.ID, params.Decision, params.ResponderNote)
	updated, err := HandleNotFound(&c, err)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	current, err := r.FindByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, ErrAlreadyResponded
}

func (r *connectionRepo) Remove(ctx context.Context, id string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `
		UPDATE connections SET removed_at = NOW()
		WHERE id = $1 AND decision = 'accepted' AND removed_at IS NULL
		RETURNING *
	`, id)
	updated, err := HandleNotFound(&c, err)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, ErrConnectionNotActive
}

func (r *connectionRepo) List(ctx context.Context, filter model.ConnectionFilter) ([]model.Connection, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.DoctorID != "" {
		add("doctor_id = $%d", filter.DoctorID)
	}
	if filter.PatientID != "" {
		add("patient_id = $%d", filter.PatientID)
	}
	if filter.Status != nil {
		conds = append(conds, statusCondition(*filter.Status))
	}

	query := `SELECT * FROM connections`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	connections := []model.Connection{}
	err := r.db.SelectContext(ctx, &connections, query, args...)
	return connections, err
}

// statusCondition mirrors model.Connection.Status in SQL.
func statusCondition(s model.ConnectionStatus) string {
	switch s {
	case model.ConnectionStatusRemoved:
		return "removed_at IS NOT NULL"
	case model.ConnectionStatusPending:
		return "removed_at IS NULL AND decision IS NULL"
	case model.ConnectionStatusAccepted:
		return "removed_at IS NULL AND decision = 'accepted'"
	case model.ConnectionStatusRejected:
		return "removed_at IS NULL AND decision = 'rejected'"
	default:
		return "FALSE"
	}
}

func (r *connectionRepo) FindLatestByPair(ctx context.Context, doctorID, patientID string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM connections
		WHERE doctor_id = $1 AND patient_id = $2
		ORDER BY created_at DESC, id
		LIMIT 1
	`, doctorID, patientID)
	return HandleNotFound(&c, err)
}
