package model

import (
	"time"
)

// Connection is the doctor-patient relationship record. Status is computed
// from Decision and RemovedAt.
type Connection struct {
	ID             string         `db:"id" json:"id"`
	DoctorID       string         `db:"doctor_id" json:"doctorId"`
	PatientID      string         `db:"patient_id" json:"patientId"`
	ConnectionType ConnectionType `db:"connection_type" json:"connectionType"`
	InitiatedBy    Role           `db:"initiated_by" json:"initiatedBy"`
	InitiatorNote  *string        `db:"initiator_note" json:"initiatorNote,omitempty"`
	ResponderNote  *string        `db:"responder_note" json:"responderNote,omitempty"`
	Decision       *Decision      `db:"decision" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	RespondedAt    *time.Time     `db:"responded_at" json:"respondedAt,omitempty"`
	RemovedAt      *time.Time     `db:"removed_at" json:"removedAt,omitempty"`
}

type CreateConnectionParams struct {
	DoctorID       string
	PatientID      string
	ConnectionType ConnectionType
	InitiatedBy    Role
	InitiatorNote  *string
}

type RespondConnectionParams struct {
	ID            string
	Decision      Decision
	ResponderNote *string
}

// ConnectionFilter narrows list queries. Exactly one of DoctorID or
// PatientID is expected; Status is optional.
type ConnectionFilter struct {
	DoctorID  string
	PatientID string
	Status    *ConnectionStatus
}

func (c *Connection) Status() ConnectionStatus {
	if c.RemovedAt != nil {
		return ConnectionStatusRemoved
	}
	if c.Decision == nil {
		return ConnectionStatusPending
	}
	return ConnectionStatus(*c.Decision)
}

// IsActive reports whether the connection blocks a new one for the same pair.
func (c *Connection) IsActive() bool {
	s := c.Status()
	return s == ConnectionStatusPending || s == ConnectionStatusAccepted
}

func (c *Connection) IsParticipant(userID string) bool {
	return userID != "" && (c.DoctorID == userID || c.PatientID == userID)
}

// Responder returns the participant expected to answer the request.
func (c *Connection) Responder() string {
	if c.InitiatedBy == RoleDoctor {
		return c.PatientID
	}
	return c.DoctorID
}

// Counterparty returns the other participant relative to userID.
func (c *Connection) Counterparty(userID string) string {
	if c.DoctorID == userID {
		return c.PatientID
	}
	return c.DoctorID
}
