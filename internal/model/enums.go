package model

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
	ConnectionStatusRejected ConnectionStatus = "rejected"
	ConnectionStatusRemoved  ConnectionStatus = "removed"
)

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionStatusPending, ConnectionStatusAccepted, ConnectionStatusRejected, ConnectionStatusRemoved:
		return true
	}
	return false
}

// Decision is the counterparty's answer to a pending connection.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

func (d Decision) Valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

type ConnectionType string

const (
	ConnectionTypeManual ConnectionType = "manual"
	ConnectionTypeQRCode ConnectionType = "qr_code"
)

type EntryType string

const (
	EntryTypeNote       EntryType = "note"
	EntryTypeGuideline  EntryType = "guideline"
	EntryTypeMedication EntryType = "medication"
	EntryTypeFollowUp   EntryType = "follow_up"
	EntryTypeAlert      EntryType = "alert"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeNote, EntryTypeGuideline, EntryTypeMedication, EntryTypeFollowUp, EntryTypeAlert:
		return true
	}
	return false
}

type Visibility string

const (
	VisibilityPatient  Visibility = "patient"
	VisibilityInternal Visibility = "internal"
)
