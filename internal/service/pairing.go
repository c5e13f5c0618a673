package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
	"github.com/careconnect/pairing-server/internal/util"
)

const minTokenLength = 20

type DoctorInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

// QRValidation is the outcome of a non-consuming token check. Exactly one
// of Doctor (when Valid) or Reason/Message (when not) is set.
type QRValidation struct {
	Valid   bool
	Doctor  *DoctorInfo
	Reason  apperrors.ErrorCode
	Message string
}

func validQR(doctor *model.User) QRValidation {
	return QRValidation{
		Valid: true,
		Doctor: &DoctorInfo{
			ID:             doctor.ID,
			Name:           doctor.DisplayName,
			Specialization: doctor.Specialization,
		},
	}
}

func invalidQR(err *apperrors.AppError) QRValidation {
	return QRValidation{Reason: err.Code, Message: err.Message}
}

// Err returns the failure as an AppError, or nil for a valid result.
func (v QRValidation) Err() error {
	if v.Valid {
		return nil
	}
	return apperrors.New(v.Reason, v.Message)
}

// PairingService drives the connection state machine: manual connect, the
// two-phase QR flow and responses.
type PairingService struct {
	tokens      *TokenService
	connections *ConnectionService
	users       repository.UserRepository
}

func NewPairingService(
	tokens *TokenService,
	connections *ConnectionService,
	users repository.UserRepository,
) *PairingService {
	return &PairingService{
		tokens:      tokens,
		connections: connections,
		users:       users,
	}
}

// Connect creates a manual connection request from a doctor to a patient,
// typically picked from patient search. Patients join through QR codes.
func (s *PairingService) Connect(
	ctx context.Context,
	actorID string,
	doctorID string,
	patientID string,
	note *string,
) (*model.Connection, error) {
	if doctorID == "" {
		return nil, apperrors.MissingRequired("doctor_id")
	}
	if patientID == "" {
		return nil, apperrors.MissingRequired("patient_id")
	}
	if actorID != doctorID {
		if actorID == patientID {
			return nil, apperrors.Forbidden("Patients connect by scanning their doctor's QR code")
		}
		return nil, apperrors.Forbidden("You can only create connections you participate in")
	}

	if _, err := s.requireUser(ctx, doctorID, model.RoleDoctor, "doctor_id"); err != nil {
		return nil, err
	}
	if _, err := s.requireUser(ctx, patientID, model.RolePatient, "patient_id"); err != nil {
		return nil, err
	}

	return s.connections.Create(ctx, model.CreateConnectionParams{
		DoctorID:       doctorID,
		PatientID:      patientID,
		ConnectionType: model.ConnectionTypeManual,
		InitiatedBy:    model.RoleDoctor,
		InitiatorNote:  trimNote(note),
	})
}

// ValidateQRToken reports whether token could be redeemed right now and who
// issued it. It never consumes a use. The error return is reserved for
// store failures.
func (s *PairingService) ValidateQRToken(ctx context.Context, token string) (QRValidation, error) {
	pt, doctor, err := s.lookupToken(ctx, token)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code != apperrors.ErrCodeDatabase {
			return invalidQR(appErr), nil
		}
		return QRValidation{}, err
	}

	if err := validityError(pt, s.tokens.Now()); err != nil {
		return invalidQR(err), nil
	}
	return validQR(doctor), nil
}

// ScanQRCode redeems one use of token for patientID and opens a pending
// qr_code connection with the issuing doctor. A use consumed before a
// DuplicateActiveConnection failure is not refunded.
func (s *PairingService) ScanQRCode(ctx context.Context, patientID, token string) (*model.Connection, error) {
	if _, err := s.requireUser(ctx, patientID, model.RolePatient, "consumer_id"); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidParameter) {
			return nil, apperrors.Forbidden("Only patients can scan pairing tokens")
		}
		return nil, err
	}

	pt, _, err := s.lookupToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := validityError(pt, s.tokens.Now()); err != nil {
		return nil, err
	}

	if _, err := s.tokens.Consume(ctx, pt.Token, patientID); err != nil {
		return nil, err
	}

	c, err := s.connections.Create(ctx, model.CreateConnectionParams{
		DoctorID:       pt.IssuerID,
		PatientID:      patientID,
		ConnectionType: model.ConnectionTypeQRCode,
		InitiatedBy:    model.RolePatient,
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeDuplicateActiveConnection) {
			log.Info().
				Str("tokenPrefix", util.MaskToken(pt.Token)).
				Str("patientId", patientID).
				Msg("qr scan hit existing connection, token use not refunded")
		}
		return nil, err
	}
	return c, nil
}

func (s *PairingService) AcceptConnection(ctx context.Context, id, responderID string, note *string) (*model.Connection, error) {
	return s.connections.Respond(ctx, id, responderID, model.DecisionAccepted, trimNote(note))
}

func (s *PairingService) RejectConnection(ctx context.Context, id, responderID string, note *string) (*model.Connection, error) {
	return s.connections.Respond(ctx, id, responderID, model.DecisionRejected, trimNote(note))
}

// lookupToken loads a token and its issuing doctor. Unknown, malformed or
// orphaned tokens are InvalidToken.
func (s *PairingService) lookupToken(ctx context.Context, token string) (*model.PairingToken, *model.User, error) {
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength {
		return nil, nil, apperrors.InvalidToken()
	}

	pt, err := s.tokens.Get(ctx, token)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, nil, apperrors.InvalidToken()
		}
		return nil, nil, err
	}

	doctor, err := s.users.FindByID(ctx, pt.IssuerID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if doctor == nil {
		return nil, nil, apperrors.InvalidToken()
	}
	return pt, doctor, nil
}

func (s *PairingService) requireUser(ctx context.Context, id string, role model.Role, field string) (*model.User, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.InvalidParameter(field, "must be a UUID")
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if u == nil {
		if role == model.RoleDoctor {
			return nil, apperrors.NotFound("Doctor")
		}
		return nil, apperrors.NotFound("Patient")
	}
	if u.Role != role {
		return nil, apperrors.InvalidParameter(field, "must reference a "+string(role))
	}
	return u, nil
}

// validityError explains why pt cannot be redeemed at now. Expiry is
// reported ahead of exhaustion.
func validityError(pt *model.PairingToken, now time.Time) *apperrors.AppError {
	switch {
	case pt.IsExpired(now):
		return apperrors.TokenExpired()
	case pt.IsExhausted():
		return apperrors.TokenExhausted()
	default:
		return nil
	}
}

func trimNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
