package service

import (
	"context"
	"strings"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
)

// ConnectionStatusNone marks a search result with no connection history.
const ConnectionStatusNone = "not_connected"

type PatientSearchResult struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	ConnectionStatus string `json:"connectionStatus"`
	ConnectionID     string `json:"connectionId,omitempty"`
}

type PatientService struct {
	users       repository.UserRepository
	connections repository.ConnectionRepository
}

func NewPatientService(users repository.UserRepository, connections repository.ConnectionRepository) *PatientService {
	return &PatientService{users: users, connections: connections}
}

// Search finds patients for a doctor, annotating each with the status of the
// most recent connection between them.
func (s *PatientService) Search(ctx context.Context, doctor *model.User, query string, limit, offset int) ([]PatientSearchResult, int, error) {
	if doctor.Role != model.RoleDoctor {
		return nil, 0, apperrors.Forbidden("Only doctors can search patients")
	}
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, 0, apperrors.InvalidParameter("q", "must be at least 2 characters")
	}

	patients, total, err := s.users.SearchPatients(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}

	results := make([]PatientSearchResult, 0, len(patients))
	for _, p := range patients {
		result := PatientSearchResult{
			ID:               p.ID,
			Name:             p.DisplayName,
			Email:            p.Email,
			ConnectionStatus: ConnectionStatusNone,
		}

		c, err := s.connections.FindLatestByPair(ctx, doctor.ID, p.ID)
		if err != nil {
			return nil, 0, apperrors.Database(err)
		}
		if c != nil {
			result.ConnectionStatus = string(c.Status())
			result.ConnectionID = c.ID
		}
		results = append(results, result)
	}
	return results, total, nil
}
