package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
)

type userRepo struct{ s *Store }

func (r *userRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *userRepo) Create(_ context.Context, params model.CreateUserParams) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == params.Email {
			return nil, repository.ErrEmailTaken
		}
	}

	u := &model.User{
		ID:             uuid.NewString(),
		Email:          params.Email,
		PasswordHash:   params.PasswordHash,
		Role:           params.Role,
		DisplayName:    params.DisplayName,
		Specialization: params.Specialization,
		CreatedAt:      r.s.now(),
	}
	r.s.users[u.ID] = u
	c := *u
	return &c, nil
}

func (r *userRepo) SearchPatients(_ context.Context, query string, limit, offset int) ([]model.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q := strings.ToLower(query)
	matches := []model.User{}
	for _, u := range r.s.users {
		if u.Role != model.RolePatient {
			continue
		}
		if containsFold(u.DisplayName, q) || containsFold(u.Email, q) {
			matches = append(matches, *u)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DisplayName != matches[j].DisplayName {
			return matches[i].DisplayName < matches[j].DisplayName
		}
		return matches[i].ID < matches[j].ID
	})

	total := len(matches)
	if offset >= total {
		return []model.User{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matches[offset:end], total, nil
}
