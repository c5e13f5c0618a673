package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/careconnect/pairing-server/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	// SearchPatients matches display name or email, case-insensitively, and
	// returns one page plus the total match count.
	SearchPatients(ctx context.Context, query string, limit, offset int) ([]model.User, int, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&u, err)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, email)
	return HandleNotFound(&u, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `
		INSERT INTO users (email, password_hash, role, display_name, specialization)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.Email, params.PasswordHash, params.Role, params.DisplayName, params.Specialization)
	if isUniqueViolation(err, "") {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) SearchPatients(ctx context.Context, query string, limit, offset int) ([]model.User, int, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM users
		WHERE role = 'patient'
		  AND (lower(display_name) LIKE $1 OR lower(email) LIKE $1)
	`, pattern)
	if err != nil {
		return nil, 0, err
	}

	var users []model.User
	err = r.db.SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE role = 'patient'
		  AND (lower(display_name) LIKE $1 OR lower(email) LIKE $1)
		ORDER BY display_name, id
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
