package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"chatbot-auth/internal/model"
)

// unique index name -> conflicting identity field
var identityConstraintFields = map[string]string{
	"users_email_lower_idx": "email",
	"users_name_lower_idx":  "name",
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectIdentity = `SELECT id, email, name, role, password_hash, created_at, updated_at FROM users`

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.Identity, error) {
	return r.findOne(ctx, "find user by id", selectIdentity+` WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.Identity, error) {
	return r.findOne(ctx, "find user by email",
		selectIdentity+` WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (r *UserRepository) FindByNameCaseInsensitive(ctx context.Context, name string) (model.Identity, error) {
	return r.findOne(ctx, "find user by name",
		selectIdentity+` WHERE lower(name) = lower($1)`, strings.TrimSpace(name))
}

func (r *UserRepository) Create(ctx context.Context, u model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		conflict := &model.ConflictError{}
		if field, ok := identityConstraintFields[pgErr.ConstraintName]; ok {
			conflict.Fields = []string{field}
		}
		return fmt.Errorf("create user: %w", conflict)
	}
	return translateError("create user", err, model.ErrUserNotFound, model.ErrConflict)
}

func (r *UserRepository) findOne(ctx context.Context, op string, query string, arg string) (model.Identity, error) {
	var u model.Identity
	var role string
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.Identity{}, translateError(op, err, model.ErrUserNotFound, model.ErrConflict)
	}
	u.Role = model.ParseRole(role)
	return u, nil
}
