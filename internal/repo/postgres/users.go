package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/monitron/monitron/internal/domain/monitor"
)

var ErrUserNotFound = errors.New("user not found")

// UsersRepo is read-only: users are consulted only to resolve an alert
// recipient, never mutated here.
type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (monitor.User, error) {
	var u monitor.User

	err := r.pool.QueryRow(ctx, `
		SELECT id, email, is_active FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.IsActive)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.User{}, ErrUserNotFound
		}
		return monitor.User{}, err
	}
	return u, nil
}
