package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

// ErrUserNotFound is returned when no identity matches a lookup.
var ErrUserNotFound = errs.E(errs.ErrNotFound, "user not found")

// Directory is the contract the chat core needs from the account subsystem.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	SetOnline(ctx context.Context, id int64, online bool) error
	TokenVersion(ctx context.Context, id int64) (int, error)
	BumpTokenVersion(ctx context.Context, id int64) (int, error)
}

// PostgresDirectory implements Directory on the users table.
type PostgresDirectory struct {
	pool PgxPool
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool PgxPool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

const userColumns = `id, username, first_name, last_name, avatar, status, is_online, token_version, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Status, &u.Online, &u.TokenVersion, &u.CreatedAt)
	return u, err
}

// FindByUsername selects a user by username.
func (d *PostgresDirectory) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username=$1`
	u, err := scanUser(d.pool.QueryRow(ctx, q, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user %q: %w", username, err)
	}
	return u, nil
}

// FindByID selects a user by id.
func (d *PostgresDirectory) FindByID(ctx context.Context, id int64) (models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	u, err := scanUser(d.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return u, nil
}

// FindByIDs fetches several users in one round trip. Unknown ids are skipped.
func (d *PostgresDirectory) FindByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := d.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ExistsByUsername reports whether a username is taken.
func (d *PostgresDirectory) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, username).Scan(&exists)
	return exists, err
}

// SetOnline persists the durable online flag.
func (d *PostgresDirectory) SetOnline(ctx context.Context, id int64, online bool) error {
	tag, err := d.pool.Exec(ctx, `UPDATE users SET is_online=$2 WHERE id=$1`, id, online)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TokenVersion returns the durable token version of a user.
func (d *PostgresDirectory) TokenVersion(ctx context.Context, id int64) (int, error) {
	var version int
	err := d.pool.QueryRow(ctx, `SELECT token_version FROM users WHERE id=$1`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return version, err
}

// BumpTokenVersion increments the token version and returns the new value.
func (d *PostgresDirectory) BumpTokenVersion(ctx context.Context, id int64) (int, error) {
	var version int
	err := d.pool.QueryRow(ctx, `UPDATE users SET token_version = token_version + 1 WHERE id=$1 RETURNING token_version`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return version, err
}
