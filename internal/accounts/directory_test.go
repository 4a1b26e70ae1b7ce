package accounts

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

var userCols = []string{"id", "username", "first_name", "last_name", "avatar", "status", "is_online", "token_version", "created_at"}

func newDirectory(t *testing.T) (*PostgresDirectory, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresDirectory(mock), mock
}

func TestFindByUsername(t *testing.T) {
	d, mock := newDirectory(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username=$1`)).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(int64(1), "alice", "Alice", "A", "", models.UserActive, true, 3, created))

	u, err := d.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, models.UserActive, u.Status)
	assert.Equal(t, 3, u.TokenVersion)
	assert.True(t, u.Online)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username=$1`)).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = d.FindByUsername(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDPropagatesInfrastructureErrors(t *testing.T) {
	d, mock := newDirectory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id=$1`)).
		WithArgs(int64(9)).
		WillReturnError(errors.New("conn reset"))

	_, err := d.FindByID(context.Background(), 9)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrNotFound))
}

func TestFindByIDs(t *testing.T) {
	d, mock := newDirectory(t)
	ctx := context.Background()
	created := time.Now().UTC()

	users, err := d.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, users)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ANY($1)`)).
		WithArgs([]int64{1, 2}).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(int64(1), "alice", "", "", "", models.UserActive, false, 0, created).
			AddRow(int64(2), "bob", "", "", "", models.UserLocked, false, 1, created))

	users, err = d.FindByIDs(ctx, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].Username)
	assert.Equal(t, models.UserLocked, users[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOnline(t *testing.T) {
	d, mock := newDirectory(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_online=$2 WHERE id=$1`)).
		WithArgs(int64(1), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, d.SetOnline(ctx, 1, true))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_online=$2 WHERE id=$1`)).
		WithArgs(int64(7), false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, d.SetOnline(ctx, 7, false), ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenVersionAndBump(t *testing.T) {
	d, mock := newDirectory(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT token_version FROM users WHERE id=$1`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"token_version"}).AddRow(4))
	v, err := d.TokenVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users SET token_version = token_version + 1 WHERE id=$1 RETURNING token_version`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"token_version"}).AddRow(5))
	v, err = d.BumpTokenVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING token_version`)).
		WithArgs(int64(2)).
		WillReturnError(pgx.ErrNoRows)
	_, err = d.BumpTokenVersion(ctx, 2)
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByUsername(t *testing.T) {
	d, mock := newDirectory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`)).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := d.ExistsByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}
