package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/db"
	"chat-realtime/internal/models"
)

// ListKind selects which edges of a user are listed.
type ListKind int

const (
	// ListFriends lists accepted edges in either direction.
	ListFriends ListKind = iota
	// ListPending lists requests addressed to the user.
	ListPending
	// ListSent lists requests the user sent.
	ListSent
)

// sortColumns maps accepted sortBy values to columns.
var sortColumns = map[string]string{
	"":          "created_at",
	"createdAt": "created_at",
	"createAt":  "created_at",
	"updatedAt": "updated_at",
	"id":        "id",
}

// SortColumn resolves a client sortBy value. ok is false for unknown values.
func SortColumn(sortBy string) (string, bool) {
	col, ok := sortColumns[sortBy]
	return col, ok
}

// FriendshipRepository persists friendship edges. There is at most one edge per
// unordered pair of users.
type FriendshipRepository interface {
	FindBetween(ctx context.Context, a, b int64) (models.Friendship, error)
	Create(ctx context.Context, f models.Friendship) (models.Friendship, error)
	UpdateStatus(ctx context.Context, id int64, status models.FriendshipStatus) error
	Delete(ctx context.Context, id int64) error
	UpsertBlock(ctx context.Context, blockerID, targetID int64) (models.Friendship, error)
	List(ctx context.Context, userID int64, kind ListKind, page models.PageRequest) ([]models.Friendship, int64, error)
}

// FriendshipRepo is a sqlx implementation of FriendshipRepository.
type FriendshipRepo struct {
	db *sqlx.DB
}

// NewFriendshipRepo constructs a FriendshipRepo.
func NewFriendshipRepo(db *sqlx.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

const friendshipColumns = `id, requester_id, addressee_id, status, created_at, updated_at`

func orderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// FindBetween returns the edge between a and b regardless of direction. Inside
// a transaction the row is locked until commit.
func (r *FriendshipRepo) FindBetween(ctx context.Context, a, b int64) (models.Friendship, error) {
	lo, hi := orderedPair(a, b)
	query := `SELECT ` + friendshipColumns + ` FROM friendships
        WHERE LEAST(requester_id, addressee_id)=$1 AND GREATEST(requester_id, addressee_id)=$2`
	if db.InTx(ctx) {
		query += ` FOR UPDATE`
	}

	var f models.Friendship
	err := db.Conn(ctx, r.db).GetContext(ctx, &f, query, lo, hi)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Friendship{}, ErrFriendshipNotFound
	}
	if err != nil {
		return models.Friendship{}, fmt.Errorf("find friendship: %w", err)
	}
	return f, nil
}

// Create inserts a new edge. A concurrent insert for the same pair fails with ErrFriendshipExists.
func (r *FriendshipRepo) Create(ctx context.Context, f models.Friendship) (models.Friendship, error) {
	var created models.Friendship
	err := db.Conn(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO friendships (requester_id, addressee_id, status) VALUES ($1, $2, $3) RETURNING `+friendshipColumns,
		f.RequesterID, f.AddresseeID, f.Status).StructScan(&created)
	if isUniqueViolation(err) {
		return models.Friendship{}, ErrFriendshipExists
	}
	if err != nil {
		return models.Friendship{}, fmt.Errorf("create friendship: %w", err)
	}
	return created, nil
}

// UpdateStatus moves an edge to status.
func (r *FriendshipRepo) UpdateStatus(ctx context.Context, id int64, status models.FriendshipStatus) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE friendships SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("update friendship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// Delete removes an edge.
func (r *FriendshipRepo) Delete(ctx context.Context, id int64) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM friendships WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// UpsertBlock leaves exactly one BLOCKED edge with blockerID as requester,
// whatever edge existed before.
func (r *FriendshipRepo) UpsertBlock(ctx context.Context, blockerID, targetID int64) (models.Friendship, error) {
	query := `INSERT INTO friendships (requester_id, addressee_id, status) VALUES ($1, $2, 'BLOCKED')
        ON CONFLICT ((LEAST(requester_id, addressee_id)), (GREATEST(requester_id, addressee_id)))
        DO UPDATE SET requester_id = EXCLUDED.requester_id, addressee_id = EXCLUDED.addressee_id,
            status = 'BLOCKED', updated_at = NOW()
        RETURNING ` + friendshipColumns
	var f models.Friendship
	if err := db.Conn(ctx, r.db).QueryRowxContext(ctx, query, blockerID, targetID).StructScan(&f); err != nil {
		return models.Friendship{}, fmt.Errorf("block user: %w", err)
	}
	return f, nil
}

func listPredicate(kind ListKind) string {
	switch kind {
	case ListPending:
		return `status = 'PENDING' AND addressee_id = $1`
	case ListSent:
		return `status = 'PENDING' AND requester_id = $1`
	default:
		return `status = 'ACCEPTED' AND (requester_id = $1 OR addressee_id = $1)`
	}
}

// List returns one offset page of the user's edges, newest first, with the total count.
func (r *FriendshipRepo) List(ctx context.Context, userID int64, kind ListKind, page models.PageRequest) ([]models.Friendship, int64, error) {
	col, ok := SortColumn(page.SortBy)
	if !ok {
		col = "created_at"
	}
	where := listPredicate(kind)
	conn := db.Conn(ctx, r.db)

	var total int64
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM friendships WHERE `+where, userID); err != nil {
		return nil, 0, fmt.Errorf("count friendships: %w", err)
	}

	order := col + " DESC"
	if col != "id" {
		order += ", id DESC"
	}
	query := `SELECT ` + friendshipColumns + ` FROM friendships WHERE ` + where +
		` ORDER BY ` + order + ` LIMIT $2 OFFSET $3`

	var list []models.Friendship
	if err := conn.SelectContext(ctx, &list, query, userID, page.Size, page.Page*page.Size); err != nil {
		return nil, 0, fmt.Errorf("list friendships: %w", err)
	}
	return list, total, nil
}
