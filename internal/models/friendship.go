package models

import "time"

// FriendshipStatus is the state of an edge between two identities.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "PENDING"
	FriendshipAccepted FriendshipStatus = "ACCEPTED"
	FriendshipBlocked  FriendshipStatus = "BLOCKED"
)

// Friendship is the single edge for an unordered pair of identities. Direction
// is kept: RequesterID sent the request, or placed the block.
type Friendship struct {
	ID          int64            `db:"id" json:"id"`
	RequesterID int64            `db:"requester_id" json:"requesterId"`
	AddresseeID int64            `db:"addressee_id" json:"addresseeId"`
	Status      FriendshipStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// Other returns the identity on the far side of the edge from id.
func (f Friendship) Other(id int64) int64 {
	if f.RequesterID == id {
		return f.AddresseeID
	}
	return f.RequesterID
}

// FriendView is a friendship as listed to one of its members.
type FriendView struct {
	ID        int64            `json:"id"`
	User      UserSummary      `json:"user"`
	Status    FriendshipStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}
