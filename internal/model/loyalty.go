package model

import "time"

type LoyaltyAccount struct {
	UserID    string    `db:"user_id" json:"userId"`
	Points    int       `db:"points" json:"points"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// LoyaltyTransaction is a signed points entry. A (reference type, reference
// id) pair is applied at most once.
type LoyaltyTransaction struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"userId"`
	Points        int       `db:"points" json:"points"`
	Reason        string    `db:"reason" json:"reason"`
	ReferenceType string    `db:"reference_type" json:"referenceType"`
	ReferenceID   string    `db:"reference_id" json:"referenceId"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
