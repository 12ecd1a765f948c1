package model

import "time"

// SlotLock is an advisory lock document guarding the check-then-commit
// sequence for one laboratory or equipment slot. The _id is the slot
// coordinate, so a unique index turns concurrent acquisitions into
// duplicate key errors. ExpiresAt backs a TTL index that reaps locks
// orphaned by a crashed request.
type SlotLock struct {
	ID        string    `json:"id" bson:"_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
