package models

import (
	"time"
)

// User is the local view of a member's point balance and challenge activity.
// Registration and profile fields are owned by the user API; settlement
// only touches Point, IsInChallenge and LatestChallengeDate.
type User struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"size:50" json:"name"`
	Email               string    `gorm:"size:255;uniqueIndex" json:"email"`
	Point               int       `gorm:"not null;default:0" json:"point"` // may go negative
	IsInChallenge       bool      `gorm:"not null;default:false;index" json:"is_in_challenge"`
	LatestChallengeDate time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"latest_challenge_date"`
	CreatedAt           time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// LastActiveAt is the reference instant for inactivity checks.
// Rows written without a challenge date fall back to the registration time.
func (u User) LastActiveAt() time.Time {
	if u.LatestChallengeDate.IsZero() {
		return u.CreatedAt
	}
	return u.LatestChallengeDate
}
