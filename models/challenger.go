// models/challenger.go
package models

import "time"

// Challenger is one user's participation in a Challenge.
// Done is set by the verification flow before the challenge ends.
type Challenger struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChallengeID uint      `gorm:"not null;index" json:"challenge_id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	IsHost      bool      `gorm:"not null;default:false" json:"is_host"`
	Done        bool      `gorm:"not null;default:false" json:"done"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Challenger) TableName() string {
	return "challengers"
}
