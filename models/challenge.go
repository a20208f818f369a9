// models/challenge.go
package models

import (
	"time"
)

// Challenge is a time-bounded, staked group activity.
// Created by the challenge API; settlement only ever flips IsDistributed or deletes the row.
type Challenge struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:100" json:"title"`
	StartDate     time.Time `gorm:"not null;index" json:"start_date"`
	EndDate       time.Time `gorm:"not null;index" json:"end_date"`
	EntryPoint    int       `gorm:"not null" json:"entry_point"` // stake each challenger commits
	IsDistributed bool      `gorm:"not null;default:false;index" json:"is_distributed"`

	Challengers []Challenger `gorm:"foreignKey:ChallengeID;constraint:OnDelete:CASCADE" json:"challengers,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// Pool is the total stake across n challengers.
func (c Challenge) Pool(n int) int {
	return c.EntryPoint * n
}
