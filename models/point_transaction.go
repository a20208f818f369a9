// models/point_transaction.go
package models

import "time"

// PointReason classifies a balance change made by settlement.
type PointReason string

const (
	PointReasonRefund     PointReason = "challenge_refund"     // everyone succeeded, stake returned
	PointReasonReward     PointReason = "challenge_reward"     // share of the pool
	PointReasonStakeLost  PointReason = "challenge_stake_lost" // failed the challenge
	PointReasonInactivity PointReason = "inactivity_penalty"
)

// PointTransaction records one point delta applied to a user.
// Written in the same transaction as the balance change so the ledger never drifts.
type PointTransaction struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	UserID       uint        `gorm:"not null;index" json:"user_id"`
	ChallengeID  *uint       `gorm:"index" json:"challenge_id,omitempty"`
	Reason       PointReason `gorm:"type:varchar(32);not null" json:"reason"`
	Delta        int         `gorm:"not null" json:"delta"`
	BalanceAfter int         `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transactions"
}
