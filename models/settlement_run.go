// models/settlement_run.go
package models

import "time"

// SettlementRun is the journal entry of one job execution.
type SettlementRun struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Job        string    `gorm:"type:varchar(64);not null;index" json:"job"`
	StartedAt  time.Time `gorm:"not null;index" json:"started_at"`
	FinishedAt time.Time `gorm:"not null" json:"finished_at"`
	Candidates int       `gorm:"not null;default:0" json:"candidates"`
	Applied    int       `gorm:"not null;default:0" json:"applied"`
	Skipped    int       `gorm:"not null;default:0" json:"skipped"`
	Failed     int       `gorm:"not null;default:0" json:"failed"`
	Error      string    `gorm:"type:text" json:"error,omitempty"` // set when the run aborted
}

func (SettlementRun) TableName() string {
	return "settlement_runs"
}

func (r SettlementRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
