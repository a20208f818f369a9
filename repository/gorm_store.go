package repository

import (
	"context"
	"errors"
	"fmt"

	"challenge-settlement-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of gorm. The same type backs both the
// root handle and the transaction-scoped handle passed to Transaction callbacks.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the tables used by settlement.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Challenge{},
		&models.Challenger{},
		&models.PointTransaction{},
		&models.SettlementRun{},
	)
}

func (s *GormStore) FindChallenges(ctx context.Context, f ChallengeFilter) ([]models.Challenge, error) {
	q := s.db.WithContext(ctx).Model(&models.Challenge{})
	if !f.StartedBy.IsZero() {
		q = q.Where("start_date <= ?", f.StartedBy)
	}
	if !f.EndedBy.IsZero() {
		q = q.Where("end_date <= ?", f.EndedBy)
	}
	if f.Distributed != nil {
		q = q.Where("is_distributed = ?", *f.Distributed)
	}

	var challenges []models.Challenge
	if err := q.Order("id ASC").Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("find challenges: %w", err)
	}
	return challenges, nil
}

func (s *GormStore) GetChallengeForUpdate(ctx context.Context, id uint) (*models.Challenge, error) {
	var c models.Challenge
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "challenge %d", id)
	}
	return &c, nil
}

func (s *GormStore) CountChallengers(ctx context.Context, challengeID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Challenger{}).
		Where("challenge_id = ?", challengeID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count challengers of challenge %d: %w", challengeID, err)
	}
	return count, nil
}

func (s *GormStore) GetHost(ctx context.Context, challengeID uint) (*models.Challenger, error) {
	var host models.Challenger
	err := s.db.WithContext(ctx).
		Where("challenge_id = ? AND is_host = ?", challengeID, true).
		First(&host).Error
	if err != nil {
		return nil, notFound(err, "host of challenge %d", challengeID)
	}
	return &host, nil
}

func (s *GormStore) GetChallengers(ctx context.Context, challengeID uint) ([]models.Challenger, error) {
	var challengers []models.Challenger
	if err := s.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("id ASC").
		Find(&challengers).Error; err != nil {
		return nil, fmt.Errorf("get challengers of challenge %d: %w", challengeID, err)
	}
	return challengers, nil
}

// DeleteChallenge removes the challenge and its challengers.
// Challengers are deleted explicitly so the result does not depend on the
// database enforcing ON DELETE CASCADE.
func (s *GormStore) DeleteChallenge(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("challenge_id = ?", id).Delete(&models.Challenger{}).Error; err != nil {
		return fmt.Errorf("delete challengers of challenge %d: %w", id, err)
	}
	res := db.Where("id = ?", id).Delete(&models.Challenge{})
	if res.Error != nil {
		return fmt.Errorf("delete challenge %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete challenge %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkDistributed flips is_distributed only if it is still false, so two
// concurrent settlements of the same challenge cannot both commit.
func (s *GormStore) MarkDistributed(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND is_distributed = ?", id, false).
		Update("is_distributed", true)
	if res.Error != nil {
		return fmt.Errorf("mark challenge %d distributed: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark challenge %d distributed: %w", id, ErrAlreadyDistributed)
	}
	return nil
}

func (s *GormStore) FindUsers(ctx context.Context, f UserFilter) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.InChallenge != nil {
		q = q.Where("is_in_challenge = ?", *f.InChallenge)
	}

	var users []models.User
	if err := q.Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}

func (s *GormStore) GetUserForUpdate(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		return nil, notFound(err, "user %d", id)
	}
	return &u, nil
}

// UpdateUser applies the point delta in SQL (point = point + ?) so a
// concurrent writer outside settlement cannot be overwritten with a stale balance.
func (s *GormStore) UpdateUser(ctx context.Context, id uint, u UserUpdate) error {
	values := map[string]interface{}{}
	if u.PointDelta != 0 {
		values["point"] = gorm.Expr("point + ?", u.PointDelta)
	}
	if u.IsInChallenge != nil {
		values["is_in_challenge"] = *u.IsInChallenge
	}
	if u.LatestChallengeDate != nil {
		values["latest_challenge_date"] = *u.LatestChallengeDate
	}
	if len(values) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreatePointTransaction(ctx context.Context, pt *models.PointTransaction) error {
	if err := s.db.WithContext(ctx).Create(pt).Error; err != nil {
		return fmt.Errorf("create point transaction for user %d: %w", pt.UserID, err)
	}
	return nil
}

func (s *GormStore) CreateSettlementRun(ctx context.Context, run *models.SettlementRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create settlement run %s: %w", run.ID, err)
	}
	return nil
}

// ListSettlementRuns returns the newest runs first. An empty job lists all jobs.
func (s *GormStore) ListSettlementRuns(ctx context.Context, job string, limit int) ([]models.SettlementRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Model(&models.SettlementRun{})
	if job != "" {
		q = q.Where("job = ?", job)
	}

	var runs []models.SettlementRun
	if err := q.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list settlement runs: %w", err)
	}
	return runs, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func notFound(err error, format string, args ...interface{}) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
