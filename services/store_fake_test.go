package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"challenge-settlement-system/models"
	"challenge-settlement-system/repository"
)

// memState is the data held by memStore. Transactions work on a copy and
// swap it in on commit.
type memState struct {
	challenges  map[uint]models.Challenge
	challengers map[uint]models.Challenger
	users       map[uint]models.User
	ledger      []models.PointTransaction
	runs        []models.SettlementRun
}

func (s *memState) clone() *memState {
	c := &memState{
		challenges:  make(map[uint]models.Challenge, len(s.challenges)),
		challengers: make(map[uint]models.Challenger, len(s.challengers)),
		users:       make(map[uint]models.User, len(s.users)),
		ledger:      append([]models.PointTransaction(nil), s.ledger...),
		runs:        append([]models.SettlementRun(nil), s.runs...),
	}
	for k, v := range s.challenges {
		c.challenges[k] = v
	}
	for k, v := range s.challengers {
		c.challengers[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// memStore is an in-memory repository.Store with fault injection.
type memStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool

	findErr       error
	userUpdateErr map[uint]error // keyed by user ID
	markErr       map[uint]error // keyed by challenge ID
	panicOnFind   bool
	transactions  int
}

func newMemStore() *memStore {
	return &memStore{
		mu: &sync.Mutex{},
		state: &memState{
			challenges:  map[uint]models.Challenge{},
			challengers: map[uint]models.Challenger{},
			users:       map[uint]models.User{},
		},
		userUpdateErr: map[uint]error{},
		markErr:       map[uint]error{},
	}
}

func (m *memStore) addUser(u models.User) models.User {
	m.state.users[u.ID] = u
	return u
}

// addChallenge stores c with one challenger per entry of done; the first is the host.
func (m *memStore) addChallenge(c models.Challenge, userIDs []uint, done []bool) models.Challenge {
	m.state.challenges[c.ID] = c
	for i, uid := range userIDs {
		id := uint(len(m.state.challengers) + 1)
		m.state.challengers[id] = models.Challenger{
			ID: id, ChallengeID: c.ID, UserID: uid, IsHost: i == 0, Done: done[i],
		}
	}
	return c
}

func (m *memStore) user(id uint) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.users[id]
}

func (m *memStore) challenge(id uint) (models.Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.challenges[id]
	return c, ok
}

func (m *memStore) ledger() []models.PointTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PointTransaction(nil), m.state.ledger...)
}

func (m *memStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memStore) FindChallenges(ctx context.Context, f repository.ChallengeFilter) ([]models.Challenge, error) {
	defer m.lock()()
	if m.panicOnFind {
		panic("store exploded")
	}
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []models.Challenge
	for _, c := range m.state.challenges {
		if !f.StartedBy.IsZero() && c.StartDate.After(f.StartedBy) {
			continue
		}
		if !f.EndedBy.IsZero() && c.EndDate.After(f.EndedBy) {
			continue
		}
		if f.Distributed != nil && c.IsDistributed != *f.Distributed {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetChallengeForUpdate(ctx context.Context, id uint) (*models.Challenge, error) {
	defer m.lock()()
	c, ok := m.state.challenges[id]
	if !ok {
		return nil, fmt.Errorf("challenge %d: %w", id, repository.ErrNotFound)
	}
	return &c, nil
}

func (m *memStore) challengersOf(challengeID uint) []models.Challenger {
	var out []models.Challenger
	for _, ch := range m.state.challengers {
		if ch.ChallengeID == challengeID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) CountChallengers(ctx context.Context, challengeID uint) (int64, error) {
	defer m.lock()()
	return int64(len(m.challengersOf(challengeID))), nil
}

func (m *memStore) GetHost(ctx context.Context, challengeID uint) (*models.Challenger, error) {
	defer m.lock()()
	for _, ch := range m.challengersOf(challengeID) {
		if ch.IsHost {
			return &ch, nil
		}
	}
	return nil, fmt.Errorf("host of challenge %d: %w", challengeID, repository.ErrNotFound)
}

func (m *memStore) GetChallengers(ctx context.Context, challengeID uint) ([]models.Challenger, error) {
	defer m.lock()()
	return m.challengersOf(challengeID), nil
}

func (m *memStore) DeleteChallenge(ctx context.Context, id uint) error {
	defer m.lock()()
	if _, ok := m.state.challenges[id]; !ok {
		return fmt.Errorf("delete challenge %d: %w", id, repository.ErrNotFound)
	}
	for chID, ch := range m.state.challengers {
		if ch.ChallengeID == id {
			delete(m.state.challengers, chID)
		}
	}
	delete(m.state.challenges, id)
	return nil
}

func (m *memStore) MarkDistributed(ctx context.Context, id uint) error {
	defer m.lock()()
	if err := m.markErr[id]; err != nil {
		return err
	}
	c, ok := m.state.challenges[id]
	if !ok || c.IsDistributed {
		return fmt.Errorf("mark challenge %d distributed: %w", id, repository.ErrAlreadyDistributed)
	}
	c.IsDistributed = true
	m.state.challenges[id] = c
	return nil
}

func (m *memStore) FindUsers(ctx context.Context, f repository.UserFilter) ([]models.User, error) {
	defer m.lock()()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []models.User
	for _, u := range m.state.users {
		if f.InChallenge != nil && u.IsInChallenge != *f.InChallenge {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetUserForUpdate(ctx context.Context, id uint) (*models.User, error) {
	defer m.lock()()
	u, ok := m.state.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, repository.ErrNotFound)
	}
	return &u, nil
}

func (m *memStore) UpdateUser(ctx context.Context, id uint, upd repository.UserUpdate) error {
	defer m.lock()()
	if err := m.userUpdateErr[id]; err != nil {
		return err
	}
	u, ok := m.state.users[id]
	if !ok {
		return fmt.Errorf("update user %d: %w", id, repository.ErrNotFound)
	}
	u.Point += upd.PointDelta
	if upd.IsInChallenge != nil {
		u.IsInChallenge = *upd.IsInChallenge
	}
	if upd.LatestChallengeDate != nil {
		u.LatestChallengeDate = *upd.LatestChallengeDate
	}
	m.state.users[id] = u
	return nil
}

func (m *memStore) CreatePointTransaction(ctx context.Context, pt *models.PointTransaction) error {
	defer m.lock()()
	pt.ID = uint(len(m.state.ledger) + 1)
	m.state.ledger = append(m.state.ledger, *pt)
	return nil
}

func (m *memStore) CreateSettlementRun(ctx context.Context, run *models.SettlementRun) error {
	defer m.lock()()
	m.state.runs = append(m.state.runs, *run)
	return nil
}

func (m *memStore) ListSettlementRuns(ctx context.Context, job string, limit int) ([]models.SettlementRun, error) {
	defer m.lock()()
	var out []models.SettlementRun
	for i := len(m.state.runs) - 1; i >= 0; i-- {
		if job == "" || m.state.runs[i].Job == job {
			out = append(out, m.state.runs[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Transaction serializes transactions and commits the working copy only when fn succeeds.
func (m *memStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions++

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memStore{
		mu:            m.mu,
		state:         m.state.clone(),
		inTx:          true,
		userUpdateErr: m.userUpdateErr,
		markErr:       m.markErr,
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

var errStoreDown = errors.New("connection refused")

var _ repository.Store = (*memStore)(nil)
