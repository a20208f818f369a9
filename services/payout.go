package services

import "challenge-settlement-system/models"

// Payout is the point delta one challenger receives when a challenge settles.
type Payout struct {
	ChallengerID uint
	UserID       uint
	Done         bool
	Delta        int
	Reason       models.PointReason
}

// PayoutPlan is the full settlement decision for one challenge.
type PayoutPlan struct {
	EntryPoint int
	Pool       int // EntryPoint × number of challengers
	Succeeded  int
	Failed     int
	Payouts    []Payout
}

// Total is the sum of all deltas. It never exceeds Pool.
func (p PayoutPlan) Total() int {
	total := 0
	for _, po := range p.Payouts {
		total += po.Delta
	}
	return total
}

// Remainder is the part of the pool lost to floor division when the pool is
// split among successful challengers. It is not paid to anyone.
func (p PayoutPlan) Remainder() int {
	if p.Succeeded == 0 || p.Failed == 0 {
		return 0
	}
	return p.Pool % p.Succeeded
}

// ComputePayouts decides every challenger's delta:
//
//   - everyone done: each gets their stake back (+entryPoint)
//   - some done: each successful challenger gets floor(pool / succeeded),
//     each failed challenger loses entryPoint
//   - nobody done: every challenger loses entryPoint
func ComputePayouts(entryPoint int, challengers []models.Challenger) PayoutPlan {
	plan := PayoutPlan{
		EntryPoint: entryPoint,
		Pool:       entryPoint * len(challengers),
		Payouts:    make([]Payout, 0, len(challengers)),
	}
	for _, c := range challengers {
		if c.Done {
			plan.Succeeded++
		}
	}
	plan.Failed = len(challengers) - plan.Succeeded

	share := 0
	if plan.Succeeded > 0 {
		share = plan.Pool / plan.Succeeded
	}

	for _, c := range challengers {
		po := Payout{ChallengerID: c.ID, UserID: c.UserID, Done: c.Done}
		switch {
		case plan.Failed == 0:
			po.Delta = entryPoint
			po.Reason = models.PointReasonRefund
		case c.Done:
			po.Delta = share
			po.Reason = models.PointReasonReward
		default:
			po.Delta = -entryPoint
			po.Reason = models.PointReasonStakeLost
		}
		plan.Payouts = append(plan.Payouts, po)
	}
	return plan
}
