package model

import "time"

// MilestoneDays are the streak lengths that pay a one-time bonus, in
// ascending order.
var MilestoneDays = []int{7, 30, 90}

type Streak struct {
	UserID             string     `json:"user_id"`
	CurrentStreak      int        `json:"current_streak"`
	CurrentStreakStart *time.Time `json:"current_streak_start"`
	LongestStreak      int        `json:"longest_streak"`
	LongestStreakStart *time.Time `json:"longest_streak_start"`
	LongestStreakEnd   *time.Time `json:"longest_streak_end"`
	LastWorkoutDate    *time.Time `json:"last_workout_date"`
	Bonus7DayClaimed   bool       `json:"bonus_7_day_claimed"`
	Bonus30DayClaimed  bool       `json:"bonus_30_day_claimed"`
	Bonus90DayClaimed  bool       `json:"bonus_90_day_claimed"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BonusClaimed reports whether the milestone bonus for the given streak
// length has already been paid. Unknown lengths report true so nothing is
// ever awarded for them.
func (s *Streak) BonusClaimed(days int) bool {
	switch days {
	case 7:
		return s.Bonus7DayClaimed
	case 30:
		return s.Bonus30DayClaimed
	case 90:
		return s.Bonus90DayClaimed
	}
	return true
}

// SetBonusClaimed marks a milestone as paid. Claimed flags are monotonic;
// there is no way to unset one.
func (s *Streak) SetBonusClaimed(days int) {
	switch days {
	case 7:
		s.Bonus7DayClaimed = true
	case 30:
		s.Bonus30DayClaimed = true
	case 90:
		s.Bonus90DayClaimed = true
	}
}
