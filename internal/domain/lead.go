package domain

import "time"

// Temperature is the urgency bucket derived deterministically from score.
type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureWarm Temperature = "warm"
	TemperatureCool Temperature = "cool"
	TemperatureCold Temperature = "cold"
)

// TemperatureFor maps a score to its temperature band: >=80 hot, 60-79 warm,
// 40-59 cool, below 40 cold.
func TemperatureFor(score int) Temperature {
	switch {
	case score >= 80:
		return TemperatureHot
	case score >= 60:
		return TemperatureWarm
	case score >= 40:
		return TemperatureCool
	default:
		return TemperatureCold
	}
}

// ClampScore bounds a raw score sum to the 0-100 range.
func ClampScore(raw int) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}

// FactorContribution records how much one scoring factor contributed to a
// computed score, after decay.
type FactorContribution struct {
	Factor   string `json:"factor"`
	Category string `json:"category"`
	Points   int    `json:"points"`
}

// ScoreSnapshot is one append-only score history entry.
type ScoreSnapshot struct {
	Score       int                  `json:"score"`
	Temperature Temperature          `json:"temperature"`
	Breakdown   []FactorContribution `json:"breakdown,omitempty"`
	ComputedAt  time.Time            `json:"computed_at"`
}

// Lead is a prospective-customer record. Leads are never deleted, only
// archived; the score is mutated only through ApplyScore and the temperature
// is always a pure function of the score.
type Lead struct {
	ID           string
	Email        string
	Company      string
	Attributes   map[string]any
	Score        int
	Temperature  Temperature
	ScoreHistory []ScoreSnapshot
	Archived     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ApplyScore sets the lead's score and temperature and appends a history
// snapshot. Prior snapshots are never mutated. Returns false when the score
// is unchanged and no snapshot was appended.
func (l *Lead) ApplyScore(score int, breakdown []FactorContribution, at time.Time) bool {
	score = ClampScore(score)
	if len(l.ScoreHistory) > 0 && l.Score == score {
		return false
	}
	l.Score = score
	l.Temperature = TemperatureFor(score)
	l.ScoreHistory = append(l.ScoreHistory, ScoreSnapshot{
		Score:       score,
		Temperature: l.Temperature,
		Breakdown:   breakdown,
		ComputedAt:  at.UTC(),
	})
	l.UpdatedAt = at.UTC()
	return true
}

// ScoreAt reconstructs the lead's score as of a point in time from the
// append-only history. Returns zero when no snapshot precedes the instant.
func (l *Lead) ScoreAt(at time.Time) int {
	score := 0
	for _, snap := range l.ScoreHistory {
		if snap.ComputedAt.After(at) {
			break
		}
		score = snap.Score
	}
	return score
}
