package vitality

import "buddy-vitality-service/models"

// Stat names a vital that can need attention.
type Stat string

const (
	StatHP     Stat = "hp"
	StatEnergy Stat = "energy"
)

// Crossing is a downward move through the low threshold.
type Crossing struct {
	Stat Stat `json:"stat"`
	From int  `json:"from"`
	To   int  `json:"to"`
}

// Crossings returns the vitals that went from above threshold to at-or-below it
// between two persisted versions. Staying low is not a crossing.
func Crossings(before, after models.Buddy, threshold int) []Crossing {
	var out []Crossing
	if before.HP > threshold && after.HP <= threshold {
		out = append(out, Crossing{Stat: StatHP, From: before.HP, To: after.HP})
	}
	if before.Energy > threshold && after.Energy <= threshold {
		out = append(out, Crossing{Stat: StatEnergy, From: before.Energy, To: after.Energy})
	}
	return out
}
