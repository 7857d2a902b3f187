package battle

// ModePlayer is the mode key of WeightedJudge.
const ModePlayer = "player"

// Score weights and the upper bound of the per-side jitter.
const (
	WeightHP      = 0.3
	WeightAttack  = 0.4
	WeightDefense = 0.2
	WeightSpeed   = 0.1
	MaxJitter     = 0.49
)

// WeightedJudge scores each side as a weighted sum of four stats plus a small
// random jitter. The challenger wins when its score is greater or equal.
type WeightedJudge struct{}

// Mode returns "player".
func (WeightedJudge) Mode() string { return ModePlayer }

// Description returns a brief description of the rules.
func (WeightedJudge) Description() string {
	return "Weighted score 0.3 hp + 0.4 attack + 0.2 defense + 0.1 speed with a small random jitter."
}

// BaseScore is the weighted score before jitter.
func BaseScore(c *Combatant) float64 {
	return float64(c.Stat(StatHP))*WeightHP +
		float64(c.Stat(StatAttack))*WeightAttack +
		float64(c.Stat(StatDefense))*WeightDefense +
		float64(c.Stat(StatSpeed))*WeightSpeed
}

// Decide scores both sides. Exact ties go to the challenger.
func (WeightedJudge) Decide(challenger, opponent *Combatant, rng Rand) Outcome {
	cs := BaseScore(challenger) + rng.Float64()*MaxJitter
	os := BaseScore(opponent) + rng.Float64()*MaxJitter

	return Outcome{
		Mode:            ModePlayer,
		ChallengerWins:  cs >= os,
		ChallengerScore: cs,
		OpponentScore:   os,
		Reason:          ReasonScore,
	}
}
