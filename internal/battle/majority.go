package battle

// ModeBot is the mode key of MajorityJudge.
const ModeBot = "bot"

// MajorityJudge compares the six stats one by one. The side taking more stats
// wins; ties fall through to the stat total, then speed, then a coin flip.
type MajorityJudge struct{}

// Mode returns "bot".
func (MajorityJudge) Mode() string { return ModeBot }

// Description returns a brief description of the rules.
func (MajorityJudge) Description() string {
	return "Win more of the six stat comparisons; ties go to total stats, then speed, then a coin flip."
}

// Decide compares challenger and opponent stat by stat.
func (MajorityJudge) Decide(challenger, opponent *Combatant, rng Rand) Outcome {
	out := Outcome{
		Mode:     ModeBot,
		StatWins: make(map[string]Side, len(StatNames)),
	}

	cWins, oWins := 0, 0
	for _, name := range StatNames {
		cv, ov := challenger.Stat(name), opponent.Stat(name)
		switch {
		case cv > ov:
			cWins++
			out.StatWins[name] = SideChallenger
		case ov > cv:
			oWins++
			out.StatWins[name] = SideOpponent
		default:
			out.StatWins[name] = SideTie
		}
	}
	out.ChallengerScore = float64(cWins)
	out.OpponentScore = float64(oWins)

	if cWins != oWins {
		out.ChallengerWins = cWins > oWins
		out.Reason = ReasonStats
		return out
	}

	if ct, ot := challenger.Total(), opponent.Total(); ct != ot {
		out.ChallengerWins = ct > ot
		out.Reason = ReasonTotal
		return out
	}

	if cs, os := challenger.Stat(StatSpeed), opponent.Stat(StatSpeed); cs != os {
		out.ChallengerWins = cs > os
		out.Reason = ReasonSpeed
		return out
	}

	out.ChallengerWins = rng.Float64() < 0.5
	out.Reason = ReasonCoin
	return out
}
