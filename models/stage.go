package models

type Stage string

const (
	StageLobby          Stage = "lobby"
	StageSelection      Stage = "selection"
	StageQuestion       Stage = "question"
	StageFinaleWager    Stage = "finale_wager"
	StageFinaleQuestion Stage = "finale_question"
	StageFinaleResult   Stage = "finale_result"
	StageEnded          Stage = "ended"
)

// Re-entering the current stage is always allowed so page reloads are harmless.
var stageTransitions = map[Stage][]Stage{
	StageLobby:          {StageSelection},
	StageSelection:      {StageQuestion, StageFinaleWager, StageEnded},
	StageQuestion:       {StageSelection},
	StageFinaleWager:    {StageFinaleQuestion},
	StageFinaleQuestion: {StageFinaleResult},
	StageFinaleResult:   {StageEnded},
}

// CanTransition reports whether a game in stage s may move to stage to.
func (s Stage) CanTransition(to Stage) bool {
	if s == to {
		return true
	}
	for _, next := range stageTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsFinale reports whether s is one of the finale stages.
func (s Stage) IsFinale() bool {
	return s == StageFinaleWager || s == StageFinaleQuestion || s == StageFinaleResult
}

type PowerUpKind string

const (
	PowerUpHijack PowerUpKind = "hijack"
	PowerUpFreeze PowerUpKind = "freeze"
	PowerUpRewind PowerUpKind = "rewind"
)

// PowerUpKinds lists every kind in display order.
var PowerUpKinds = []PowerUpKind{PowerUpHijack, PowerUpFreeze, PowerUpRewind}

func (k PowerUpKind) Valid() bool {
	switch k {
	case PowerUpHijack, PowerUpFreeze, PowerUpRewind:
		return true
	}
	return false
}

// DisablesBuzz reports whether using the power closes the buzzer for everyone else.
func (k PowerUpKind) DisablesBuzz() bool {
	return k == PowerUpHijack || k == PowerUpRewind
}
