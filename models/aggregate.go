package models

import (
	"sort"
)

// HasFinale reports whether the game's pack ends with a finale round.
func (g *Game) HasFinale() bool {
	return g.Pack != nil && g.Pack.IncludeFinale && len(g.Pack.Rounds) > 0
}

func (g *Game) TotalRounds() int {
	if g.HasFinale() {
		return g.RegularRounds + 1
	}
	return g.RegularRounds
}

// CurrentRound returns the pack round the game is in, or nil when it is out of range.
func (g *Game) CurrentRound() *QuestionRound {
	if g.Pack == nil || g.Round < 1 || g.Round > len(g.Pack.Rounds) {
		return nil
	}
	return &g.Pack.Rounds[g.Round-1]
}

// QuestionsForRound returns the game questions whose round number equals g.Round.
func (g *Game) QuestionsForRound() []*GameQuestion {
	var questions []*GameQuestion
	for i := range g.GameQuestions {
		if g.GameQuestions[i].Question.RoundNumber() == g.Round {
			questions = append(questions, &g.GameQuestions[i])
		}
	}
	return questions
}

// RoundFinished reports whether every question of the current round is used.
func (g *Game) RoundFinished() bool {
	questions := g.QuestionsForRound()
	if len(questions) == 0 {
		return false
	}
	for _, q := range questions {
		if !q.Used {
			return false
		}
	}
	return true
}

func (g *Game) ActiveQuestion() *GameQuestion {
	for i := range g.GameQuestions {
		if g.GameQuestions[i].Active {
			return &g.GameQuestions[i]
		}
	}
	return nil
}

func (g *Game) GameQuestion(questionID string) *GameQuestion {
	for i := range g.GameQuestions {
		if g.GameQuestions[i].QuestionID == questionID {
			return &g.GameQuestions[i]
		}
	}
	return nil
}

// Contestant looks a participant up by contestant identity id.
func (g *Game) Contestant(contestantID string) *GameContestant {
	for i := range g.GameContestants {
		if g.GameContestants[i].ContestantID == contestantID {
			return &g.GameContestants[i]
		}
	}
	return nil
}

func (g *Game) ContestantWithTurn() *GameContestant {
	for i := range g.GameContestants {
		if g.GameContestants[i].HasTurn {
			return &g.GameContestants[i]
		}
	}
	return nil
}

// SetTurn gives contestantID the turn and takes it from everyone else.
// It returns the rows whose has_turn flag changed.
func (g *Game) SetTurn(contestantID string) []*GameContestant {
	var changed []*GameContestant
	for i := range g.GameContestants {
		gc := &g.GameContestants[i]
		hasTurn := gc.ContestantID == contestantID
		if gc.HasTurn != hasTurn {
			gc.HasTurn = hasTurn
			changed = append(changed, gc)
		}
	}
	return changed
}

// LowestScoring returns the contestant with the strictly lowest score.
// Ties go to whoever joined first.
func (g *Game) LowestScoring() *GameContestant {
	var lowest *GameContestant
	for i := range g.GameContestants {
		gc := &g.GameContestants[i]
		switch {
		case lowest == nil, gc.Score < lowest.Score:
			lowest = gc
		case gc.Score == lowest.Score && gc.JoinedAt.Before(lowest.JoinedAt):
			lowest = gc
		}
	}
	return lowest
}

// DailyDoubleCount is the number of daily doubles placed when a regular round starts.
func (g *Game) DailyDoubleCount() int {
	roundZero := g.Round - 1
	return (g.RegularRounds + 1) - (g.RegularRounds - roundZero)
}

// SortedByScore returns the contestants ordered by score descending, then name.
func (g *Game) SortedByScore() []*GameContestant {
	sorted := make([]*GameContestant, len(g.GameContestants))
	for i := range g.GameContestants {
		sorted[i] = &g.GameContestants[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Name() < sorted[j].Name()
	})
	return sorted
}

// Winners returns the contestants sharing the top score.
func (g *Game) Winners() []*GameContestant {
	sorted := g.SortedByScore()
	if len(sorted) == 0 {
		return nil
	}
	end := 1
	for end < len(sorted) && sorted[end].Score == sorted[0].Score {
		end++
	}
	return sorted[:end]
}

// MaxValue returns the highest question value of the current round.
func (g *Game) MaxValue() int {
	highest := 0
	for _, q := range g.QuestionsForRound() {
		if q.Question != nil && q.Question.Value > highest {
			highest = q.Question.Value
		}
	}
	return highest
}
