package services

import (
	"context"
	"math/rand"

	"jeoparty/models"
	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
)

const (
	RedirectSelection = "selection"
	RedirectFinale    = "finale"
	RedirectEndscreen = "endscreen"
)

// presenterGame loads the game and checks that userID created it.
func (c *Coordinator) presenterGame(ctx context.Context, userID string) (*models.Game, error) {
	game, err := c.loadGame(ctx)
	if err != nil {
		return nil, err
	}
	if game.CreatedBy != userID {
		return nil, errors.New(errors.ErrCodeForbidden, "user "+userID+" is not the creator of the game")
	}
	return game, nil
}

func transitionConflict(from, to models.Stage) error {
	return errors.New(errors.ErrCodeConflict, "cannot move game from "+string(from)+" to "+string(to))
}

func (c *Coordinator) stageChanged(game *models.Game) {
	logger.Info("Game stage changed", "game_id", c.gameID, "stage", game.Stage, "round", game.Round)
	c.emit("state_changed", game.Stage, RoomPresenter)
	c.emit("state_changed", game.Stage, RoomContestants)
}

// EnterSelection shows the question board. It retires the question that was on
// screen, advances the round once every question of the current one is used
// and runs the round-entry actions for a fresh round.
func (c *Coordinator) EnterSelection(ctx context.Context, userID string) (*SelectionView, error) {
	game, err := c.presenterGame(ctx, userID)
	if err != nil {
		return nil, err
	}
	if game.Stage == models.StageFinaleWager {
		return c.selectionView(game), nil
	}
	if !game.Stage.CanTransition(models.StageSelection) {
		return nil, transitionConflict(game.Stage, models.StageSelection)
	}

	from := game.Stage
	var questions []*models.GameQuestion
	var contestants []*models.GameContestant
	var powers []*models.GamePowerUp

	previous := game.ActiveQuestion()
	if previous != nil && from == models.StageQuestion {
		previous.MarkUsed()
		questions = append(questions, previous)
		c.resetQuestionState("")
	}

	endOfRound := game.RoundFinished()
	if endOfRound {
		game.Round++
		if game.Round > game.RegularRounds {
			if !game.HasFinale() {
				game.Round--
				game.Stage = models.StageSelection
				if err := c.saveFlow(ctx, game, questions, nil, nil); err != nil {
					return nil, err
				}
				return &SelectionView{Redirect: RedirectEndscreen, Stage: game.Stage, Round: game.Round}, nil
			}
			return c.enterFinaleWager(ctx, game, questions)
		}
		if lowest := game.LowestScoring(); lowest != nil {
			contestants = game.SetTurn(lowest.ContestantID)
		}
	}

	if c.freshRound(game) {
		questions = append(questions, placeDailyDoubles(game)...)
		powers = append(powers, resetUsedPowers(game)...)
		logger.Info("Round started", "game_id", c.gameID, "round", game.Round)
	}

	game.Stage = models.StageSelection
	if err := c.saveFlow(ctx, game, questions, contestants, powers); err != nil {
		return nil, err
	}
	if from != game.Stage {
		c.stageChanged(game)
	}
	if endOfRound {
		if turn := game.ContestantWithTurn(); turn != nil {
			c.emit("turn_chosen", turn.ContestantID, RoomContestants)
		}
	}
	c.publishState(ctx, game)

	view := c.selectionView(game)
	view.FirstRound = previous == nil && game.Round == 1 && game.ContestantWithTurn() == nil
	return view, nil
}

// freshRound reports whether no question of the current round has been
// touched yet and no daily double has been placed.
func (c *Coordinator) freshRound(game *models.Game) bool {
	questions := game.QuestionsForRound()
	if len(questions) == 0 {
		return false
	}
	for _, q := range questions {
		if q.Used || q.Active || q.DailyDouble {
			return false
		}
	}
	return true
}

// placeDailyDoubles flags game.DailyDoubleCount random questions of the round.
func placeDailyDoubles(game *models.Game) []*models.GameQuestion {
	if !game.UseDailyDoubles {
		return nil
	}
	questions := game.QuestionsForRound()
	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	count := game.DailyDoubleCount()
	if count > len(questions) {
		count = len(questions)
	}
	for _, q := range questions[:count] {
		q.DailyDouble = true
	}
	return questions[:count]
}

// resetUsedPowers makes every power-up available again for the new round.
func resetUsedPowers(game *models.Game) []*models.GamePowerUp {
	var changed []*models.GamePowerUp
	for i := range game.GameContestants {
		gc := &game.GameContestants[i]
		for j := range gc.PowerUps {
			power := &gc.PowerUps[j]
			if power.Used || power.Enabled {
				power.Used = false
				power.Enabled = false
				changed = append(changed, power)
			}
		}
	}
	return changed
}

func (c *Coordinator) enterFinaleWager(ctx context.Context, game *models.Game, questions []*models.GameQuestion) (*SelectionView, error) {
	if game.Round < len(game.Pack.Rounds) {
		game.Round = len(game.Pack.Rounds)
	}
	game.Stage = models.StageFinaleWager
	if err := c.saveFlow(ctx, game, questions, nil, nil); err != nil {
		return nil, err
	}

	c.stageChanged(game)
	if round := game.CurrentRound(); round != nil && len(round.Categories) > 0 {
		c.emit("finale_category_revealed", round.Categories[0].Name, RoomContestants)
	}
	c.publishState(ctx, game)
	return c.selectionView(game), nil
}

func (c *Coordinator) saveFlow(ctx context.Context, game *models.Game, questions []*models.GameQuestion, contestants []*models.GameContestant, powers []*models.GamePowerUp) error {
	if err := c.store.SaveQuestions(ctx, questions...); err != nil {
		return err
	}
	if err := c.store.SaveContestants(ctx, contestants...); err != nil {
		return err
	}
	if err := c.store.SavePowerUps(ctx, powers...); err != nil {
		return err
	}
	return c.store.SaveGame(ctx, game)
}

func (c *Coordinator) selectionView(game *models.Game) *SelectionView {
	view := &SelectionView{
		Stage:       game.Stage,
		Round:       game.Round,
		TotalRounds: game.TotalRounds(),
		Finale:      game.Stage.IsFinale(),
		Categories:  categoryViews(game),
		Contestants: contestantViews(game),
	}
	if round := game.CurrentRound(); round != nil {
		view.RoundName = round.Name
	}
	if turn := game.ContestantWithTurn(); turn != nil {
		view.Turn = turn.ContestantID
	}
	return view
}

// EnterQuestion shows the active question. From finale_wager it activates the
// single finale question and moves the game to finale_question.
func (c *Coordinator) EnterQuestion(ctx context.Context, userID string) (*QuestionView, error) {
	game, err := c.presenterGame(ctx, userID)
	if err != nil {
		return nil, err
	}

	finale := game.Stage == models.StageFinaleWager || game.Stage == models.StageFinaleQuestion
	target := models.StageQuestion
	if finale {
		target = models.StageFinaleQuestion
	}
	if !game.Stage.CanTransition(target) {
		return nil, transitionConflict(game.Stage, target)
	}

	var questions []*models.GameQuestion
	if game.Stage == models.StageFinaleWager && game.ActiveQuestion() == nil {
		round := game.QuestionsForRound()
		if len(round) == 0 {
			return nil, errors.New(errors.ErrCodeConflict, "the finale round has no question")
		}
		round[0].Active = true
		questions = append(questions, round[0])
	}

	active := game.ActiveQuestion()
	if active == nil || active.Used {
		return &QuestionView{Redirect: RedirectSelection, Stage: game.Stage, Round: game.Round}, nil
	}

	entering := game.Stage != target
	c.mu.Lock()
	fresh := entering || c.meta.question.questionID != active.QuestionID
	c.mu.Unlock()

	var powers []*models.GamePowerUp
	var offered []string
	if fresh {
		c.resetQuestionState(active.QuestionID)
		offerHijack := !finale && !active.DailyDouble && game.UsePowerUps
		powers, offered = resetQuestionPowers(game, offerHijack)
	}

	game.Stage = target
	if err := c.saveFlow(ctx, game, questions, nil, powers); err != nil {
		return nil, err
	}

	if entering {
		c.stageChanged(game)
	}
	if fresh {
		c.emit("power_ups_disabled", models.PowerUpKinds, RoomContestants)
		for _, id := range offered {
			if sessionSID, ok := c.sessionSID(id); ok {
				c.emit("power_up_enabled", models.PowerUpHijack, sessionSID)
			}
		}
	}
	c.publishState(ctx, game)
	return c.questionView(game, active), nil
}

func (c *Coordinator) questionView(game *models.Game, gq *models.GameQuestion) *QuestionView {
	q := gq.Question
	view := &QuestionView{
		Stage:       game.Stage,
		Round:       game.Round,
		QuestionID:  gq.QuestionID,
		AnswerTime:  game.AnswerTime,
		DailyDouble: gq.DailyDouble,
		Finale:      game.Stage.IsFinale(),
		Contestants: contestantViews(game),
	}
	if round := game.CurrentRound(); round != nil {
		view.RoundName = round.Name
	}
	if q == nil {
		return view
	}
	view.Question = q.Question
	view.Answer = q.Answer
	view.Value = q.Value
	view.Extra = q.Extra
	if q.Category != nil {
		view.Category = q.Category.Name
		view.BuzzTime = q.Category.BuzzTime
	}
	if choices := q.Choices(); len(choices) > 0 {
		rand.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
		view.Choices = choices
	}
	return view
}

// EnterFinale shows the finale results so the presenter can judge the answers.
func (c *Coordinator) EnterFinale(ctx context.Context, userID string) (*FinaleView, error) {
	game, err := c.presenterGame(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !game.Stage.CanTransition(models.StageFinaleResult) {
		return nil, transitionConflict(game.Stage, models.StageFinaleResult)
	}
	active := game.ActiveQuestion()
	if active == nil {
		return nil, errors.New(errors.ErrCodeConflict, "no finale question is active")
	}

	entering := game.Stage != models.StageFinaleResult
	game.Stage = models.StageFinaleResult
	if err := c.store.SaveGame(ctx, game); err != nil {
		return nil, err
	}
	if entering {
		c.stageChanged(game)
	}
	c.publishState(ctx, game)

	view := &FinaleView{Stage: game.Stage, Contestants: contestantViews(game)}
	if q := active.Question; q != nil {
		view.Question = q.Question
		view.Answer = q.Answer
		if q.Category != nil {
			view.Category = q.Category.Name
		}
	}
	return view, nil
}

// EnterEndscreen ends the game and ranks the contestants. Without a finale it
// is reachable from selection once the last regular round is done.
func (c *Coordinator) EnterEndscreen(ctx context.Context, userID string) (*EndscreenView, error) {
	game, err := c.presenterGame(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !game.Stage.CanTransition(models.StageEnded) {
		return nil, transitionConflict(game.Stage, models.StageEnded)
	}
	if game.Stage == models.StageSelection && !(game.Round >= game.RegularRounds && game.RoundFinished() && !game.HasFinale()) {
		return nil, transitionConflict(game.Stage, models.StageEnded)
	}

	entering := game.Stage != models.StageEnded
	if entering {
		game.Stage = models.StageEnded
		now := c.now()
		game.EndedAt = &now
		if err := c.store.SaveGame(ctx, game); err != nil {
			return nil, err
		}
		c.stageChanged(game)
		c.publishState(ctx, game)
	}
	return newEndscreenView(game), nil
}
