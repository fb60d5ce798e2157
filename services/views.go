package services

import (
	"jeoparty/models"
	"jeoparty/security"
)

type ContestantView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	Avatar       *string `json:"avatar,omitempty"`
	BuzzSound    *string `json:"buzz_sound,omitempty"`
	BgImage      *string `json:"bg_image,omitempty"`
	Score        int     `json:"score"`
	Buzzes       int     `json:"buzzes"`
	Hits         int     `json:"hits"`
	Misses       int     `json:"misses"`
	HasTurn      bool    `json:"has_turn"`
	FinaleWager  *int    `json:"finale_wager,omitempty"`
	FinaleAnswer *string `json:"finale_answer,omitempty"`
	// FinaleAnswerHTML is FinaleAnswer escaped for the presenter page.
	FinaleAnswerHTML string               `json:"finale_answer_html,omitempty"`
	PowerUps         []models.GamePowerUp `json:"power_ups,omitempty"`
}

func newContestantView(gc *models.GameContestant) ContestantView {
	view := ContestantView{
		ID:           gc.ContestantID,
		Name:         gc.Name(),
		Score:        gc.Score,
		Buzzes:       gc.Buzzes,
		Hits:         gc.Hits,
		Misses:       gc.Misses,
		HasTurn:      gc.HasTurn,
		FinaleWager:  gc.FinaleWager,
		FinaleAnswer: gc.FinaleAnswer,
		PowerUps:     gc.PowerUps,
	}
	if gc.FinaleAnswer != nil {
		view.FinaleAnswerHTML = security.RenderText(*gc.FinaleAnswer)
	}
	if gc.Contestant != nil {
		view.Color = gc.Contestant.Color
		view.Avatar = gc.Contestant.Avatar
		view.BuzzSound = gc.Contestant.BuzzSound
		view.BgImage = gc.Contestant.BgImage
	}
	return view
}

func contestantViews(game *models.Game) []ContestantView {
	views := make([]ContestantView, 0, len(game.GameContestants))
	for i := range game.GameContestants {
		views = append(views, newContestantView(&game.GameContestants[i]))
	}
	return views
}

type QuestionCell struct {
	ID          string `json:"id"`
	Value       int    `json:"value"`
	Active      bool   `json:"active"`
	Used        bool   `json:"used"`
	DailyDouble bool   `json:"daily_double"`
}

type CategoryView struct {
	Name      string         `json:"name"`
	Order     int            `json:"order"`
	BgImage   *string        `json:"bg_image,omitempty"`
	Questions []QuestionCell `json:"questions"`
}

// SelectionView is the question board.
type SelectionView struct {
	Redirect    string           `json:"redirect,omitempty"`
	Stage       models.Stage     `json:"stage"`
	Round       int              `json:"round"`
	RoundName   string           `json:"round_name"`
	TotalRounds int              `json:"total_rounds"`
	Finale      bool             `json:"finale"`
	FirstRound  bool             `json:"first_round"`
	Turn        string           `json:"turn,omitempty"`
	Categories  []CategoryView   `json:"categories"`
	Contestants []ContestantView `json:"contestants"`
}

type QuestionView struct {
	Redirect    string                 `json:"redirect,omitempty"`
	Stage       models.Stage           `json:"stage"`
	Round       int                    `json:"round"`
	RoundName   string                 `json:"round_name"`
	Category    string                 `json:"category"`
	QuestionID  string                 `json:"question_id"`
	Question    string                 `json:"question"`
	Answer      string                 `json:"answer"`
	Value       int                    `json:"value"`
	Choices     []string               `json:"choices,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
	BuzzTime    int                    `json:"buzz_time"`
	AnswerTime  int                    `json:"answer_time"`
	DailyDouble bool                   `json:"daily_double"`
	Finale      bool                   `json:"finale"`
	Contestants []ContestantView       `json:"contestants"`
}

type FinaleView struct {
	Stage       models.Stage     `json:"stage"`
	Category    string           `json:"category"`
	Question    string           `json:"question"`
	Answer      string           `json:"answer"`
	Contestants []ContestantView `json:"contestants"`
}

type EndscreenView struct {
	Stage          models.Stage     `json:"stage"`
	Contestants    []ContestantView `json:"contestants"`
	Winners        []ContestantView `json:"winners"`
	WinnerTemplate string           `json:"winner_template"`
	WinnerDesc     string           `json:"winner_desc"`
}

func categoryViews(game *models.Game) []CategoryView {
	round := game.CurrentRound()
	if round == nil {
		return nil
	}
	views := make([]CategoryView, 0, len(round.Categories))
	for _, category := range round.Categories {
		view := CategoryView{Name: category.Name, Order: category.Order, BgImage: category.BgImage}
		for _, q := range category.Questions {
			cell := QuestionCell{ID: q.ID, Value: q.Value}
			if gq := game.GameQuestion(q.ID); gq != nil {
				cell.Active, cell.Used, cell.DailyDouble = gq.Active, gq.Used, gq.DailyDouble
			}
			view.Questions = append(view.Questions, cell)
		}
		views = append(views, view)
	}
	return views
}
