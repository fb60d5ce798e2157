package store

import (
	"context"

	"jeoparty/models"
)

// Store is the durable record of packs, games and contestants.
//
// GetGame returns a freshly loaded aggregate: pack tree, game questions with
// their question/category/round chain, and contestants ordered by join time
// with identity and power-ups. Save methods write only the rows passed in and
// never cascade into associations.
type Store interface {
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	GetGameByJoinCode(ctx context.Context, joinCode string) (*models.Game, error)
	// CountOpenGamesWithJoinCode counts games that have not ended whose join
	// code starts with joinCode.
	CountOpenGamesWithJoinCode(ctx context.Context, joinCode string) (int64, error)
	CreateGame(ctx context.Context, game *models.Game) error
	SaveGame(ctx context.Context, game *models.Game) error
	SaveQuestions(ctx context.Context, questions ...*models.GameQuestion) error
	SaveContestants(ctx context.Context, contestants ...*models.GameContestant) error
	SavePowerUps(ctx context.Context, powerUps ...*models.GamePowerUp) error

	GetContestant(ctx context.Context, contestantID string) (*models.Contestant, error)
	SaveContestant(ctx context.Context, contestant *models.Contestant) error
	// AddContestantToGame inserts gc and its power-up rows.
	AddContestantToGame(ctx context.Context, gc *models.GameContestant) error

	GetPack(ctx context.Context, packID string) (*models.QuestionPack, error)
	CreatePack(ctx context.Context, pack *models.QuestionPack) error
}
