package store

import (
	"context"
	stderrors "errors"
	"time"

	"jeoparty/models"
	"jeoparty/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// AutoMigrate creates or updates the tables of every entity.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.QuestionPack{},
		&models.QuestionRound{},
		&models.QuestionCategory{},
		&models.Question{},
		&models.Contestant{},
		&models.Game{},
		&models.GameQuestion{},
		&models.GameContestant{},
		&models.GamePowerUp{},
	)
}

func (s *GormStore) preloadGame(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Pack").
		Preload("Pack.Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Preload("Pack.Rounds.Categories", func(db *gorm.DB) *gorm.DB { return db.Order(`"order" ASC`) }).
		Preload("Pack.Rounds.Categories.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("value ASC") }).
		Preload("GameQuestions").
		Preload("GameQuestions.Question").
		Preload("GameQuestions.Question.Category").
		Preload("GameQuestions.Question.Category.Round").
		Preload("GameContestants", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("GameContestants.Contestant").
		Preload("GameContestants.PowerUps")
}

func (s *GormStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var game models.Game
	if err := s.preloadGame(ctx).Where("id = ?", gameID).First(&game).Error; err != nil {
		return nil, notFoundOr(err, "game not found", "failed to load game")
	}
	if game.Pack != nil {
		game.Pack.Link()
	}
	return &game, nil
}

func (s *GormStore) GetGameByJoinCode(ctx context.Context, joinCode string) (*models.Game, error) {
	var game models.Game
	if err := s.preloadGame(ctx).
		Where("LOWER(join_code) = LOWER(?)", joinCode).
		Order("started_at DESC").
		First(&game).Error; err != nil {
		return nil, notFoundOr(err, "game not found", "failed to load game")
	}
	if game.Pack != nil {
		game.Pack.Link()
	}
	return &game, nil
}

func (s *GormStore) CountOpenGamesWithJoinCode(ctx context.Context, joinCode string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Game{}).
		Where("join_code LIKE ? AND stage <> ?", joinCode+"%", models.StageEnded).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count join codes")
	}
	return count, nil
}

// CreateGame inserts the game row and its question rows in one transaction.
func (s *GormStore) CreateGame(ctx context.Context, game *models.Game) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(game).Error; err != nil {
			return err
		}
		for i := range game.GameQuestions {
			game.GameQuestions[i].GameID = game.ID
		}
		if len(game.GameQuestions) > 0 {
			if err := tx.Omit(clause.Associations).CreateInBatches(game.GameQuestions, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create game")
	}
	return nil
}

// SaveGame persists the game row. Entering the ended stage stamps ended_at.
func (s *GormStore) SaveGame(ctx context.Context, game *models.Game) error {
	if game.Stage == models.StageEnded && game.EndedAt == nil {
		ended := s.now().UTC()
		game.EndedAt = &ended
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(game).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save game")
	}
	return nil
}

func (s *GormStore) SaveQuestions(ctx context.Context, questions ...*models.GameQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, q := range questions {
			if err := tx.Omit(clause.Associations).Save(q).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save questions")
	}
	return nil
}

func (s *GormStore) SaveContestants(ctx context.Context, contestants ...*models.GameContestant) error {
	if len(contestants) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, gc := range contestants {
			if err := tx.Omit(clause.Associations).Save(gc).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save contestants")
	}
	return nil
}

func (s *GormStore) SavePowerUps(ctx context.Context, powerUps ...*models.GamePowerUp) error {
	if len(powerUps) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range powerUps {
			if err := tx.Save(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save power-ups")
	}
	return nil
}

func (s *GormStore) GetContestant(ctx context.Context, contestantID string) (*models.Contestant, error) {
	var contestant models.Contestant
	if err := s.db.WithContext(ctx).Where("id = ?", contestantID).First(&contestant).Error; err != nil {
		return nil, notFoundOr(err, "contestant not found", "failed to load contestant")
	}
	return &contestant, nil
}

func (s *GormStore) SaveContestant(ctx context.Context, contestant *models.Contestant) error {
	if contestant.ID == "" {
		contestant.ID = models.NewID()
	}
	if err := s.db.WithContext(ctx).Save(contestant).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save contestant")
	}
	return nil
}

func (s *GormStore) AddContestantToGame(ctx context.Context, gc *models.GameContestant) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(gc).Error; err != nil {
			return err
		}
		for i := range gc.PowerUps {
			gc.PowerUps[i].GameContestantID = gc.ID
		}
		if len(gc.PowerUps) > 0 {
			if err := tx.Create(&gc.PowerUps).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to add contestant to game")
	}
	return nil
}

func (s *GormStore) GetPack(ctx context.Context, packID string) (*models.QuestionPack, error) {
	var pack models.QuestionPack
	err := s.db.WithContext(ctx).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Preload("Rounds.Categories", func(db *gorm.DB) *gorm.DB { return db.Order(`"order" ASC`) }).
		Preload("Rounds.Categories.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("value ASC") }).
		Where("id = ?", packID).
		First(&pack).Error
	if err != nil {
		return nil, notFoundOr(err, "pack not found", "failed to load pack")
	}
	pack.Link()
	return &pack, nil
}

// CreatePack inserts the whole pack tree in one transaction.
func (s *GormStore) CreatePack(ctx context.Context, pack *models.QuestionPack) error {
	pack.Link()
	if err := s.db.WithContext(ctx).Create(pack).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create pack")
	}
	return nil
}

func notFoundOr(err error, notFound, internal string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(errors.ErrCodeNotFound, notFound)
	}
	return errors.Wrap(err, errors.ErrCodeInternalError, internal)
}
