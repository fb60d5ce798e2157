package models

import (
	"time"
)

// Contestant is the identity shared across games.
type Contestant struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:16;not null"`
	Color     string    `json:"color" gorm:"size:16;not null"`
	Avatar    *string   `json:"avatar,omitempty" gorm:"size:128"`
	BuzzSound *string   `json:"buzz_sound,omitempty" gorm:"size:128"`
	BgImage   *string   `json:"bg_image,omitempty" gorm:"size:128"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GameContestant struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	GameID       string    `json:"game_id" gorm:"size:36;uniqueIndex:idx_game_contestant;not null"`
	ContestantID string    `json:"contestant_id" gorm:"size:36;uniqueIndex:idx_game_contestant;not null"`
	HasTurn      bool      `json:"has_turn" gorm:"not null;default:false"`
	Score        int       `json:"score" gorm:"not null;default:0"`
	Buzzes       int       `json:"buzzes" gorm:"not null;default:0"`
	Hits         int       `json:"hits" gorm:"not null;default:0"`
	Misses       int       `json:"misses" gorm:"not null;default:0"`
	FinaleWager  *int      `json:"finale_wager"`
	FinaleAnswer *string   `json:"finale_answer" gorm:"size:256"`
	JoinedAt     time.Time `json:"joined_at"`

	// Relationships
	Contestant *Contestant   `json:"contestant,omitempty" gorm:"foreignKey:ContestantID"`
	PowerUps   []GamePowerUp `json:"power_ups,omitempty" gorm:"foreignKey:GameContestantID;constraint:OnDelete:CASCADE"`
}

// Name returns the contestant's display name.
func (gc *GameContestant) Name() string {
	if gc.Contestant == nil {
		return ""
	}
	return gc.Contestant.Name
}

// PowerUp returns the contestant's row for kind, or nil.
func (gc *GameContestant) PowerUp(kind PowerUpKind) *GamePowerUp {
	for i := range gc.PowerUps {
		if gc.PowerUps[i].Kind == kind {
			return &gc.PowerUps[i]
		}
	}
	return nil
}

type GamePowerUp struct {
	ID               string      `json:"id" gorm:"primaryKey;size:36"`
	GameID           string      `json:"game_id" gorm:"size:36;index;not null"`
	GameContestantID string      `json:"game_contestant_id" gorm:"size:36;uniqueIndex:idx_contestant_power;not null"`
	Kind             PowerUpKind `json:"type" gorm:"column:type;size:16;uniqueIndex:idx_contestant_power;not null"`
	Enabled          bool        `json:"enabled" gorm:"not null;default:false"`
	Used             bool        `json:"used" gorm:"not null;default:false"`
}

// NewPowerUps builds one unused row per kind.
func NewPowerUps(gameID, gameContestantID string) []GamePowerUp {
	rows := make([]GamePowerUp, 0, len(PowerUpKinds))
	for _, kind := range PowerUpKinds {
		rows = append(rows, GamePowerUp{
			ID:               NewID(),
			GameID:           gameID,
			GameContestantID: gameContestantID,
			Kind:             kind,
		})
	}
	return rows
}
