package models

import (
	"time"
)

type Game struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	PackID          string     `json:"pack_id" gorm:"size:36;index;not null"`
	Title           string     `json:"title" gorm:"size:64;not null"`
	JoinCode        string     `json:"join_code" gorm:"size:64;index;not null"`
	RegularRounds   int        `json:"regular_rounds" gorm:"not null;default:2"`
	MaxContestants  int        `json:"max_contestants" gorm:"not null;default:8"`
	AnswerTime      int        `json:"answer_time" gorm:"not null;default:6"`
	UseDailyDoubles bool       `json:"use_daily_doubles" gorm:"not null"`
	UsePowerUps     bool       `json:"use_powerups" gorm:"column:use_powerups;not null"`
	Stage           Stage      `json:"stage" gorm:"size:16;not null;default:'lobby'"`
	Round           int        `json:"round" gorm:"not null;default:1"`
	Password        *string    `json:"-" gorm:"size:72"`
	CreatedBy       string     `json:"created_by" gorm:"size:36;index;not null"`
	StartedAt       time.Time  `json:"started_at" gorm:"autoCreateTime"`
	EndedAt         *time.Time `json:"ended_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relationships
	Pack            *QuestionPack    `json:"pack,omitempty" gorm:"foreignKey:PackID"`
	GameQuestions   []GameQuestion   `json:"game_questions,omitempty" gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	GameContestants []GameContestant `json:"game_contestants,omitempty" gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
}

// GameQuestion carries the per-game flags of one pack question.
type GameQuestion struct {
	GameID      string `json:"game_id" gorm:"primaryKey;size:36"`
	QuestionID  string `json:"question_id" gorm:"primaryKey;size:36"`
	Active      bool   `json:"active" gorm:"not null;default:false"`
	Used        bool   `json:"used" gorm:"not null;default:false"`
	DailyDouble bool   `json:"daily_double" gorm:"not null;default:false"`

	// Relationships
	Question *Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

// MarkUsed retires the question. Used never reverts.
func (gq *GameQuestion) MarkUsed() {
	gq.Used = true
	gq.Active = false
}
