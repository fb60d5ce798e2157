package models

import (
	"time"
)

// QuestionPack is read-only while a game is running.
type QuestionPack struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	Name          string    `json:"name" gorm:"size:64;not null"`
	Public        bool      `json:"public" gorm:"not null;default:false"`
	IncludeFinale bool      `json:"include_finale" gorm:"not null"`
	Language      string    `json:"language" gorm:"size:16;not null;default:'english'"`
	CreatedBy     string    `json:"created_by" gorm:"size:36;index;not null"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships
	Rounds []QuestionRound `json:"rounds,omitempty" gorm:"foreignKey:PackID;constraint:OnDelete:CASCADE"`
}

// QuestionRound is one block of categories. Number is 1-based.
type QuestionRound struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	PackID string `json:"pack_id" gorm:"size:36;index;not null"`
	Name   string `json:"name" gorm:"size:64;not null"`
	Number int    `json:"round" gorm:"not null"`

	// Relationships
	Categories []QuestionCategory `json:"categories,omitempty" gorm:"foreignKey:RoundID;constraint:OnDelete:CASCADE"`
}

// RegularRounds returns the number of rounds that are not the finale.
func (p *QuestionPack) RegularRounds() int {
	if p.IncludeFinale && len(p.Rounds) > 0 {
		return len(p.Rounds) - 1
	}
	return len(p.Rounds)
}

// FinaleRound returns the finale round, or nil when the pack has none.
func (p *QuestionPack) FinaleRound() *QuestionRound {
	if !p.IncludeFinale || len(p.Rounds) == 0 {
		return nil
	}
	return &p.Rounds[len(p.Rounds)-1]
}

// Link assigns missing ids and sets the back references from questions to
// categories and rounds. Rounds and categories are numbered by slice position
// when unset.
func (p *QuestionPack) Link() {
	assignID(&p.ID)
	for i := range p.Rounds {
		round := &p.Rounds[i]
		assignID(&round.ID)
		round.PackID = p.ID
		if round.Number == 0 {
			round.Number = i + 1
		}
		for j := range round.Categories {
			category := &round.Categories[j]
			assignID(&category.ID)
			category.RoundID = round.ID
			category.Round = round
			if category.Order == 0 {
				category.Order = j + 1
			}
			for k := range category.Questions {
				question := &category.Questions[k]
				assignID(&question.ID)
				question.CategoryID = category.ID
				question.Category = category
			}
		}
	}
}
