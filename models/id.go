package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewID returns a random entity id.
func NewID() string {
	return uuid.NewString()
}

func assignID(id *string) {
	if *id == "" {
		*id = NewID()
	}
}

func (p *QuestionPack) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (r *QuestionRound) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}

func (c *QuestionCategory) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	assignID(&q.ID)
	return nil
}

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	assignID(&g.ID)
	return nil
}

func (c *Contestant) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

func (gc *GameContestant) BeforeCreate(tx *gorm.DB) error {
	assignID(&gc.ID)
	return nil
}

func (p *GamePowerUp) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}
