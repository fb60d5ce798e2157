package models

import (
	"gorm.io/datatypes"
)

type QuestionCategory struct {
	ID       string  `json:"id" gorm:"primaryKey;size:36"`
	RoundID  string  `json:"round_id" gorm:"size:36;index;not null"`
	Name     string  `json:"name" gorm:"size:64;not null"`
	Order    int     `json:"order" gorm:"not null"`
	BuzzTime int     `json:"buzz_time" gorm:"not null;default:10"`
	BgImage  *string `json:"bg_image,omitempty" gorm:"size:128"`

	// Relationships
	Round     *QuestionRound `json:"-" gorm:"foreignKey:RoundID"`
	Questions []Question     `json:"questions,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
}

type Question struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	CategoryID string `json:"category_id" gorm:"size:36;index;not null"`
	Question   string `json:"question" gorm:"size:256;not null"`
	Answer     string `json:"answer" gorm:"size:256;not null"`
	Value      int    `json:"value" gorm:"not null"`
	// Extra holds optional presentation data: choices, image, video, explanation, tips, height.
	Extra datatypes.JSONMap `json:"extra,omitempty"`

	// Relationships
	Category *QuestionCategory `json:"-" gorm:"foreignKey:CategoryID"`
}

// RoundNumber walks question -> category -> round. Zero when the chain is not loaded.
func (q *Question) RoundNumber() int {
	if q == nil || q.Category == nil || q.Category.Round == nil {
		return 0
	}
	return q.Category.Round.Number
}

// Choices returns the multiple choice options, if any.
func (q *Question) Choices() []string {
	return q.extraStrings("choices")
}

// Tips returns the hints the presenter may reveal.
func (q *Question) Tips() []string {
	return q.extraStrings("tips")
}

func (q *Question) extraStrings(key string) []string {
	if q.Extra == nil {
		return nil
	}
	raw, ok := q.Extra[key].([]interface{})
	if !ok {
		if typed, ok := q.Extra[key].([]string); ok {
			return append([]string(nil), typed...)
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
