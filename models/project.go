package models

import "gorm.io/gorm"

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Project 為機器人/電子專題教學，可連結使用到的商品
type Project struct {
	gorm.Model
	Title      string `gorm:"not null"`
	Slug       string `gorm:"size:191;uniqueIndex;not null"`
	Summary    string
	Body       string `gorm:"type:text"`
	ImageURL   string
	Difficulty string    `gorm:"size:20;not null"`
	Published  bool      `gorm:"index"`
	Products   []Product `gorm:"many2many:project_products;"`
}

func ValidDifficulty(difficulty string) bool {
	switch difficulty {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}
