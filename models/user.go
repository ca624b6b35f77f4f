package models

import "gorm.io/gorm"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	gorm.Model
	Username       string `gorm:"size:20;unique;not null"`
	Email          string `gorm:"size:191;unique;not null"`
	Password       string `gorm:"not null" json:"-"`
	Name           string
	Address        string
	Phone          string
	Cart           Cart            `json:"-"`
	Orders         []Order         `json:"-"`
	Addresses      []Address       `json:"-"`
	PaymentMethods []PaymentMethod `json:"-"`
	LoginTokens    []LoginToken    `json:"-"`
	Role           string
}
