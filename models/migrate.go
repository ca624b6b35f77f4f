package models

import "gorm.io/gorm"

func All() []interface{} {
	return []interface{}{
		&User{},
		&LoginToken{},
		&Brand{},
		&Category{},
		&Product{},
		&Project{},
		&Address{},
		&PaymentMethod{},
		&Order{},
		&OrderItem{},
		&Cart{},
		&CartItem{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
