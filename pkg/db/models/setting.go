package models

import "time"

// Setting is a key/value configuration entry grouped by category.
type Setting struct {
	Key         string    `gorm:"column:key;primaryKey"`
	Value       string    `gorm:"column:value;not null"`
	Category    string    `gorm:"column:category;not null"`
	Description *string   `gorm:"column:description"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
