package model

import "time"

// User is an account allowed to call the API. Role decides the scopes it holds.
type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"` // Not exposed in API responses
	Role         string    `gorm:"type:varchar(32);not null;default:viewer" json:"role"`
	IsVerified   bool      `gorm:"column:is_verified;not null;default:false" json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName pins the table name used by gorm.
func (User) TableName() string {
	return "users"
}
