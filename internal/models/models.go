package models

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type Account struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"                 json:"id"`
	Email        string    `gorm:"uniqueIndex:idx_accounts_email;not null"    json:"email"`
	Username     string    `gorm:"uniqueIndex:idx_accounts_username;not null" json:"username"`
	PasswordHash string    `gorm:"column:password;not null"                   json:"-"`
	Role         Role      `gorm:"not null"                                   json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }

type Session struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    uint      `gorm:"index;not null"           json:"account_id"`
	Account      *Account  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RefreshToken string    `gorm:"index;not null"           json:"-"`
	ExpiresAt    time.Time `gorm:"index;not null"           json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}
