package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserRoleClient is the role of self-registered client operators.
const UserRoleClient = "client"

// User is a person operating one or more clients through the account API.
type User struct {
	ID           string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email        string     `json:"email" gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"` // Never return the hash in JSON
	Role         string     `json:"role" gorm:"size:32;not null;default:client"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (User) TableName() string { return "users" }

// BeforeCreate assigns a UUID and the default role.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = UserRoleClient
	}
	return nil
}

// UserClient links a user to a client it operates.
type UserClient struct {
	UserID    string    `gorm:"type:varchar(36);primaryKey"`
	ClientID  string    `gorm:"type:varchar(36);primaryKey;index"`
	CreatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (UserClient) TableName() string { return "user_clients" }

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
