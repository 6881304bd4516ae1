package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User is the credential-store document. Email and username are unique.
// ResetTokenHash and ResetTokenExpire are either both set (active reset
// flow) or both absent. Version backs the conditional update on
// HasCharacter so a concurrent toggle is not silently lost.
type User struct {
	ID               string     `bson:"_id" json:"id"`
	Username         string     `bson:"username" json:"username"`
	Email            string     `bson:"email" json:"email"`
	PasswordHash     []byte     `bson:"password_hash" json:"-"`
	Role             UserRole   `bson:"role" json:"role"`
	HasCharacter     bool       `bson:"has_character" json:"hasCharacter"`
	Character        string     `bson:"character,omitempty" json:"character,omitempty"`
	ResetTokenHash   []byte     `bson:"reset_token_hash,omitempty" json:"-"`
	ResetTokenExpire *time.Time `bson:"reset_token_expire,omitempty" json:"-"`
	LastLoginAt      time.Time  `bson:"last_login_at" json:"lastLoginAt"`
	CreatedAt        time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updatedAt"`
	Version          int64      `bson:"version" json:"-"`
}
