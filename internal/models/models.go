package models

import "time"

type User struct {
	ID             string     `gorm:"primaryKey"           json:"id"`
	Username       string     `gorm:"uniqueIndex;not null" json:"username"`
	Email          string     `gorm:"not null"             json:"email"`
	PasswordHash   string     `gorm:"not null"             json:"-"`
	EmailConfirmed bool       `gorm:"default:false"        json:"email_confirmed"`
	FailedLogins   int        `gorm:"default:0"            json:"-"`
	LockoutUntil   *time.Time `                            json:"-"`
}

type UserRole struct {
	ID     uint   `gorm:"primaryKey"     json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`
	Role   string `gorm:"not null"       json:"role"`
}

// UserClaim is an extra (name, value) assertion attached to a user and
// copied into every access token the user is issued. Names may repeat.
type UserClaim struct {
	ID     uint   `gorm:"primaryKey"     json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`
	Name   string `gorm:"not null"       json:"name"`
	Value  string `gorm:"not null"       json:"value"`
}

// RefreshToken is the one-per-username refresh record. Username carries the
// unique index: a second login or refresh for the same user overwrites the
// row instead of inserting another one.
type RefreshToken struct {
	ID          uint       `gorm:"primaryKey"           json:"id"`
	Username    string     `gorm:"uniqueIndex;not null" json:"username"`
	Token       string     `gorm:"not null"             json:"-"`
	ExpiresAt   time.Time  `gorm:"not null"             json:"expires_at"`
	Active      bool       `gorm:"default:true"         json:"active"`
	Created     time.Time  `gorm:"not null"             json:"created"`
	CreatedByIP string     `                            json:"created_by_ip"`
	Revoked     *time.Time `                            json:"revoked,omitempty"`
	RevokedByIP string     `                            json:"revoked_by_ip,omitempty"`
	CreatedBy   string     `                            json:"created_by"`
	ModifiedBy  string     `                            json:"modified_by"`
	ModifiedAt  time.Time  `                            json:"modified_at"`
}
