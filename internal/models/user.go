package models

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringArray is a custom type for PostgreSQL text[] that implements Scanner and Valuer
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	// PostgreSQL returns text[] as a string like "{value1,value2,value3}"
	str, ok := value.(string)
	if !ok {
		if bytes, ok := value.([]byte); ok {
			str = string(bytes)
		} else {
			*a = nil
			return nil
		}
	}

	str = strings.TrimPrefix(str, "{")
	str = strings.TrimSuffix(str, "}")

	if str == "" {
		*a = []string{}
		return nil
	}

	*a = strings.Split(str, ",")
	return nil
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	if len(a) == 0 {
		return "{}", nil
	}
	return "{" + strings.Join(a, ",") + "}", nil
}

// Contains reports whether the array holds the given value
func (a StringArray) Contains(v string) bool {
	for _, s := range a {
		if s == v {
			return true
		}
	}
	return false
}

// Remove returns a copy of the array without the given value
func (a StringArray) Remove(v string) StringArray {
	out := make(StringArray, 0, len(a))
	for _, s := range a {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// UserRole controls access to moderation endpoints
type UserRole string

const (
	RoleUser      UserRole = "user"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
)

// User represents a Driftline account. Accounts are soft-deleted, never
// removed: ban/suspend/deactivate are flags the gateway and auth layer check.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Bio         string `gorm:"type:text" json:"bio"`
	Location    string `gorm:"type:text" json:"location"`
	AvatarURL   string `json:"avatar_url"`

	PasswordHash *string  `gorm:"type:text" json:"-"`
	Role         UserRole `gorm:"type:varchar(20);default:user" json:"role"`

	// Moderation / lifecycle state
	IsBanned       bool       `gorm:"default:false" json:"is_banned"`
	BannedAt       *time.Time `json:"banned_at,omitempty"`
	BanReason      string     `gorm:"type:text" json:"-"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`

	// Cached social stats
	FollowerCount  int `gorm:"default:0" json:"follower_count"`
	FollowingCount int `gorm:"default:0" json:"following_count"`
	PostCount      int `gorm:"default:0" json:"post_count"`

	// Activity tracking
	LastSeenAt *time.Time `json:"last_seen_at"`
	IsOnline   bool       `gorm:"default:false" json:"is_online"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsSuspended reports whether a suspension is currently in effect
func (u *User) IsSuspended() bool {
	return u.SuspendedUntil != nil && u.SuspendedUntil.After(time.Now())
}

// IsDeactivated reports whether the account is deactivated
func (u *User) IsDeactivated() bool {
	return u.DeactivatedAt != nil
}

// CanConnect reports whether the account state allows a realtime connection
func (u *User) CanConnect() bool {
	return !u.IsBanned && !u.IsSuspended() && !u.IsDeactivated()
}

// Session is one login on one device. The JWT carries the session ID;
// revoking the row invalidates the token before its expiry.
type Session struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	UserAgent    string     `gorm:"type:text" json:"user_agent"`
	IP           string     `json:"ip"`
	LastActiveAt time.Time  `json:"last_active_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRevoked reports whether the session has been revoked
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// BeforeCreate hooks for GORM

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = generateUUID()
	}
	if s.LastActiveAt.IsZero() {
		s.LastActiveAt = time.Now().UTC()
	}
	return nil
}

// Helper function for UUID generation
func generateUUID() string {
	return uuid.New().String()
}
