package models

import (
	"time"

	"gorm.io/gorm"
)

// Follow links a follower to the account they follow
type Follow struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	FollowerID string `gorm:"not null;index" json:"follower_id"`
	Follower   User   `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	FolloweeID string `gorm:"not null;index" json:"followee_id"`
	Followee   User   `gorm:"foreignKey:FolloweeID" json:"followee,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the join table name explicit
func (Follow) TableName() string {
	return "follows"
}

// UserBlock represents a user blocking another user. Blocks are stored
// one-directional but enforced symmetrically: messaging and follow checks
// reject the pair regardless of which side created the block.
type UserBlock struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	BlockerID string `gorm:"not null;index" json:"blocker_id"`
	Blocker   User   `gorm:"foreignKey:BlockerID" json:"blocker,omitempty"`
	BlockedID string `gorm:"not null;index" json:"blocked_id"`
	Blocked   User   `gorm:"foreignKey:BlockedID" json:"blocked,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (UserBlock) TableName() string {
	return "user_blocks"
}

// MutedUser hides a user's posts from the muter's feed without unfollowing
type MutedUser struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID      string `gorm:"not null;index" json:"user_id"`
	User        User   `gorm:"foreignKey:UserID" json:"-"`
	MutedUserID string `gorm:"not null;index" json:"muted_user_id"`
	Muted       User   `gorm:"foreignKey:MutedUserID" json:"muted_user,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (MutedUser) TableName() string {
	return "muted_users"
}

// ReportReason represents the reason for a report
type ReportReason string

const (
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonHarassment    ReportReason = "harassment"
	ReportReasonInappropriate ReportReason = "inappropriate"
	ReportReasonViolence      ReportReason = "violence"
	ReportReasonOther         ReportReason = "other"
)

// ValidReportReason reports whether the reason is one of the accepted values
func ValidReportReason(r string) bool {
	switch ReportReason(r) {
	case ReportReasonSpam, ReportReasonHarassment, ReportReasonInappropriate,
		ReportReasonViolence, ReportReasonOther:
		return true
	}
	return false
}

// ReportStatus represents the status of a report
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusReviewing ReportStatus = "reviewing"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// ReportTargetType represents what type of content is being reported
type ReportTargetType string

const (
	ReportTargetPost    ReportTargetType = "post"
	ReportTargetComment ReportTargetType = "comment"
	ReportTargetMessage ReportTargetType = "message"
	ReportTargetUser    ReportTargetType = "user"
)

// Report represents a user report for moderation
type Report struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ReporterID string `gorm:"not null;index" json:"reporter_id"`
	Reporter   User   `gorm:"foreignKey:ReporterID" json:"reporter,omitempty"`

	TargetType   ReportTargetType `gorm:"not null" json:"target_type"`
	TargetID     string           `gorm:"not null;index" json:"target_id"`
	TargetUserID *string          `gorm:"index" json:"target_user_id"`

	Reason      ReportReason `gorm:"not null" json:"reason"`
	Description string       `gorm:"type:text" json:"description"`
	Status      ReportStatus `gorm:"default:pending" json:"status"`

	ModeratorID *string `gorm:"index" json:"moderator_id"`
	Moderator   *User   `gorm:"foreignKey:ModeratorID" json:"moderator,omitempty"`
	ActionTaken string  `gorm:"type:text" json:"action_taken"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (f *Follow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	return nil
}

func (b *UserBlock) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = generateUUID()
	}
	return nil
}

func (m *MutedUser) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}
