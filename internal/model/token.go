package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RefreshToken renews an access token while it keeps being used
type RefreshToken struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Token        string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID       uint      `json:"user_id" gorm:"not null;index"`
	AccessCount  int64     `json:"access_count" gorm:"not null;default:0"`
	LastAccessed time.Time `json:"last_accessed"`
	Revoked      bool      `json:"revoked" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate hook will be called before creating a new RefreshToken record
func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.Token == "" {
		t.Token = uuid.NewString()
	}
	if t.LastAccessed.IsZero() {
		t.LastAccessed = time.Now()
	}
	return nil
}

// IsValid reports whether the token is unrevoked and was used within idle
func (t *RefreshToken) IsValid(idle time.Duration, now time.Time) bool {
	return !t.Revoked && now.Sub(t.LastAccessed) <= idle
}

// AccessLog records authentication events
type AccessLog struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"not null;index"`
	Action    string         `json:"action" gorm:"type:varchar(50);not null"`
	IPAddress string         `json:"ip_address" gorm:"type:varchar(64)"`
	UserAgent string         `json:"user_agent" gorm:"type:text"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}
