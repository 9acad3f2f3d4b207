package model

import "time"

const ShareTypeFull = "FULL"

// PalletShare is an opaque share link granting read-only access to one owner's catalog.
// PalletType is frozen at issuance.
type PalletShare struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UserID       uint       `json:"user_id" gorm:"not null;index"`
	Token        string     `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	ShareType    string     `json:"share_type" gorm:"type:varchar(20);not null"`
	PalletType   string     `json:"pallet_type" gorm:"type:varchar(20);not null"`
	AccessCount  int64      `json:"access_count" gorm:"not null;default:0"`
	LastAccessed *time.Time `json:"last_accessed"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CustomerLog is an append-only visit record of a share link
type CustomerLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ShareID    uint      `json:"share_id" gorm:"not null;index"`
	IPAddress  string    `json:"ip_address" gorm:"type:varchar(64)"`
	UserAgent  string    `json:"user_agent" gorm:"type:text"`
	AccessTime time.Time `json:"access_time" gorm:"not null;index"`
}
