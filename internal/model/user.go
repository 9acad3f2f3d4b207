package model

import "time"

const (
	UserStatusActive   = "ACTIVE"
	UserStatusInactive = "INACTIVE"
)

// User represents an account. Admins manage the company catalog, everyone else is a seller.
type User struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	Username      string     `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	Password      string     `json:"-" gorm:"type:varchar(255);not null"`
	Name          string     `json:"name" gorm:"type:varchar(100)"`
	Phone         string     `json:"phone" gorm:"type:varchar(20)"`
	Email         string     `json:"email" gorm:"type:varchar(100)"`
	Company       string     `json:"company" gorm:"type:varchar(100)"`
	Avatar        string     `json:"avatar" gorm:"type:varchar(255)"`
	WechatQRCode  string     `json:"wechat_qrcode" gorm:"column:wechat_qrcode;type:varchar(255)"`
	IsAdmin       bool       `json:"is_admin" gorm:"not null;default:false"`
	Status        string     `json:"status" gorm:"type:varchar(20);not null;default:ACTIVE"`
	LastLoginTime *time.Time `json:"last_login_time,omitempty"`
	CreatedBy     *uint      `json:"created_by,omitempty"`
	UpdatedBy     *uint      `json:"updated_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Stores []Store `json:"stores,omitempty" gorm:"many2many:user_stores"`
}

// IsActive reports whether the account may log in
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Store is an external shop a user sells through
type Store struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Platform  string    `json:"platform" gorm:"type:varchar(50);not null"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	URL       string    `json:"url" gorm:"column:url;type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserStore links users to stores
type UserStore struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey"`
	StoreID   uint      `json:"store_id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}
