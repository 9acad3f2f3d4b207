package model

import "time"

var StaticPageTypes = []string{"store-service", "logistics", "help-center"}

// StaticPage is an editable content page keyed by page type
type StaticPage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PageType  string    `json:"page_type" gorm:"type:varchar(50);uniqueIndex;not null"`
	Content   string    `json:"content" gorm:"type:text"`
	UpdatedBy *uint     `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidStaticPageType reports whether t is a known page type
func IsValidStaticPageType(t string) bool {
	for _, v := range StaticPageTypes {
		if v == t {
			return true
		}
	}
	return false
}
