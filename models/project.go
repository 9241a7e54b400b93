package models

import "time"

// Project is a named container of photos owned by a single user.
// Deleting a project cascades to its photos.
type Project struct {
	ID        string     `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `gorm:"index" json:"-"`
	UserID    uint       `gorm:"index;not null;uniqueIndex:idx_user_project_name" json:"-"`
	User      User       `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Name      string     `gorm:"size:255;not null;uniqueIndex:idx_user_project_name" json:"name"`
	// Photos is a one-to-many relation from Project to Photo
	Photos []Photo `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
