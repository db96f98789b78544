package models

import (
	"time"

	"gorm.io/gorm"
)

type Post struct {
	gorm.Model
	Text      string `gorm:"column:text;type:text;not null" json:"text"`
	AuthorID  uint   `gorm:"column:author_id;not null;index" json:"author_id"`
	GroupID   *uint  `gorm:"column:group_id" json:"group_id,omitempty"`
	ImagePath string `gorm:"column:image_path;size:255" json:"image_path,omitempty"`

	Author   *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
	Group    *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL" json:"group,omitempty"`
	Comments []Comment `gorm:"foreignKey:PostID" json:"comments,omitempty"`
}

type Group struct {
	gorm.Model
	Title       string `gorm:"column:title;size:200;not null" json:"title"`
	Slug        string `gorm:"column:slug;size:200;not null;uniqueIndex" json:"slug"`
	Description string `gorm:"column:description;type:text" json:"description,omitempty"`

	Posts []Post `gorm:"foreignKey:GroupID" json:"posts,omitempty"`
}

type Comment struct {
	gorm.Model
	PostID   uint   `gorm:"column:post_id;not null;index" json:"post_id"`
	AuthorID uint   `gorm:"column:author_id;not null" json:"author_id"`
	Text     string `gorm:"column:text;type:text;not null" json:"text"`

	Author *User `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
}

// Follow is the directed "user receives author's posts" relation. The pair
// is unique at the schema level; self-follows are only rejected by the
// profile handlers, matching the original application's layering.
//
// No soft-delete column here: an unfollow must actually free the unique
// index slot so the user can follow again later.
type Follow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:idx_follow_user_author" json:"user_id"`
	AuthorID  uint      `gorm:"column:author_id;not null;uniqueIndex:idx_follow_user_author" json:"author_id"`
	CreatedAt time.Time `json:"created_at"`

	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Author *User `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
}
