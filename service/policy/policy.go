// Package policy holds the pure authorization decisions: who may edit a
// post and who may follow whom. Handlers ask here before mutating; the
// package itself never writes.
package policy

import (
	"github.com/AdomakoJ/Inkwell-server/cmd/models"
	"gorm.io/gorm"
)

// CanEdit reports whether the viewer owns the post. Non-owners are not an
// error case: callers soft-fail by redirecting to the author's profile.
func CanEdit(viewerID uint, post *models.Post) bool {
	if post == nil {
		return false
	}
	return viewerID == post.AuthorID
}

// IsFollowing reports whether user already follows author.
func IsFollowing(db *gorm.DB, userID, authorID uint) (bool, error) {
	var count int64
	err := db.Model(&models.Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CanFollow is false when the user already follows the author or when the
// target is the user themselves. Self-follow is rejected only here, not by
// the schema.
func CanFollow(db *gorm.DB, userID, authorID uint) (bool, error) {
	if userID == authorID {
		return false, nil
	}
	following, err := IsFollowing(db, userID, authorID)
	if err != nil {
		return false, err
	}
	return !following, nil
}
