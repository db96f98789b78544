// Package feed turns a scope (everything, one group, one author, or the
// authors a user follows) into an ordered, paginated page of posts.
package feed

import (
	"strconv"

	"github.com/AdomakoJ/Inkwell-server/cmd/models"
	"gorm.io/gorm"
)

const PageSize = 10

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeGroup
	scopeAuthor
	scopeFollowedBy
)

// Scope selects which posts populate a feed. Build one with All, ByGroup,
// ByAuthor or FollowedBy.
type Scope struct {
	kind     scopeKind
	slug     string
	username string
	userID   uint
}

func All() Scope {
	return Scope{kind: scopeAll}
}

func ByGroup(slug string) Scope {
	return Scope{kind: scopeGroup, slug: slug}
}

func ByAuthor(username string) Scope {
	return Scope{kind: scopeAuthor, username: username}
}

func FollowedBy(userID uint) Scope {
	return Scope{kind: scopeFollowedBy, userID: userID}
}

// Page is one slice of a feed. Number is 1-indexed.
type Page struct {
	Posts   []models.Post `json:"posts"`
	Total   int64         `json:"total"`
	Number  int           `json:"page"`
	HasMore bool          `json:"has_more"`
}

// ParsePage interprets a raw ?page= token. Anything that is not a positive
// integer falls back to page 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Compose fetches the page of posts selected by scope, newest first.
// Pages past the end are not an error: they come back empty with
// HasMore=false, the way a forgiving pager behaves.
func Compose(db *gorm.DB, scope Scope, page int) (Page, error) {
	if page < 1 {
		page = 1
	}

	query := db.Model(&models.Post{})
	switch scope.kind {
	case scopeGroup:
		query = query.
			Joins("JOIN groups ON groups.id = posts.group_id").
			Where("groups.slug = ?", scope.slug)
	case scopeAuthor:
		query = query.
			Joins("JOIN users ON users.id = posts.author_id").
			Where("users.username = ?", scope.username)
	case scopeFollowedBy:
		query = query.Where(
			"posts.author_id IN (?)",
			db.Model(&models.Follow{}).Select("author_id").Where("user_id = ?", scope.userID),
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return Page{}, err
	}

	// Answer past-the-end pages before computing an offset: arbitrarily
	// large page tokens must not overflow into a negative offset and leak
	// page 1's posts.
	lastPage := int((total + PageSize - 1) / PageSize)
	if page > lastPage {
		return Page{Total: total, Number: page, HasMore: false}, nil
	}

	var posts []models.Post
	err := query.
		Preload("Author").
		Preload("Group").
		Order("posts.created_at DESC, posts.id DESC").
		Offset((page - 1) * PageSize).
		Limit(PageSize).
		Find(&posts).Error
	if err != nil {
		return Page{}, err
	}

	return Page{
		Posts:   posts,
		Total:   total,
		Number:  page,
		HasMore: int64(page)*PageSize < total,
	}, nil
}
