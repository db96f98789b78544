package posts_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/AdomakoJ/Inkwell-server/cmd/api"
	"github.com/AdomakoJ/Inkwell-server/cmd/models"
	"github.com/AdomakoJ/Inkwell-server/cmd/utils"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *mux.Router) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Group{}, &models.Post{}, &models.Comment{}, &models.Follow{},
	))
	return db, api.NewRouter(db, nil)
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createPost(t *testing.T, db *gorm.DB, author *models.User, text string, groupID *uint, createdAt time.Time) *models.Post {
	t.Helper()
	post := models.Post{
		Text:     text,
		AuthorID: author.ID,
		GroupID:  groupID,
		Model:    gorm.Model{CreatedAt: createdAt},
	}
	require.NoError(t, db.Create(&post).Error)
	return &post
}

func sessionCookie(t *testing.T, user *models.User) *http.Cookie {
	t.Helper()
	token, err := utils.NewToken(user.ID, user.Username, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: utils.SessionCookie, Value: token}
}

func postForm(t *testing.T, router *mux.Router, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router *mux.Router, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type pageResponse struct {
	Posts []struct {
		ID   uint   `json:"ID"`
		Text string `json:"text"`
	} `json:"posts"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	HasMore bool  `json:"has_more"`
}

func TestCreatePostRequiresAuth(t *testing.T) {
	db, router := setup(t)

	rec := postForm(t, router, "/new/", url.Values{"text": {"hello"}}, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login/?next=%2Fnew%2F", rec.Header().Get("Location"))

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCreatePost(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")

	rec := postForm(t, router, "/new/", url.Values{"text": {"hello"}}, sessionCookie(t, author))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	var post models.Post
	require.NoError(t, db.First(&post).Error)
	assert.Equal(t, "hello", post.Text)
	assert.Equal(t, author.ID, post.AuthorID)
	assert.Nil(t, post.GroupID)
}

func TestCreatePostWithGroup(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	group := models.Group{Title: "Poetry", Slug: "poetry"}
	require.NoError(t, db.Create(&group).Error)

	rec := postForm(t, router, "/new/", url.Values{
		"text":  {"a grouped post"},
		"group": {"1"},
	}, sessionCookie(t, author))

	assert.Equal(t, http.StatusFound, rec.Code)

	var post models.Post
	require.NoError(t, db.First(&post).Error)
	require.NotNil(t, post.GroupID)
	assert.Equal(t, group.ID, *post.GroupID)
}

func TestCreatePostRequiresText(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")

	rec := postForm(t, router, "/new/", url.Values{"text": {"   "}}, sessionCookie(t, author))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Errors, "text")

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestIndexPagination(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 13; i++ {
		createPost(t, db, author, "post", nil, base.Add(time.Duration(i)*time.Minute))
	}

	rec := get(t, router, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page1 pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page1))
	assert.Len(t, page1.Posts, 10)
	assert.Equal(t, int64(13), page1.Total)
	assert.True(t, page1.HasMore)

	rec = get(t, router, "/?page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page2 pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page2))
	assert.Len(t, page2.Posts, 3)
	assert.False(t, page2.HasMore)

	rec = get(t, router, "/?page=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page3 pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page3))
	assert.Empty(t, page3.Posts)
	assert.False(t, page3.HasMore)

	// Garbage page tokens fall back to page 1.
	rec = get(t, router, "/?page=banana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fallback pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fallback))
	assert.Equal(t, 1, fallback.Page)
	assert.Len(t, fallback.Posts, 10)
}

func TestGroupFeed(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	group := models.Group{Title: "Poetry", Slug: "poetry"}
	require.NoError(t, db.Create(&group).Error)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createPost(t, db, author, "in group", &group.ID, base)
	createPost(t, db, author, "outside", nil, base.Add(time.Minute))

	rec := get(t, router, "/group/poetry/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Posts, 1)
	assert.Equal(t, "in group", page.Posts[0].Text)

	rec = get(t, router, "/group/missing/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFollowFeed(t *testing.T) {
	db, router := setup(t)
	reader := createUser(t, db, "reader")
	writer := createUser(t, db, "writer")
	lurker := createUser(t, db, "lurker")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createPost(t, db, writer, "followed content", nil, base)
	require.NoError(t, db.Create(&models.Follow{UserID: reader.ID, AuthorID: writer.ID}).Error)

	rec := get(t, router, "/follow/", sessionCookie(t, reader))
	require.Equal(t, http.StatusOK, rec.Code)
	var page pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "followed content", page.Posts[0].Text)

	// A non-follower's feed stays empty.
	rec = get(t, router, "/follow/", sessionCookie(t, lurker))
	require.Equal(t, http.StatusOK, rec.Code)
	var empty pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Empty(t, empty.Posts)

	// Anonymous viewers are sent to login instead.
	rec = get(t, router, "/follow/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login/?next=%2Ffollow%2F", rec.Header().Get("Location"))
}

func TestViewPost(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	post := createPost(t, db, author, "readable", nil, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	comment := models.Comment{PostID: post.ID, AuthorID: author.ID, Text: "nice"}
	require.NoError(t, db.Create(&comment).Error)

	rec := get(t, router, "/leo/1/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Post struct {
			Text string `json:"text"`
		} `json:"post"`
		Comments []struct {
			Text string `json:"text"`
		} `json:"comments"`
		NumPosts int64 `json:"num_posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "readable", body.Post.Text)
	require.Len(t, body.Comments, 1)
	assert.Equal(t, "nice", body.Comments[0].Text)
	assert.Equal(t, int64(1), body.NumPosts)
}

func TestViewPostNotFound(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	createUser(t, db, "maya")
	createPost(t, db, author, "mine", nil, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	// Unknown id.
	rec := get(t, router, "/leo/99/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Existing id under the wrong author.
	rec = get(t, router, "/maya/1/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddComment(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	commenter := createUser(t, db, "maya")
	post := createPost(t, db, author, "discuss", nil, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	rec := postForm(t, router, "/leo/1/comment/", url.Values{"text": {"well said"}}, sessionCookie(t, commenter))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/leo/1/", rec.Header().Get("Location"))

	var comment models.Comment
	require.NoError(t, db.First(&comment).Error)
	assert.Equal(t, post.ID, comment.PostID)
	assert.Equal(t, commenter.ID, comment.AuthorID)
	assert.Equal(t, "well said", comment.Text)
}

func TestAddCommentViaPostRoute(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	createPost(t, db, author, "discuss", nil, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	// POSTing the detail route itself adds the comment.
	rec := postForm(t, router, "/leo/1/", url.Values{"text": {"inline"}}, sessionCookie(t, author))

	assert.Equal(t, http.StatusFound, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAddCommentAnonymous(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	createPost(t, db, author, "discuss", nil, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	rec := postForm(t, router, "/leo/1/comment/", url.Values{"text": {"drive-by"}}, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/auth/login/")

	var count int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestEditPostByAuthor(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	group := models.Group{Title: "Poetry", Slug: "poetry"}
	require.NoError(t, db.Create(&group).Error)
	post := createPost(t, db, author, "g", &group.ID, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	// The form omits the group, so the edit clears it.
	rec := postForm(t, router, "/leo/1/edit/", url.Values{"text": {"ga"}}, sessionCookie(t, author))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/leo/1/", rec.Header().Get("Location"))

	var updated models.Post
	require.NoError(t, db.First(&updated, post.ID).Error)
	assert.Equal(t, "ga", updated.Text)
	assert.Nil(t, updated.GroupID)
	assert.WithinDuration(t, post.CreatedAt, updated.CreatedAt, time.Second)
}

func TestEditPostByOtherUser(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	intruder := createUser(t, db, "maya")
	group := models.Group{Title: "Poetry", Slug: "poetry"}
	require.NoError(t, db.Create(&group).Error)
	post := createPost(t, db, author, "g", &group.ID, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	rec := postForm(t, router, "/leo/1/edit/", url.Values{"text": {"ga"}}, sessionCookie(t, intruder))

	// Soft-forbidden: bounced to the author's profile, nothing written.
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/leo/", rec.Header().Get("Location"))

	var unchanged models.Post
	require.NoError(t, db.First(&unchanged, post.ID).Error)
	assert.Equal(t, "g", unchanged.Text)
	require.NotNil(t, unchanged.GroupID)
	assert.Equal(t, group.ID, *unchanged.GroupID)
}

func TestEditPostAnonymous(t *testing.T) {
	db, router := setup(t)
	author := createUser(t, db, "leo")
	post := createPost(t, db, author, "g", nil, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	rec := postForm(t, router, "/leo/1/edit/", url.Values{"text": {"ga"}}, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/auth/login/")

	var unchanged models.Post
	require.NoError(t, db.First(&unchanged, post.ID).Error)
	assert.Equal(t, "g", unchanged.Text)
}
