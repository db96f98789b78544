package posts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/AdomakoJ/Inkwell-server/cmd/models"
	"github.com/AdomakoJ/Inkwell-server/cmd/utils"
	"github.com/AdomakoJ/Inkwell-server/service/feed"
	"github.com/AdomakoJ/Inkwell-server/service/policy"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db    *gorm.DB
	cache *feed.Cache
}

func NewHandler(db *gorm.DB, cache *feed.Cache) *Handler {
	return &Handler{db: db, cache: cache}
}

// RegisterRoutes wires the feed and post routes. The fixed paths must be
// registered before the profile service claims /{username}/.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/group/{slug}/", h.GroupPosts).Methods("GET")
	router.HandleFunc("/new/", utils.RequireAuth(h.NewPostForm)).Methods("GET")
	router.HandleFunc("/new/", utils.RequireAuth(h.CreatePost)).Methods("POST")
	router.HandleFunc("/follow/", utils.RequireAuth(h.FollowIndex)).Methods("GET")

	// Post detail doubles as the comment endpoint on POST, same as the
	// original route scheme.
	router.HandleFunc("/{username}/{post_id:[0-9]+}/", h.ViewPost).Methods("GET")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/", utils.RequireAuth(h.AddComment)).Methods("POST")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/comment/", utils.RequireAuth(h.AddComment)).Methods("POST")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/edit/", utils.RequireAuth(h.EditPost)).Methods("GET", "POST")
}

// Index serves the global feed. Page 1 is answered from the cache when one
// is configured.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	pageNumber := feed.ParsePage(r.URL.Query().Get("page"))

	if pageNumber == 1 {
		cached, err := h.cache.FrontPage(r.Context())
		if err != nil {
			log.Println("feed cache read failed", err)
		}
		if cached != nil {
			writePage(w, *cached, nil)
			return
		}
	}

	page, err := feed.Compose(h.db, feed.All(), pageNumber)
	if err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	if pageNumber == 1 {
		if err := h.cache.SetFrontPage(r.Context(), page); err != nil {
			log.Println("feed cache write failed", err)
		}
	}
	writePage(w, page, nil)
}

// GroupPosts serves the feed scoped to one group, resolved by slug.
func (h *Handler) GroupPosts(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var group models.Group
	if err := h.db.Where("slug = ?", slug).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Group not found", http.StatusNotFound)
			return
		}
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving group", http.StatusInternalServerError)
		return
	}

	page, err := feed.Compose(h.db, feed.ByGroup(slug), feed.ParsePage(r.URL.Query().Get("page")))
	if err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}
	writePage(w, page, map[string]interface{}{"group": group})
}

// FollowIndex serves the feed of posts by authors the viewer follows.
// Zero follows is a valid, empty feed.
func (h *Handler) FollowIndex(w http.ResponseWriter, r *http.Request) {
	identity, err := utils.IdentityFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, err := feed.Compose(h.db, feed.FollowedBy(identity.UserID), feed.ParsePage(r.URL.Query().Get("page")))
	if err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}
	writePage(w, page, nil)
}

// NewPostForm returns the form choices for post creation.
func (h *Handler) NewPostForm(w http.ResponseWriter, r *http.Request) {
	var groups []models.Group
	if err := h.db.Order("title").Find(&groups).Error; err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving groups", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"groups": groups})
}

// CreatePost creates a post for the authenticated viewer. Text is
// mandatory; group and image are optional.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	identity, err := utils.IdentityFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fields, fieldErrs, err := h.parsePostForm(r)
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	if len(fieldErrs) > 0 {
		writeFieldErrors(w, fieldErrs)
		return
	}

	post := models.Post{
		Text:      fields.text,
		AuthorID:  identity.UserID,
		GroupID:   fields.groupID,
		ImagePath: fields.imagePath,
	}
	if err := h.db.Create(&post).Error; err != nil {
		if fields.imagePath != "" {
			utils.DeleteImage(fields.imagePath)
		}
		log.Println("database error occurred", err)
		http.Error(w, "Error creating post", http.StatusInternalServerError)
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		log.Println("feed cache invalidation failed", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// ViewPost renders one post with its comments, newest comment first.
func (h *Handler) ViewPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadPost(w, r)
	if !ok {
		return
	}

	var comments []models.Comment
	err := h.db.Where("post_id = ?", post.ID).
		Preload("Author").
		Order("created_at DESC, id DESC").
		Find(&comments).Error
	if err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving comments", http.StatusInternalServerError)
		return
	}

	var numPosts int64
	if err := h.db.Model(&models.Post{}).Where("author_id = ?", post.AuthorID).Count(&numPosts).Error; err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"post":      post,
		"comments":  comments,
		"author":    post.Author,
		"num_posts": numPosts,
	})
}

// AddComment attaches a comment by the authenticated viewer to the post.
// An empty comment creates nothing; either way the caller is sent back to
// the post page.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadPost(w, r)
	if !ok {
		return
	}
	identity, err := utils.IdentityFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	postURL := fmt.Sprintf("/%s/%d/", mux.Vars(r)["username"], post.ID)

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		http.Redirect(w, r, postURL, http.StatusFound)
		return
	}

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: identity.UserID,
		Text:     text,
	}
	if err := h.db.Create(&comment).Error; err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error creating comment", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, postURL, http.StatusFound)
}

// EditPost lets the post's author change text, group and image. Anyone
// else gets bounced to the author's profile with nothing written.
func (h *Handler) EditPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.loadPost(w, r)
	if !ok {
		return
	}
	identity, err := utils.IdentityFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	username := mux.Vars(r)["username"]
	if !policy.CanEdit(identity.UserID, post) {
		http.Redirect(w, r, fmt.Sprintf("/%s/", username), http.StatusFound)
		return
	}

	if r.Method == http.MethodGet {
		var groups []models.Group
		if err := h.db.Order("title").Find(&groups).Error; err != nil {
			log.Println("database error occurred", err)
			http.Error(w, "Error retrieving groups", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"post": post, "groups": groups})
		return
	}

	fields, fieldErrs, err := h.parsePostForm(r)
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	if len(fieldErrs) > 0 {
		writeFieldErrors(w, fieldErrs)
		return
	}

	oldImage := post.ImagePath
	post.Text = fields.text
	// An edit form that omits the group clears it.
	post.GroupID = fields.groupID
	if fields.imagePath != "" {
		post.ImagePath = fields.imagePath
	}

	if err := h.db.Save(post).Error; err != nil {
		if fields.imagePath != "" {
			utils.DeleteImage(fields.imagePath)
		}
		log.Println("database error occurred", err)
		http.Error(w, "Error updating post", http.StatusInternalServerError)
		return
	}
	if fields.imagePath != "" && oldImage != "" {
		utils.DeleteImage(oldImage)
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		log.Println("feed cache invalidation failed", err)
	}
	http.Redirect(w, r, fmt.Sprintf("/%s/%d/", username, post.ID), http.StatusFound)
}

// loadPost resolves /{username}/{post_id}/ to a post authored by that
// username, writing a 404 when either half does not match.
func (h *Handler) loadPost(w http.ResponseWriter, r *http.Request) (*models.Post, bool) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["post_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return nil, false
	}

	var post models.Post
	err = h.db.
		Joins("JOIN users ON users.id = posts.author_id").
		Where("posts.id = ? AND users.username = ?", postID, vars["username"]).
		Preload("Author").
		Preload("Group").
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
			return nil, false
		}
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving post", http.StatusInternalServerError)
		return nil, false
	}
	return &post, true
}

type postFormFields struct {
	text      string
	groupID   *uint
	imagePath string
}

// parsePostForm reads the shared create/edit form: text (required), group
// (optional group id) and image (optional upload). Field problems come
// back in the map, transport problems in the error.
func (h *Handler) parsePostForm(r *http.Request) (postFormFields, map[string]string, error) {
	if err := r.ParseMultipartForm(utils.MaxImageSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return postFormFields{}, nil, err
	}

	fieldErrs := make(map[string]string)
	fields := postFormFields{text: strings.TrimSpace(r.FormValue("text"))}
	if fields.text == "" {
		fieldErrs["text"] = "This field is required"
	}

	if raw := r.FormValue("group"); raw != "" {
		groupID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			fieldErrs["group"] = "Invalid group"
		} else {
			var group models.Group
			if err := h.db.First(&group, groupID).Error; err != nil {
				fieldErrs["group"] = "Unknown group"
			} else {
				fields.groupID = &group.ID
			}
		}
	}

	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		imagePath, err := utils.SaveImage(file, header)
		if err != nil {
			fieldErrs["image"] = err.Error()
		} else {
			fields.imagePath = imagePath
		}
	}

	return fields, fieldErrs, nil
}

func writeFieldErrors(w http.ResponseWriter, fieldErrs map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{"errors": fieldErrs})
}

func writePage(w http.ResponseWriter, page feed.Page, extra map[string]interface{}) {
	body := map[string]interface{}{
		"posts":       page.Posts,
		"total":       page.Total,
		"page":        page.Number,
		"page_size":   feed.PageSize,
		"total_pages": (page.Total + feed.PageSize - 1) / feed.PageSize,
		"has_more":    page.HasMore,
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
