package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/AdomakoJ/Inkwell-server/cmd/models"
	"github.com/AdomakoJ/Inkwell-server/cmd/utils"
	"github.com/AdomakoJ/Inkwell-server/service/feed"
	"github.com/AdomakoJ/Inkwell-server/service/policy"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes wires the profile routes. Must run after the posts
// service so its fixed paths win over /{username}/.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/{username}/follow/", utils.RequireAuth(h.Follow)).Methods("GET")
	router.HandleFunc("/{username}/unfollow/", utils.RequireAuth(h.Unfollow)).Methods("GET")
	router.HandleFunc("/{username}/", h.Profile).Methods("GET")
}

// Profile serves an author's page: their paginated posts plus whether the
// viewer (if any) follows them.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	author, ok := h.loadAuthor(w, r)
	if !ok {
		return
	}

	page, err := feed.Compose(h.db, feed.ByAuthor(author.Username), feed.ParsePage(r.URL.Query().Get("page")))
	if err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	following := false
	if identity, authed := utils.IdentityFromRequest(r); authed {
		following, err = policy.IsFollowing(h.db, identity.UserID, author.ID)
		if err != nil {
			log.Println("database error occurred", err)
			http.Error(w, "Error retrieving follow state", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"author":      author,
		"following":   following,
		"num_posts":   page.Total,
		"posts":       page.Posts,
		"total":       page.Total,
		"page":        page.Number,
		"page_size":   feed.PageSize,
		"total_pages": (page.Total + feed.PageSize - 1) / feed.PageSize,
		"has_more":    page.HasMore,
	})
}

// Follow creates the follow relation. Already-following and self-follow
// are no-ops that still redirect to the profile. A racing duplicate create
// is swallowed: the unique index keeps the second row out.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	author, ok := h.loadAuthor(w, r)
	if !ok {
		return
	}
	identity, err := utils.IdentityFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	profileURL := fmt.Sprintf("/%s/", author.Username)

	allowed, err := policy.CanFollow(h.db, identity.UserID, author.ID)
	if err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving follow state", http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Redirect(w, r, profileURL, http.StatusFound)
		return
	}

	follow := models.Follow{UserID: identity.UserID, AuthorID: author.ID}
	if err := h.db.Create(&follow).Error; err != nil {
		if !isDuplicateKey(err) {
			log.Println("database error occurred", err)
			http.Error(w, "Error creating follow", http.StatusInternalServerError)
			return
		}
		// Lost a race against an identical follow; the relation exists,
		// which is all the caller asked for.
	}
	http.Redirect(w, r, profileURL, http.StatusFound)
}

// Unfollow deletes the follow relation, or 404s when there is none.
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	author, ok := h.loadAuthor(w, r)
	if !ok {
		return
	}
	identity, err := utils.IdentityFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var follow models.Follow
	err = h.db.Where("user_id = ? AND author_id = ?", identity.UserID, author.ID).First(&follow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Follow not found", http.StatusNotFound)
			return
		}
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving follow", http.StatusInternalServerError)
		return
	}

	if err := h.db.Delete(&follow).Error; err != nil {
		log.Println("database error occurred", err)
		http.Error(w, "Error deleting follow", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/%s/", author.Username), http.StatusFound)
}

func (h *Handler) loadAuthor(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	username := mux.Vars(r)["username"]

	var author models.User
	if err := h.db.Where("username = ?", username).First(&author).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Author not found", http.StatusNotFound)
			return nil, false
		}
		log.Println("database error occurred", err)
		http.Error(w, "Error retrieving author", http.StatusInternalServerError)
		return nil, false
	}
	return &author, true
}

func isDuplicateKey(err error) bool {
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "UNIQUE constraint")
}
