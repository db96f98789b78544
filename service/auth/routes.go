package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/AdomakoJ/Inkwell-server/cmd/models"
	"github.com/AdomakoJ/Inkwell-server/cmd/utils"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes mounts the auth endpoints on the /auth subrouter.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/signup/", h.HandleSignup).Methods("POST")
	router.HandleFunc("/login/", h.HandleLogin).Methods("GET", "POST")
}

// HandleSignup registers a new user.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var signupRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&signupRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}
	if signupRequest.Username == "" || signupRequest.Email == "" || signupRequest.Password == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	var existingUser models.User
	result := h.db.Where("username = ? OR email = ?", signupRequest.Username, signupRequest.Email).First(&existingUser)
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		var errorMessage string
		if existingUser.Username == signupRequest.Username {
			errorMessage = "Username is already in use"
		} else {
			errorMessage = "Email is already in use"
		}
		log.Printf("Signup attempt with duplicate %s", errorMessage)
		http.Error(w, errorMessage, http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(signupRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	user := models.User{
		Username:     signupRequest.Username,
		Email:        signupRequest.Email,
		PasswordHash: string(passwordHash),
		FullName:     signupRequest.FullName,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint") {
			http.Error(w, "Username or email is already in use", http.StatusConflict)
			return
		}
		http.Error(w, "Error registering user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// HandleLogin verifies credentials and issues a session token, both in the
// response body and as a cookie so redirect-driven clients stay signed in.
// When the request carries a next parameter the response is a redirect
// back to it.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "Login required",
			"next":    r.URL.Query().Get("next"),
		})
		return
	}

	var loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("username = ?", loginRequest.Username).First(&user).Error; err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := utils.NewToken(user.ID, user.Username, tokenTTL)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     utils.SessionCookie,
		Value:    accessToken,
		Path:     "/",
		Expires:  time.Now().Add(tokenTTL),
		HttpOnly: true,
	})

	if next := r.URL.Query().Get("next"); next != "" && strings.HasPrefix(next, "/") {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Login successful",
		"access_token": accessToken,
		"user_id":      user.ID,
		"username":     user.Username,
	})
}
