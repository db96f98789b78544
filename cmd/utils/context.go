package utils

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const IdentityKey contextKey = "identity"

const SessionCookie = "session"

// LoginPath is where unauthenticated mutation attempts get redirected,
// carrying the original path in ?next=.
const LoginPath = "/auth/login/"

// Identity is the authenticated viewer, passed explicitly to handlers
// through the request context.
type Identity struct {
	UserID   uint
	Username string
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewToken issues a signed session token for the given user.
func NewToken(userID uint, username string, ttl time.Duration) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}

// IdentityFromRequest resolves the viewer from the Authorization header or
// the session cookie. The second return is false for anonymous requests.
func IdentityFromRequest(r *http.Request) (Identity, bool) {
	tokenString := ""
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString = strings.Replace(authHeader, "Bearer ", "", 1)
	} else if cookie, err := r.Cookie(SessionCookie); err == nil {
		tokenString = cookie.Value
	}
	if tokenString == "" {
		return Identity{}, false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(os.Getenv("SECRET_KEY")), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, false
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, false
	}
	return Identity{UserID: uint(userID), Username: claims.Username}, true
}

func IdentityFromContext(ctx context.Context) (Identity, error) {
	identity, ok := ctx.Value(IdentityKey).(Identity)
	if !ok {
		return Identity{}, errors.New("identity not found in context")
	}
	return identity, nil
}

// RequireAuth guards a handler. Anonymous requests are redirected to the
// login page with a next parameter pointing back at the original path; no
// error page is rendered.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromRequest(r)
		if !ok {
			http.Redirect(w, r, LoginPath+"?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), IdentityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
