package api

import (
	"log"
	"net/http"
	"os"

	"github.com/AdomakoJ/Inkwell-server/service/auth"
	"github.com/AdomakoJ/Inkwell-server/service/feed"
	"github.com/AdomakoJ/Inkwell-server/service/posts"
	"github.com/AdomakoJ/Inkwell-server/service/profile"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := NewRouter(s.db, feed.NewCacheFromEnv())

	corsRouter := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, handlers.LoggingHandler(os.Stdout, corsRouter))
}

// NewRouter builds the route table. Registration order matters: the fixed
// paths in the posts service must be claimed before the profile service
// registers its /{username}/ catch-alls.
func NewRouter(db *gorm.DB, cache *feed.Cache) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	authHandler := auth.NewHandler(db)
	authHandler.RegisterRoutes(router.PathPrefix("/auth").Subrouter())

	postsHandler := posts.NewHandler(db, cache)
	postsHandler.RegisterRoutes(router)

	profileHandler := profile.NewHandler(db)
	profileHandler.RegisterRoutes(router)

	return router
}
