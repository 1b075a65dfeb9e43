package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/engram/internal/knowledgeservice"
	"github.com/starford/engram/internal/models"
)

// HeadPublisher is notified after an operation moves HEAD.
type HeadPublisher interface {
	PublishHead(op string, head models.Head)
}

// RouterConfig carries the optional parts of the router.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Publisher, if non-nil, receives head.updated notifications.
	Publisher HeadPublisher
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *knowledgeservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.Publisher)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Route("/vcs", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/log", h.Log)
		r.Get("/show/{ref}", h.Show)
		r.Get("/diff", h.Diff)
		r.Get("/branches", h.ListBranches)
		r.Post("/branches", h.CreateBranch)
		r.Delete("/branches/{name}", h.DeleteBranch)
		r.Post("/stage", h.Stage)
		r.Post("/commit", h.Commit)
		r.Post("/checkout", h.Checkout)
	})

	r.Get("/blocks", h.ListBlocks)
	r.Post("/blocks", h.AppendBlock)
	r.Get("/blocks/{category}/{sessionID}", h.GetBlock)

	r.Get("/search", h.Search)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
