package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"lookupbot/internal/api/handlers"
	apimw "lookupbot/internal/api/middleware"
	ws "lookupbot/internal/api/websocket"
)

func NewRouter(server *handlers.Server, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(apimw.Logging)

	r.Get("/", server.KeepAlive)
	r.Head("/", server.KeepAlive)
	r.Get("/healthz", server.Health)

	limiter := apimw.NewRateLimiter(server.Config.API.RateLimitPerMinute, server.Config.API.RateLimitBurst)
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/ws", hub.ServeWS)
		api.Get("/admin/health", server.Health)

		api.Group(func(limited chi.Router) {
			limited.Use(limiter.Middleware)

			// Entries
			limited.Get("/entries", server.ListEntries)
			limited.Post("/entries", server.CreateEntry)
			limited.Put("/entries/{keys}", server.EditEntry)
			limited.Delete("/entries/{keys}", server.DeleteEntries)
			limited.Get("/match", server.Match)

			// Admin
			limited.Post("/admin/reload", server.AdminReload)
			limited.Post("/admin/backup", server.AdminBackup)
		})
	})

	return r
}
