package handlers

import (
	"net/http"

	"lookupbot/internal/backup"
	"lookupbot/internal/config"
	"lookupbot/internal/knowledge"
	"lookupbot/internal/storage"
)

type Server struct {
	Knowledge *knowledge.Service
	// Backups is nil when snapshots are disabled.
	Backups *backup.Snapshotter
	Config  config.Config
}

func New(svc *knowledge.Service, backups *backup.Snapshotter, cfg config.Config) *Server {
	return &Server{
		Knowledge: svc,
		Backups:   backups,
		Config:    cfg,
	}
}

// KeepAlive answers uptime probes from the hosting platform.
func (s *Server) KeepAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Bot is running!"))
}

func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	data := map[string]any{
		"status":  "ok",
		"entries": s.Knowledge.Len(),
		"backend": storage.Describe(s.Config),
	}
	if err := s.Knowledge.PersistErr(); err != nil {
		data["status"] = "degraded"
		data["persist_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, data, nil)
}
