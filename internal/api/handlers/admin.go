package handlers

import (
	"net/http"
)

func (s *Server) AdminReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.Knowledge.Reload(r.Context())
	if err != nil {
		if mapServiceErr(w, err) {
			return
		}
		writeErr(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": n}, nil)
}

func (s *Server) AdminBackup(w http.ResponseWriter, r *http.Request) {
	if s.Backups == nil {
		writeErr(w, http.StatusConflict, "BACKUP_DISABLED", "backups are disabled in config")
		return
	}
	res, err := s.Backups.Run(r.Context())
	if err != nil && res.Path == "" {
		writeErr(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	data := map[string]any{"backup": res}
	if err != nil {
		data["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, data, nil)
}
