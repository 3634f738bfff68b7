package api

import (
	"net/http"
	"strings"

	"rescue-link/internal/shared/middleware"
	"rescue-link/internal/shared/util"
)

func (h *Handler) RegisterRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/requests", middleware.RequestID(AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			util.WriteJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.CreateRequestHandler(w, r)
	}))))

	mux.Handle("/requests/", middleware.RequestID(AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(parts) == 2 && parts[1] == "active" && r.Method == http.MethodGet:
			h.ActiveRequestsHandler(w, r)
		case len(parts) == 3 && parts[2] == "cancel" && r.Method == http.MethodPost:
			h.CancelRequestHandler(w, r)
		case len(parts) == 2 && r.Method == http.MethodGet:
			h.RequestDetailHandler(w, r)
		default:
			util.WriteJSONError(w, "not found", http.StatusNotFound)
		}
	}))))

	mux.HandleFunc("/ws", h.CivilianWSHandler)

	return mux
}
