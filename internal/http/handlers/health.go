package handlers

import "net/http"

// Health reports liveness plus queue depth.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	pending, running := a.Queue.Stats()
	a.json(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": pending,
		"running": running,
	})
}
