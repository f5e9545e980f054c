package handlers

import (
	"net/http"

	"studio/internal/costs"
)

// CostsSummary reports spend over the standard windows.
func (a *App) CostsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := costs.Summarize(r.Context(), a.Jobs, a.now())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, summary)
}
