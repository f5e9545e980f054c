package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studio/internal/domain"
)

type girlResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	ContextAssets domain.ContextAssets `json:"contextAssets"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func serializeGirl(girl *domain.Girl) girlResponse {
	return girlResponse{
		ID:            girl.ID,
		Name:          girl.Name,
		ContextAssets: girl.ContextAssets,
		CreatedAt:     girl.CreatedAt,
	}
}

// ListGirls returns all girls.
func (a *App) ListGirls(w http.ResponseWriter, r *http.Request) {
	girls, err := a.Girls.List(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]girlResponse, len(girls))
	for i := range girls {
		out[i] = serializeGirl(&girls[i])
	}
	a.json(w, http.StatusOK, map[string]any{"girls": out})
}

// CreateGirl creates a girl with empty context assets.
func (a *App) CreateGirl(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		a.error(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	girl := &domain.Girl{
		ID:            uuid.NewString(),
		Name:          name,
		ContextAssets: domain.EmptyContextAssets(),
		CreatedAt:     a.now(),
	}
	if err := a.Girls.Create(r.Context(), girl); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusCreated, serializeGirl(girl))
}

// GetGirl returns one girl.
func (a *App) GetGirl(w http.ResponseWriter, r *http.Request) {
	girl, err := a.Girls.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, serializeGirl(girl))
}

// DeleteGirl removes a girl.
func (a *App) DeleteGirl(w http.ResponseWriter, r *http.Request) {
	if err := a.Girls.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetContextAssets returns a girl's context-asset map.
func (a *App) GetContextAssets(w http.ResponseWriter, r *http.Request) {
	girl, err := a.Girls.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"contextAssets": girl.ContextAssets})
}

// PutContextAsset merge-patches one slot of a girl's context assets. Omitted
// fields keep their value; explicit empty strings clear.
func (a *App) PutContextAsset(w http.ResponseWriter, r *http.Request) {
	slotName := chi.URLParam(r, "slot")
	if !domain.ValidContextSlot(slotName) {
		a.error(w, http.StatusNotFound, "unknown context slot")
		return
	}
	slot := domain.ContextSlot(slotName)

	var body struct {
		ImageID     *string `json:"imageId"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	girl, err := a.Girls.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}

	assets := girl.ContextAssets
	assets[slot] = domain.MergeContextAsset(assets[slot], body.ImageID, body.Description)
	if err := a.Girls.UpdateContextAssets(r.Context(), girl.ID, assets); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"contextAssets": assets})
}

// DeleteContextAsset empties one slot.
func (a *App) DeleteContextAsset(w http.ResponseWriter, r *http.Request) {
	slotName := chi.URLParam(r, "slot")
	if !domain.ValidContextSlot(slotName) {
		a.error(w, http.StatusNotFound, "unknown context slot")
		return
	}

	girl, err := a.Girls.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}

	assets := girl.ContextAssets
	assets[domain.ContextSlot(slotName)] = domain.ContextAsset{}
	if err := a.Girls.UpdateContextAssets(r.Context(), girl.ID, assets); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
