package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/storage"
)

// JobQueue is the slice of the scheduler the handlers need.
type JobQueue interface {
	Add(jobID string)
	Cancel(jobID string)
	Stats() (pending, running int)
}

// App bundles the dependencies shared by all handlers.
type App struct {
	Jobs    domain.JobRepository
	Girls   domain.GirlRepository
	Library domain.LibraryRepository
	Queue   JobQueue
	Store   *storage.FileStore
	Logger  infra.Logger
	Now     func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}

// fail maps domain errors onto HTTP status codes.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: request failed")
		a.error(w, http.StatusInternalServerError, "internal error")
	}
}
