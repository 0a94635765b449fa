package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"studio/internal/gateway"
	"studio/internal/infra"
	"studio/internal/store"
)

// Gateway is the slice of the backend client the handlers depend on.
type Gateway interface {
	Submit(ctx context.Context, req gateway.SubmitRequest) (string, error)
	Fetch(ctx context.Context, ref string) (*gateway.Artifact, error)
}

// Tracker is the slice of the polling engine the handlers depend on.
type Tracker interface {
	Track(id string)
	Untrack(id string)
}

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Store   *store.Store
	Gateway Gateway
	Poller  Tracker
	Logger  infra.Logger
}

func NewApp(st *store.Store, gw Gateway, tracker Tracker, logger infra.Logger) *App {
	return &App{Store: st, Gateway: gw, Poller: tracker, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
