package handler

import (
	"net/http"
)

// HealthHandler handles liveness and demo endpoints.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
}

// Demo is a Bearer-protected hello endpoint, useful for smoke-testing issued
// access tokens end to end.
func (h *HealthHandler) Demo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Hello World!"})
}
