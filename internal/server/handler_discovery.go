package server

import (
	"net/http"

	"github.com/kcajmagic/COSC-NACHOS/pkg/model"
)

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "nachos trace API",
		Version:     "v1",
		Description: "Recorded kernel self-test runs and their thread events",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET"}, "List runs, newest first. Filters: ?scenario=, ?state=, ?limit=, ?offset="},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Thread lifecycle events of a run in order"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("route", r.URL.Path))
}
