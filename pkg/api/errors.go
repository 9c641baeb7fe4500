package api

import (
	"net/http"

	"github.com/goclaw/manifest/pkg/api/middleware"
	"github.com/goclaw/manifest/pkg/api/response"
)

func notFound(w http.ResponseWriter, r *http.Request) {
	response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Route not found", middleware.GetRequestID(r.Context()))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed, "Method not allowed", middleware.GetRequestID(r.Context()))
}
