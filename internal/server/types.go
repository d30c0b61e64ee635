package server

import "github.com/dreamware/statusboard/internal/inventory"

const (
	HealthPath       = "/health"
	WebSocketPath    = "/_ws"
	WebSocketAlias   = "/ws"
	UploadPath       = "/api/infrastructure/upload"
	StatePath        = "/api/infrastructure/state"
	ZoneHealthPath   = "/api/infrastructure/health"
	StatusUpdatePath = "/api/infrastructure/status"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type UploadResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Summary inventory.Summary `json:"summary"`
}
