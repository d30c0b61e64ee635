package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dreamware/statusboard/internal/hub"
	"github.com/dreamware/statusboard/internal/ingest"
	"github.com/dreamware/statusboard/internal/inventory"
	"github.com/dreamware/statusboard/internal/metrics"
	"github.com/dreamware/statusboard/internal/storage"
)

type Handler struct {
	log      *slog.Logger
	cfg      Config
	store    *storage.Store
	ingestor *ingest.Ingestor
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}

func NewHandler(log *slog.Logger, cfg Config) (*Handler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("handler config validation failed: %w", err)
	}

	hb, err := hub.New(hub.Config{Store: cfg.Store, Logger: log, Clock: cfg.Clock})
	if err != nil {
		return nil, err
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		store:    cfg.Store,
		ingestor: cfg.Ingestor,
		hub:      hb,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h, nil
}

// Hub returns the hub serving this handler's WebSocket peers.
func (h *Handler) Hub() *hub.Hub { return h.hub }

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(HealthPath, h.healthHandler)
	mux.HandleFunc(WebSocketPath, h.wsHandler)
	mux.HandleFunc(WebSocketAlias, h.wsHandler)
	mux.HandleFunc(UploadPath, h.uploadHandler)
	mux.HandleFunc(StatePath, h.stateHandler)
	mux.HandleFunc(ZoneHealthPath, h.zoneHealthHandler)
	mux.HandleFunc(StatusUpdatePath, h.statusHandler)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.CheckOrigin == nil {
		return true
	}
	return h.cfg.CheckOrigin(r.Header.Get("Origin"))
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"peers":  h.hub.Peers().Len(),
	})
}

// uploadHandler replaces the inventory with an uploaded YAML document and
// pushes the new snapshot to every peer. Nothing is replaced unless the
// document parses, validates and transforms.
func (h *Handler) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	data, status, err := h.readYAMLPart(r)
	if err != nil {
		h.log.Warn("upload rejected", "status", status, "error", err)
		h.writeJSONError(w, status, err.Error())
		metrics.UploadRequestsTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return
	}

	doc, err := ingest.Parse(data)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Invalid YAML structure: "+err.Error())
		metrics.UploadRequestsTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return
	}
	if problems := ingest.Validate(doc); len(problems) > 0 {
		h.writeJSONError(w, http.StatusBadRequest, "Configuration validation failed: "+strings.Join(problems, ", "))
		metrics.UploadRequestsTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return
	}
	state, err := h.ingestor.Transform(doc)
	if err != nil {
		h.log.Error("failed to transform configuration", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to transform configuration: "+err.Error())
		metrics.UploadRequestsTotal.WithLabelValues(metrics.ResultError).Inc()
		return
	}

	h.log.Info("updating inventory from upload", "name", doc.Metadata.Name, "version", doc.Metadata.Version)
	h.store.ReplaceState(state)
	h.hub.BroadcastSnapshot()

	summary := state.Summary()
	metrics.SetInventory(summary.Capabilities, summary.Zones, summary.Servers, summary.Relationships)
	metrics.UploadRequestsTotal.WithLabelValues(metrics.ResultOK).Inc()

	h.writeJSON(w, http.StatusOK, UploadResponse{
		Success: true,
		Message: "Configuration uploaded successfully",
		Summary: summary,
	})
}

// readYAMLPart returns the contents of the first multipart file whose name
// ends in .yaml or .yml, with the status code to answer on failure.
func (h *Handler) readYAMLPart(r *http.Request) ([]byte, int, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("No file provided")
	}

	parts := 0
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readErrorStatus(err), fmt.Errorf("Server error: %v", err)
		}
		parts++

		if !isYAMLFile(part) {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, readErrorStatus(err), fmt.Errorf("Server error: %v", err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, http.StatusBadRequest, errors.New("YAML file is empty")
		}
		return data, http.StatusOK, nil
	}

	if parts == 0 {
		return nil, http.StatusBadRequest, errors.New("No file provided")
	}
	return nil, http.StatusBadRequest, errors.New("YAML configuration file not found. Upload a .yaml or .yml file")
}

func isYAMLFile(part *multipart.Part) bool {
	name := part.FileName()
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func readErrorStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func (h *Handler) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.writeJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handler) zoneHealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if zoneID := r.URL.Query().Get("zone"); zoneID != "" {
		if _, ok := h.store.Zone(zoneID); !ok {
			h.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("zone %q not found", zoneID))
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]inventory.ServerStatus{zoneID: h.store.ZoneHealth(zoneID)})
		return
	}
	h.writeJSON(w, http.StatusOK, h.store.ZoneHealthAll())
}

// statusHandler applies a status update posted over HTTP and relays it to
// every WebSocket peer.
func (h *Handler) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxMessageSize)
	var u inventory.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.hub.Publish(u); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.writeJSONError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// wsHandler upgrades the request and serves one hub peer until the
// connection ends.
func (h *Handler) wsHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(h.cfg.MaxMessageSize)

	conn := &wsConn{id: uuid.NewString(), conn: ws, writeTimeout: h.cfg.WriteTimeout}
	defer conn.Close()

	log := h.log.With("peer", conn.id, "remote", r.RemoteAddr)
	if err := h.hub.Join(conn); err != nil {
		log.Warn("failed to join peer", "error", err)
		return
	}
	defer h.hub.Leave(conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("peer connection lost", "error", err)
			}
			return
		}
		h.hub.Handle(conn, data)
	}
}
