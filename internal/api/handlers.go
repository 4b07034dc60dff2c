// Package api exposes the control engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/martinsuchenak/bulbs/internal/engine"
	"github.com/martinsuchenak/bulbs/internal/log"
	"github.com/martinsuchenak/bulbs/internal/model"
	"github.com/martinsuchenak/bulbs/internal/storage"
)

// Handler serves the REST API on top of the engine.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates the API handler.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// RegisterRoutes attaches all API routes to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/devices", h.listDevices)
	mux.HandleFunc("POST /api/devices", h.addDevice)
	mux.HandleFunc("DELETE /api/devices/{address}", h.removeDevice)
	mux.HandleFunc("POST /api/dispatch", h.dispatch)
	mux.HandleFunc("POST /api/discover", h.discover)
}

// listDevices handles GET /api/devices
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.engine.Registry().Snapshot()
	log.Debug("Listed devices", "count", len(devices))
	h.writeJSON(w, http.StatusOK, devices)
}

// addDeviceRequest is the body of POST /api/devices.
type addDeviceRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// addDevice handles POST /api/devices
func (h *Handler) addDevice(w http.ResponseWriter, r *http.Request) {
	var req addDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := model.ParseAddress(req.Address)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	device := model.Device{Address: addr, Name: req.Name, Health: model.HealthUnknown}
	h.engine.Add(device)

	log.Info("Device added", "addr", addr, "name", req.Name)
	h.writeJSON(w, http.StatusCreated, device)
}

// removeDevice handles DELETE /api/devices/{address}
func (h *Handler) removeDevice(w http.ResponseWriter, r *http.Request) {
	addr, err := model.ParseAddress(r.PathValue("address"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Remove(addr); err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			h.writeError(w, http.StatusNotFound, "device not found")
			return
		}
		h.internalError(w, err)
		return
	}

	log.Info("Device removed", "addr", addr)
	w.WriteHeader(http.StatusNoContent)
}

// dispatchRequest is the body of POST /api/dispatch.
type dispatchRequest struct {
	Kind       model.CommandKind `json:"kind"`
	Power      bool              `json:"power"`
	Brightness int               `json:"brightness"`
	Color      string            `json:"color"`
	Targets    []string          `json:"targets"`
	Discover   bool              `json:"discover"`
}

// dispatch handles POST /api/dispatch
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	targets, err := h.engine.Targets(r.Context(), req.Targets, req.Discover)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cmd := model.Command{
		Kind:       req.Kind,
		Power:      req.Power,
		Brightness: req.Brightness,
		Targets:    targets,
	}
	if req.Kind == model.CmdSetColor {
		c, err := model.ParseRGB(req.Color)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cmd.Color = c
	}

	report, err := h.engine.Run(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCommand) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// discoverResponse is the body returned by POST /api/discover.
type discoverResponse struct {
	Found []model.Address `json:"found"`
}

// discover handles POST /api/discover
func (h *Handler) discover(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.engine.Discover(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, discoverResponse{Found: addrs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("Internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}
