package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stagecraft-systems/motion-core/internal/motion"
)

// deviceSummary is one row in the device list.
type deviceSummary struct {
	Name      string   `json:"name"`
	Family    string   `json:"family"`
	Connected bool     `json:"connected"`
	Axes      []string `json:"axes"`
}

// deviceDetail is the full state document for one device.
type deviceDetail struct {
	Name      string                      `json:"name"`
	Family    string                      `json:"family"`
	Connected bool                        `json:"connected"`
	Axes      map[string]motion.AxisState `json:"axes"`
}

// handleListDevices returns all registered devices across both families.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := []deviceSummary{}
	for _, m := range s.managers() {
		for _, name := range m.GetDeviceNames() {
			dev := m.GetDevice(name)
			if dev == nil {
				continue
			}
			devices = append(devices, deviceSummary{
				Name:      dev.Name(),
				Family:    string(dev.Family()),
				Connected: dev.IsConnected(),
				Axes:      dev.Axes(),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns the cached state of one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	writeJSON(w, http.StatusOK, deviceDetail{
		Name:      dev.Name(),
		Family:    string(dev.Family()),
		Connected: dev.IsConnected(),
		Axes:      dev.GetState(),
	})
}

// handleConnectDevice connects one device.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	_, mgr := s.findDevice(name)
	if mgr == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	if !mgr.ConnectDevice(r.Context(), name) {
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, "failed to connect device: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true})
}

// handleDisconnectDevice disconnects one device.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	_, mgr := s.findDevice(name)
	if mgr == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	if !mgr.DisconnectDevice(name) {
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, "failed to disconnect device: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": false})
}

// handleGetPositions returns all cached axis positions for one device.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	positions, ok := dev.GetPositions()
	if !ok {
		writeError(w, http.StatusConflict, ErrCodeNotConnected, "device is not connected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// handleGetIdentification returns the controller identification string.
func (s *Server) handleGetIdentification(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	id, ok := dev.GetIdentification(r.Context())
	if !ok {
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, "identification query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identification": id})
}

// moveRequest is the request body for POST /devices/{name}/move.
type moveRequest struct {
	Axis           string   `json:"axis"`
	Target         *float64 `json:"target,omitempty"`
	Delta          *float64 `json:"delta,omitempty"`
	Blocking       bool     `json:"blocking"`
	TimeoutSeconds float64  `json:"timeout_seconds,omitempty"`
}

// handleMove commands a single-axis move. Absolute moves carry "target",
// relative moves carry "delta". Blocking moves wait for completion within
// timeout_seconds (default 30).
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Axis == "" {
		writeBadRequest(w, "axis is required")
		return
	}
	if (req.Target == nil) == (req.Delta == nil) {
		writeBadRequest(w, "exactly one of target or delta is required")
		return
	}

	start := time.Now()
	var ok bool
	var value float64
	switch {
	case req.Target != nil:
		value = *req.Target
		ok = dev.MoveAbsolute(r.Context(), req.Axis, value, req.Blocking)
	default:
		value = *req.Delta
		ok = dev.MoveRelative(r.Context(), req.Axis, value, req.Blocking)
	}

	if req.Blocking && ok && req.TimeoutSeconds > 0 {
		// The controller already waited with its default deadline; an
		// explicit client timeout extends the wait for long travels.
		ok = dev.WaitForMotionCompletion(r.Context(), req.Axis, time.Duration(req.TimeoutSeconds*float64(time.Second)))
	}

	if s.recorder != nil {
		s.recorder.RecordMove(name, req.Axis, value, time.Since(start), ok)
	}

	if !ok {
		writeError(w, http.StatusConflict, ErrCodeMotionFailed, "move command failed")
		return
	}

	// Non-blocking moves are accepted, not completed.
	status := http.StatusOK
	if !req.Blocking {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]any{
		"ok":          true,
		"blocking":    req.Blocking,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// homeRequest is the request body for POST /devices/{name}/home.
type homeRequest struct {
	Axis string `json:"axis"`
}

// handleHome drives one axis to its reference position. Blocks until the
// homing move settles.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	var req homeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Axis == "" {
		writeBadRequest(w, "axis is required")
		return
	}

	if !dev.Home(r.Context(), req.Axis) {
		writeError(w, http.StatusConflict, ErrCodeMotionFailed, "homing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// stopRequest is the request body for POST /devices/{name}/stop.
// An empty axis stops every axis on the device.
type stopRequest struct {
	Axis string `json:"axis,omitempty"`
}

// handleStop halts motion immediately.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	var req stopRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	var ok bool
	if req.Axis == "" {
		ok = dev.StopAll()
	} else {
		ok = dev.StopAxis(req.Axis)
	}

	if !ok {
		writeError(w, http.StatusConflict, ErrCodeMotionFailed, "stop command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleGetVelocity returns the commanded velocity of one axis.
func (s *Server) handleGetVelocity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	axis := r.URL.Query().Get("axis")
	if axis == "" {
		writeBadRequest(w, "axis query parameter is required")
		return
	}

	velocity, ok := dev.GetVelocity(axis)
	if !ok {
		writeError(w, http.StatusConflict, ErrCodeMotionFailed, "velocity query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"axis": axis, "velocity": velocity})
}

// velocityRequest is the request body for PUT /devices/{name}/velocity.
type velocityRequest struct {
	Axis     string  `json:"axis"`
	Velocity float64 `json:"velocity"`
}

// handleSetVelocity sets the commanded velocity of one axis.
func (s *Server) handleSetVelocity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, _ := s.findDevice(name)
	if dev == nil {
		writeNotFound(w, "device not found: "+name)
		return
	}

	var req velocityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Axis == "" {
		writeBadRequest(w, "axis is required")
		return
	}
	if req.Velocity <= 0 {
		writeBadRequest(w, "velocity must be positive")
		return
	}

	if !dev.SetVelocity(req.Axis, req.Velocity) {
		writeError(w, http.StatusConflict, ErrCodeMotionFailed, "velocity command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
