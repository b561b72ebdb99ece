package api

import (
	"net/http"
)

// familyStatus summarises one manager in the system status document.
type familyStatus struct {
	Family    string          `json:"family"`
	Devices   map[string]bool `json:"devices"`
	Connected int             `json:"connected"`
	Total     int             `json:"total"`
}

// handleSystemStatus reports per-family connection health and backend
// availability.
func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	families := []familyStatus{}
	for _, m := range s.managers() {
		fs := familyStatus{
			Family:  string(m.Family()),
			Devices: make(map[string]bool),
		}
		for _, name := range m.GetDeviceNames() {
			connected := m.IsDeviceConnected(name)
			fs.Devices[name] = connected
			if connected {
				fs.Connected++
			}
			fs.Total++
		}
		families = append(families, fs)
	}

	mqttConnected := s.mqtt != nil && s.mqtt.IsConnected()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":  s.version,
		"families": families,
		"backends": map[string]bool{
			"mqtt":    mqttConnected,
			"journal": s.journal != nil,
		},
		"websocket_clients": s.hub.ClientCount(),
	})
}

// handleConnectAll connects every device in every family. The response
// reports the aggregate result per family; 207 would overstate it, so a
// failed family simply comes back false and the detail is in the status
// endpoint.
func (s *Server) handleConnectAll(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]bool)
	for _, m := range s.managers() {
		results[string(m.Family())] = m.ConnectAll(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleDisconnectAll disconnects every device in every family.
func (s *Server) handleDisconnectAll(w http.ResponseWriter, _ *http.Request) {
	results := make(map[string]bool)
	for _, m := range s.managers() {
		results[string(m.Family())] = m.DisconnectAll()
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
