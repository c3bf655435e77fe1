package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"threatmon/internal/model"
)

type deviceSummary struct {
	ID string `json:"id"`
	model.DeviceStatus
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "threatmon",
		"version":   s.version,
		"status":    "running",
		"timestamp": time.Now().UTC(),
		"endpoints": []string{
			"/api/status",
			"/api/devices",
			"/api/devices/{id}",
			"/api/devices/{id}/readings",
			"/api/alerts",
			"/api/alerts/{id}/acknowledge",
			"/api/dashboard/summary",
			"/metrics",
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	connected := s.feed != nil && s.feed.Connected()
	loaded := s.model != nil && s.model.ModelLoaded()

	var total, unacked int
	if s.store != nil {
		if records, err := s.store.GetLastN(r.Context(), "/alerts", 100); err == nil {
			total = len(records)
			for _, rec := range records {
				var a struct {
					Acknowledged bool `json:"acknowledged"`
				}
				if json.Unmarshal(rec.Value, &a) == nil && !a.Acknowledged {
					unacked++
				}
			}
		}
	}
	deviceTotal := s.state.Len()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"mqtt": map[string]any{
			"connected": connected,
			"broker":    cfg.Feed.Broker,
			"topics":    cfg.Feed.Topics,
		},
		"model": map[string]any{
			"loaded": loaded,
		},
		"devices": map[string]any{
			"total":  deviceTotal,
			"online": deviceTotal,
		},
		"alerts": map[string]any{
			"total":          total,
			"unacknowledged": unacked,
		},
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	list := s.state.List()
	out := make([]deviceSummary, 0, len(list))
	for i := range list {
		out = append(out, deviceSummary{ID: list[i].DeviceID, DeviceStatus: list[i]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := s.state.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Device not found")
		return
	}
	var readings int64
	if s.store != nil {
		if count, err := s.store.Count(r.Context(), "/devices/"+id+"/readings"); err == nil {
			readings = count
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            id,
		"status":        status,
		"reading_count": readings,
	})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryLimit(r, 50)
	readings := make([]json.RawMessage, 0, limit)
	if s.store != nil {
		records, err := s.store.GetLastN(r.Context(), "/devices/"+id+"/readings", limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Storage unavailable")
			return
		}
		for _, rec := range records {
			readings = append(readings, rec.Value)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"count":     len(readings),
		"readings":  readings,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	alerts := make([]map[string]any, 0, limit)
	if s.store != nil {
		records, err := s.store.GetLastN(r.Context(), "/alerts", limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Storage unavailable")
			return
		}
		for i := len(records) - 1; i >= 0; i-- {
			entry := map[string]any{}
			if err := json.Unmarshal(records[i].Value, &entry); err != nil {
				continue
			}
			entry["id"] = records[i].Key
			alerts = append(alerts, entry)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.store == nil {
		respondError(w, http.StatusInternalServerError, "Storage unavailable")
		return
	}
	existing, err := s.store.Get(r.Context(), "/alerts/"+id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Storage unavailable")
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	err = s.store.Update(r.Context(), "/alerts/"+id, map[string]any{
		"acknowledged":    true,
		"acknowledged_at": time.Now().UTC(),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Alert acknowledged",
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	devices := s.state.List()
	var normal, threat int
	var latest *model.DeviceStatus
	for i := range devices {
		if devices[i].State == model.StateThreat {
			threat++
		} else {
			normal++
		}
		if latest == nil || devices[i].LastSeen.After(latest.LastSeen) {
			latest = &devices[i]
		}
	}

	recent := make([]map[string]any, 0, 5)
	if s.store != nil {
		if records, err := s.store.GetLastN(r.Context(), "/alerts", 5); err == nil {
			for i := len(records) - 1; i >= 0; i-- {
				entry := map[string]any{}
				if json.Unmarshal(records[i].Value, &entry) == nil {
					entry["id"] = records[i].Key
					recent = append(recent, entry)
				}
			}
		}
	}

	var latestOut any
	if latest != nil {
		latestOut = deviceSummary{ID: latest.DeviceID, DeviceStatus: *latest}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": map[string]any{
			"total":  len(devices),
			"normal": normal,
			"threat": threat,
		},
		"latest_reading": latestOut,
		"recent_alerts":  recent,
		"timestamp":      time.Now().UTC(),
	})
}
