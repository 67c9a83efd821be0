package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/datatypes"

	"github.com/sven3270350/Home-Entergy-Test/internal/auth"
	"github.com/sven3270350/Home-Entergy-Test/internal/store"
	"github.com/sven3270350/Home-Entergy-Test/internal/telemetry"
	apperrors "github.com/sven3270350/Home-Entergy-Test/pkg/errors"
)

type Server struct {
	svc       *telemetry.Service
	jwtSecret string
}

func New(svc *telemetry.Service, jwtSecret string) *Server {
	return &Server{svc: svc, jwtSecret: jwtSecret}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.jwtSecret))
		r.Post("/api/devices", s.handleRegisterDevice)
		r.Get("/api/devices", s.handleListDevices)
		r.Post("/api/telemetry", s.handleIngestReading)
		r.Get("/api/telemetry/{deviceID}", s.handleListReadings)
		r.Get("/api/telemetry/{deviceID}/stats", s.handleStats)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type registerDeviceRequest struct {
	Name       string          `json:"name"`
	DeviceType string          `json:"device_type"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

type deviceResponse struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	DeviceType string          `json:"device_type"`
	Owner      string          `json:"owner"`
	IngestKey  string          `json:"ingest_key,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

func deviceDTO(d *store.Device, includeIngestKey bool) deviceResponse {
	resp := deviceResponse{
		ID:         d.ID,
		Name:       d.Name,
		DeviceType: d.DeviceType,
		Owner:      d.Owner,
		Meta:       json.RawMessage(d.Meta),
		CreatedAt:  d.CreatedAt,
	}
	if includeIngestKey {
		resp.IngestKey = d.IngestKey
	}
	if !d.UpdatedAt.IsZero() && !d.UpdatedAt.Equal(d.CreatedAt) {
		u := d.UpdatedAt
		resp.UpdatedAt = &u
	}
	return resp
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	d, err := s.svc.RegisterDevice(r.Context(), auth.GetClaims(r.Context()), req.Name, req.DeviceType, datatypes.JSON(req.Meta))
	if err != nil {
		writeAppError(w, err)
		return
	}
	// The ingest key is only ever shown here, at registration.
	writeJSON(w, http.StatusCreated, deviceDTO(d, true))
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.svc.ListDevices(r.Context(), auth.GetClaims(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]deviceResponse, 0, len(devices))
	for i := range devices {
		out = append(out, deviceDTO(&devices[i], false))
	}
	writeJSON(w, http.StatusOK, out)
}

type ingestReadingRequest struct {
	DeviceID   uuid.UUID `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
	PowerWatts float64   `json:"power_watts"`
}

func (s *Server) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	var req ingestReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.DeviceID == uuid.Nil {
		writeAppError(w, apperrors.BadRequest("device_id is required"))
		return
	}
	if req.Timestamp.IsZero() {
		writeAppError(w, apperrors.BadRequest("timestamp is required"))
		return
	}
	rd, err := s.svc.IngestReading(r.Context(), auth.GetClaims(r.Context()), req.DeviceID, req.Timestamp, req.PowerWatts)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rd)
}

type listReadingsResponse struct {
	DeviceID   uuid.UUID       `json:"device_id"`
	StartTime  *time.Time      `json:"start_time,omitempty"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	Readings   []store.Reading `json:"readings"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		writeAppError(w, apperrors.BadRequest("invalid device id"))
		return
	}

	q := r.URL.Query()
	from, fromPtr, err := parseTimePtr(q.Get("start_time"))
	if err != nil {
		writeAppError(w, apperrors.BadRequest("invalid start_time"))
		return
	}
	to, toPtr, err := parseTimePtr(q.Get("end_time"))
	if err != nil {
		writeAppError(w, apperrors.BadRequest("invalid end_time"))
		return
	}

	limit := 0
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	cursor, err := store.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeAppError(w, apperrors.BadRequest("invalid cursor"))
		return
	}

	page, err := s.svc.ListReadings(r.Context(), auth.GetClaims(r.Context()), deviceID, from, to, limit, cursor)
	if err != nil {
		writeAppError(w, err)
		return
	}

	resp := listReadingsResponse{DeviceID: deviceID, Readings: page.Readings, NextCursor: page.NextCursor}
	if resp.Readings == nil {
		resp.Readings = []store.Reading{}
	}
	resp.StartTime = fromPtr
	resp.EndTime = toPtr
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		writeAppError(w, apperrors.BadRequest("invalid device id"))
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "24h"
	}
	res, err := s.svc.GetStats(r.Context(), auth.GetClaims(r.Context()), deviceID, period)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseTimePtr(v string) (time.Time, *time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		// accept RFC3339Nano too
		t, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, nil, err
		}
	}
	t = t.UTC()
	return t, &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Code >= http.StatusInternalServerError {
			slog.Error("telemetry request failed", "error", appErr.Err)
		}
		apperrors.WriteError(w, appErr)
		return
	}
	slog.Error("telemetry request failed", "error", err)
	apperrors.WriteError(w, apperrors.InternalServerError("internal error", err))
}
