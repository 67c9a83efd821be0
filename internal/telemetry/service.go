// Package telemetry is the query façade over the device registry, the reading
// store and the aggregation engine. Every operation takes the caller's
// verified claims and resolves ownership before any reading is touched.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/sven3270350/Home-Entergy-Test/internal/auth"
	"github.com/sven3270350/Home-Entergy-Test/internal/stats"
	"github.com/sven3270350/Home-Entergy-Test/internal/store"
	apperrors "github.com/sven3270350/Home-Entergy-Test/pkg/errors"
)

type Service struct {
	repo *store.Repo
	now  func() time.Time
}

func NewService(repo *store.Repo) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) RegisterDevice(ctx context.Context, claims *auth.Claims, name, deviceType string, meta datatypes.JSON) (*store.Device, error) {
	if claims == nil {
		return nil, apperrors.Unauthorized("could not validate credentials")
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(deviceType) == "" {
		return nil, apperrors.BadRequest("name and device_type are required")
	}
	if len(meta) > 0 && !json.Valid(meta) {
		return nil, apperrors.BadRequest("meta must be valid JSON")
	}
	// Owner comes from the verified claim, never from request input.
	d, err := s.repo.CreateDevice(ctx, claims.Subject, name, deviceType, meta)
	if err != nil {
		return nil, apperrors.InternalServerError("failed to create device", err)
	}
	return d, nil
}

func (s *Service) ListDevices(ctx context.Context, claims *auth.Claims) ([]store.Device, error) {
	if claims == nil {
		return nil, apperrors.Unauthorized("could not validate credentials")
	}
	devices, err := s.repo.ListDevices(ctx, claims.Subject)
	if err != nil {
		return nil, apperrors.InternalServerError("failed to list devices", err)
	}
	return devices, nil
}

func (s *Service) IngestReading(ctx context.Context, claims *auth.Claims, deviceID uuid.UUID, timestamp time.Time, powerWatts float64) (*store.Reading, error) {
	if claims == nil {
		return nil, apperrors.Unauthorized("could not validate credentials")
	}
	if _, err := s.ownedDevice(ctx, claims, deviceID); err != nil {
		return nil, err
	}
	if powerWatts < 0 {
		return nil, apperrors.BadRequest("power_watts must be non-negative")
	}
	rd := &store.Reading{DeviceID: deviceID, Timestamp: timestamp.UTC(), PowerWatts: powerWatts}
	if err := s.repo.InsertReading(ctx, rd); err != nil {
		return nil, apperrors.InternalServerError("failed to store reading", err)
	}
	return rd, nil
}

func (s *Service) ListReadings(ctx context.Context, claims *auth.Claims, deviceID uuid.UUID, from, to time.Time, limit int, cursor *store.Cursor) (store.Page, error) {
	if claims == nil {
		return store.Page{}, apperrors.Unauthorized("could not validate credentials")
	}
	if _, err := s.ownedDevice(ctx, claims, deviceID); err != nil {
		return store.Page{}, err
	}
	page, err := s.repo.ListReadings(ctx, deviceID, from, to, limit, cursor, true)
	if errors.Is(err, store.ErrForeignCursor) {
		return store.Page{}, apperrors.BadRequest("cursor does not belong to this device")
	}
	if err != nil {
		return store.Page{}, apperrors.InternalServerError("failed to query readings", err)
	}
	return page, nil
}

func (s *Service) GetStats(ctx context.Context, claims *auth.Claims, deviceID uuid.UUID, period string) (*stats.Result, error) {
	if claims == nil {
		return nil, apperrors.Unauthorized("could not validate credentials")
	}
	// Period is validated before any store access so a bad token costs
	// nothing and cannot be used to probe for device existence.
	from, to, err := s.periodWindow(period)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedDevice(ctx, claims, deviceID); err != nil {
		return nil, err
	}
	readings, err := s.repo.ReadingsInWindow(ctx, deviceID, from, to)
	if err != nil {
		return nil, apperrors.InternalServerError("failed to query readings", err)
	}
	res := stats.Compute(deviceID, period, readings)
	return &res, nil
}

func (s *Service) ownedDevice(ctx context.Context, claims *auth.Claims, deviceID uuid.UUID) (*store.Device, error) {
	d, err := s.repo.GetOwnedDevice(ctx, claims.Subject, deviceID)
	if errors.Is(err, store.ErrDeviceNotFound) {
		return nil, apperrors.NotFound("device not found or not owned by user")
	}
	if err != nil {
		return nil, apperrors.InternalServerError("failed to look up device", err)
	}
	return d, nil
}

// periodWindow maps a period token to the absolute window [now-d, now].
// Unknown tokens are rejected, never defaulted.
func (s *Service) periodWindow(period string) (time.Time, time.Time, error) {
	now := s.now().UTC()
	switch period {
	case "24h":
		return now.Add(-24 * time.Hour), now, nil
	case "7d":
		return now.AddDate(0, 0, -7), now, nil
	case "30d":
		return now.AddDate(0, 0, -30), now, nil
	default:
		return time.Time{}, time.Time{}, apperrors.BadRequest("invalid period, supported values: 24h, 7d, 30d")
	}
}
