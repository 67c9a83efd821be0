package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrDeviceNotFound covers both a device id that does not exist and one owned
// by someone else. The two cases are indistinguishable on purpose so callers
// cannot probe for devices across accounts.
var ErrDeviceNotFound = errors.New("device not found")

func (r *Repo) CreateDevice(ctx context.Context, owner, name, deviceType string, meta datatypes.JSON) (*Device, error) {
	key, err := newIngestKey()
	if err != nil {
		return nil, err
	}
	d := &Device{
		ID:         uuid.New(),
		Name:       name,
		DeviceType: deviceType,
		Owner:      owner,
		IngestKey:  key,
		Meta:       meta,
	}
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Repo) ListDevices(ctx context.Context, owner string) ([]Device, error) {
	var out []Device
	err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// GetOwnedDevice is the ownership-scoped lookup every telemetry operation
// goes through before touching readings.
func (r *Repo) GetOwnedDevice(ctx context.Context, owner string, id uuid.UUID) (*Device, error) {
	var d Device
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner = ?", id, owner).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeviceByIngestKey resolves the broker-side credential used by the MQTT
// ingest path, where no user token is available.
func (r *Repo) GetDeviceByIngestKey(ctx context.Context, key string) (*Device, error) {
	var d Device
	err := r.db.WithContext(ctx).Where("ingest_key = ?", key).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func newIngestKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate ingest key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
