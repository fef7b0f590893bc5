// Package store persists device projects. The production implementation is
// backed by a bbolt database file; an in-memory implementation exists for
// tests.
package store

import (
	"context"

	"github.com/panelsmith/panelsmith/model"
)

// DeviceStore persists device project records.
type DeviceStore interface {
	// List returns all device records, sorted by name then device ID.
	List(ctx context.Context) ([]model.DeviceProject, error)

	// Get retrieves a device record by ID. Returns NOT_FOUND if the device
	// doesn't exist.
	Get(ctx context.Context, deviceID string) (model.DeviceProject, error)

	// Upsert creates or replaces a device record. CreatedAt is preserved on
	// replace; UpdatedAt is always set to the current time.
	Upsert(ctx context.Context, device model.DeviceProject) error

	// Delete removes a device record. Returns NOT_FOUND if the device doesn't
	// exist.
	Delete(ctx context.Context, deviceID string) error

	// Count returns the number of stored devices.
	Count(ctx context.Context) (int, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
