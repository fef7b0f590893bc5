package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panelsmith/panelsmith/model"
)

// MemoryDeviceStore is an in-memory DeviceStore for testing.
type MemoryDeviceStore struct {
	mu      sync.RWMutex
	devices map[string]model.DeviceProject
}

// NewMemoryDeviceStore creates a new in-memory device store.
func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{
		devices: make(map[string]model.DeviceProject),
	}
}

// List returns all device records, sorted by name then device ID.
func (s *MemoryDeviceStore) List(_ context.Context) ([]model.DeviceProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]model.DeviceProject, 0, len(s.devices))
	for _, d := range s.devices {
		d.Migrate()
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices, nil
}

// Get retrieves a device record by ID.
func (s *MemoryDeviceStore) Get(_ context.Context, deviceID string) (model.DeviceProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.devices[deviceID]
	if !exists {
		return model.DeviceProject{}, model.NewNotFoundError(
			fmt.Sprintf("device %q not found", deviceID),
		)
	}
	d.Migrate()
	return d, nil
}

// Upsert creates or replaces a device record.
func (s *MemoryDeviceStore) Upsert(_ context.Context, device model.DeviceProject) error {
	if device.DeviceID == "" {
		return model.NewBadRequestError("device_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, exists := s.devices[device.DeviceID]; exists && !existing.CreatedAt.IsZero() {
		device.CreatedAt = existing.CreatedAt
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	s.devices[device.DeviceID] = device
	return nil
}

// Delete removes a device record.
func (s *MemoryDeviceStore) Delete(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[deviceID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("device %q not found", deviceID))
	}
	delete(s.devices, deviceID)
	return nil
}

// Count returns the number of stored devices.
func (s *MemoryDeviceStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices), nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryDeviceStore) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryDeviceStore) Close() error {
	return nil
}
