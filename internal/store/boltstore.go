package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/panelsmith/panelsmith/model"
)

const bucketDevices = "devices"

// openTimeout bounds how long Open waits for the file lock held by another
// process.
const openTimeout = 5 * time.Second

// BoltDeviceStore is a DeviceStore backed by a single bbolt database file.
// Records are stored as JSON under their device ID, so fields added by later
// versions survive round-trips through older ones.
type BoltDeviceStore struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the database file at path and ensures
// the devices bucket exists.
func Open(path string) (*BoltDeviceStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketDevices))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initializing %s: %w", path, err)
	}

	return &BoltDeviceStore{db: db}, nil
}

// List returns all device records, sorted by name then device ID.
func (s *BoltDeviceStore) List(_ context.Context) ([]model.DeviceProject, error) {
	var devices []model.DeviceProject

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDevices))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var d model.DeviceProject
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("store: decoding device %q: %w", k, err)
			}
			d.Migrate()
			devices = append(devices, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
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
func (s *BoltDeviceStore) Get(_ context.Context, deviceID string) (model.DeviceProject, error) {
	var d model.DeviceProject

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDevices))
		v := b.Get([]byte(deviceID))
		if v == nil {
			return model.NewNotFoundError(fmt.Sprintf("device %q not found", deviceID))
		}
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("store: decoding device %q: %w", deviceID, err)
		}
		return nil
	})
	if err != nil {
		return model.DeviceProject{}, err
	}

	d.Migrate()
	return d, nil
}

// Upsert creates or replaces a device record.
func (s *BoltDeviceStore) Upsert(_ context.Context, device model.DeviceProject) error {
	if device.DeviceID == "" {
		return model.NewBadRequestError("device_id is required")
	}

	now := time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDevices))

		if prev := b.Get([]byte(device.DeviceID)); prev != nil {
			var existing model.DeviceProject
			if err := json.Unmarshal(prev, &existing); err == nil && !existing.CreatedAt.IsZero() {
				device.CreatedAt = existing.CreatedAt
			}
		}
		if device.CreatedAt.IsZero() {
			device.CreatedAt = now
		}
		device.UpdatedAt = now

		data, err := json.Marshal(device)
		if err != nil {
			return fmt.Errorf("store: encoding device %q: %w", device.DeviceID, err)
		}
		return b.Put([]byte(device.DeviceID), data)
	})
}

// Delete removes a device record.
func (s *BoltDeviceStore) Delete(_ context.Context, deviceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDevices))
		if b.Get([]byte(deviceID)) == nil {
			return model.NewNotFoundError(fmt.Sprintf("device %q not found", deviceID))
		}
		return b.Delete([]byte(deviceID))
	})
}

// Count returns the number of stored devices.
func (s *BoltDeviceStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketDevices)).Stats().KeyN
		return nil
	})
	return n, err
}

// HealthCheck verifies the database is readable.
func (s *BoltDeviceStore) HealthCheck(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketDevices)) == nil {
			return fmt.Errorf("store: devices bucket missing")
		}
		return nil
	})
}

// Close closes the database file.
func (s *BoltDeviceStore) Close() error {
	return s.db.Close()
}
