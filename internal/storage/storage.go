// Package storage persists the bulb inventory: which devices the
// operator knows about and their last recorded state. Dispatch history
// is deliberately not stored.
package storage

import (
	"errors"

	"github.com/martinsuchenak/bulbs/internal/model"
)

var (
	// ErrDeviceNotFound is returned when no inventory entry exists for
	// an address.
	ErrDeviceNotFound = errors.New("device not found")
)

// Storage is the device inventory. Implementations must be safe for
// concurrent use.
type Storage interface {
	ListDevices() ([]model.Device, error)
	GetDevice(addr model.Address) (*model.Device, error)
	SaveDevice(device *model.Device) error
	DeleteDevice(addr model.Address) error
	Close() error
}
