// Package engine ties the control core together: it resolves target
// addresses, dispatches commands, and applies the outcomes to the
// registry and the persistent inventory. The CLI, REST API and MCP
// surfaces all drive this one engine.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/martinsuchenak/bulbs/internal/dispatch"
	"github.com/martinsuchenak/bulbs/internal/log"
	"github.com/martinsuchenak/bulbs/internal/model"
	"github.com/martinsuchenak/bulbs/internal/registry"
	"github.com/martinsuchenak/bulbs/internal/resolver"
	"github.com/martinsuchenak/bulbs/internal/storage"
)

// Resolver is the discovery dependency of the engine.
type Resolver interface {
	Discover(ctx context.Context, timeout time.Duration) ([]model.Address, error)
}

var _ Resolver = (*resolver.Resolver)(nil)

// Engine owns the registry and coordinates discovery, dispatch and
// persistence. Storage may be nil for a purely ephemeral run.
type Engine struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	resolver   Resolver
	store      storage.Storage

	discoveryTimeout time.Duration
}

// New creates an engine. The registry starts empty; call LoadInventory
// to seed it from storage.
func New(d *dispatch.Dispatcher, r Resolver, store storage.Storage, discoveryTimeout time.Duration) *Engine {
	return &Engine{
		registry:         registry.New(),
		dispatcher:       d,
		resolver:         r,
		store:            store,
		discoveryTimeout: discoveryTimeout,
	}
}

// Registry exposes the engine's device registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// LoadInventory seeds the registry from persistent storage.
func (e *Engine) LoadInventory() error {
	if e.store == nil {
		return nil
	}
	devices, err := e.store.ListDevices()
	if err != nil {
		return fmt.Errorf("loading inventory: %w", err)
	}
	for _, d := range devices {
		e.registry.Upsert(d)
	}
	log.Debug("Inventory loaded", "devices", len(devices))
	return nil
}

// Discover probes the local network and merges newly found addresses
// into the registry and inventory with unknown health. Already-known
// devices are left untouched. It returns every address found this run.
func (e *Engine) Discover(ctx context.Context) ([]model.Address, error) {
	addrs, err := e.resolver.Discover(ctx, e.discoveryTimeout)
	if err != nil {
		return nil, err
	}

	for _, addr := range addrs {
		if _, known := e.registry.Get(addr); known {
			continue
		}
		d := model.Device{Address: addr, Health: model.HealthUnknown, LastSeen: time.Now()}
		e.registry.Upsert(d)
		e.persist(d)
		log.Info("Discovered new device", "addr", addr)
	}
	return addrs, nil
}

// Targets resolves the addresses a command should go to: the explicit
// list when given, otherwise every known device, optionally after a
// discovery pass. An empty outcome is reported as ErrInvalidCommand by
// the subsequent dispatch, not here.
func (e *Engine) Targets(ctx context.Context, explicit []string, discover bool) ([]model.Address, error) {
	if len(explicit) > 0 {
		addrs := make([]model.Address, 0, len(explicit))
		for _, s := range explicit {
			addr, err := model.ParseAddress(s)
			if err != nil {
				return nil, err
			}
			addrs = append(addrs, addr)
		}
		return addrs, nil
	}

	if discover {
		if _, err := e.Discover(ctx); err != nil {
			return nil, err
		}
	}
	return e.registry.Addresses(), nil
}

// Run dispatches cmd and applies each completed result to the registry
// and inventory: successes record the device-confirmed state, timeouts
// and unreachable devices are flagged unreachable. Canceled targets are
// left untouched. The report is returned regardless of outcome.
func (e *Engine) Run(ctx context.Context, cmd model.Command) (model.Report, error) {
	report, err := e.dispatcher.Execute(ctx, cmd)
	if err != nil {
		return model.Report{}, err
	}

	for _, res := range report.Results {
		switch {
		case res.OK():
			e.registry.UpsertState(res.Address, *res.State)
		case res.Failure == model.FailTimeout, res.Failure == model.FailUnreachable:
			e.registry.MarkUnreachable(res.Address)
		case res.Failure == model.FailProtocol:
			// The device answered, just not something we understood.
			// Keep its previous state and health.
			continue
		default:
			continue
		}
		if d, ok := e.registry.Get(res.Address); ok {
			e.persist(d)
		}
	}
	return report, nil
}

// Remove drops a device from the registry and inventory.
func (e *Engine) Remove(addr model.Address) error {
	e.registry.Remove(addr)
	if e.store == nil {
		return nil
	}
	return e.store.DeleteDevice(addr)
}

// Add registers a device the operator supplied by hand.
func (e *Engine) Add(device model.Device) {
	if device.Health == "" {
		device.Health = model.HealthUnknown
	}
	e.registry.Upsert(device)
	e.persist(device)
}

func (e *Engine) persist(d model.Device) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveDevice(&d); err != nil {
		log.Warn("Failed to persist device", "addr", d.Address, "error", err)
	}
}
