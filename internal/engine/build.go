package engine

import (
	"fmt"

	"github.com/martinsuchenak/bulbs/internal/bulb"
	"github.com/martinsuchenak/bulbs/internal/config"
	"github.com/martinsuchenak/bulbs/internal/dispatch"
	"github.com/martinsuchenak/bulbs/internal/resolver"
	"github.com/martinsuchenak/bulbs/internal/storage"
)

// Build assembles an engine from configuration. With persist set the
// inventory database is opened (and seeded into the registry);
// otherwise the engine runs ephemerally. The returned closer is nil
// when there is nothing to close.
func Build(cfg *config.Config, persist bool) (*Engine, func() error, error) {
	client := bulb.NewHTTPClient(cfg.RequestTimeout)
	disp := dispatch.New(client, cfg.MaxInFlight, cfg.RequestTimeout)
	res := resolver.New(resolver.Options{
		Port:       cfg.DevicePort,
		Quiescence: cfg.DiscoveryQuiescence,
	})

	var store storage.Storage
	var closer func() error
	if persist {
		ss, err := storage.NewSQLiteStorage(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening inventory: %w", err)
		}
		store = ss
		closer = ss.Close
	}

	eng := New(disp, res, store, cfg.DiscoveryTimeout)
	if err := eng.LoadInventory(); err != nil {
		if closer != nil {
			closer()
		}
		return nil, nil, err
	}
	return eng, closer, nil
}
