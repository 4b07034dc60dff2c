package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/martinsuchenak/bulbs/internal/bulb"
	"github.com/martinsuchenak/bulbs/internal/dispatch"
	"github.com/martinsuchenak/bulbs/internal/model"
	"github.com/martinsuchenak/bulbs/internal/storage"
)

// stubClient answers every command with a scripted per-address result.
type stubClient struct {
	mu     sync.Mutex
	states map[model.Address]model.DeviceState
	errs   map[model.Address]error
}

var _ bulb.Client = (*stubClient)(nil)

func newStubClient() *stubClient {
	return &stubClient{
		states: make(map[model.Address]model.DeviceState),
		errs:   make(map[model.Address]error),
	}
}

func (s *stubClient) respond(addr model.Address) (model.DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[addr]; err != nil {
		return model.DeviceState{}, err
	}
	return s.states[addr], nil
}

func (s *stubClient) Status(ctx context.Context, addr model.Address) (model.DeviceState, error) {
	return s.respond(addr)
}

func (s *stubClient) SetPower(ctx context.Context, addr model.Address, on bool) (model.DeviceState, error) {
	st, err := s.respond(addr)
	if err != nil {
		return st, err
	}
	st.Power = on
	return st, nil
}

func (s *stubClient) SetBrightness(ctx context.Context, addr model.Address, value int) (model.DeviceState, error) {
	st, err := s.respond(addr)
	if err != nil {
		return st, err
	}
	st.Brightness = value
	return st, nil
}

func (s *stubClient) SetColor(ctx context.Context, addr model.Address, c model.RGB) (model.DeviceState, error) {
	st, err := s.respond(addr)
	if err != nil {
		return st, err
	}
	st.Color = c
	return st, nil
}

func (s *stubClient) Toggle(ctx context.Context, addr model.Address) (model.DeviceState, error) {
	st, err := s.respond(addr)
	if err != nil {
		return st, err
	}
	st.Power = !st.Power
	return st, nil
}

// stubResolver returns a fixed set of addresses.
type stubResolver struct {
	addrs []model.Address
	err   error
	runs  int
}

func (s *stubResolver) Discover(ctx context.Context, timeout time.Duration) ([]model.Address, error) {
	s.runs++
	return s.addrs, s.err
}

func testEngine(t *testing.T, client bulb.Client, res Resolver, store storage.Storage) *Engine {
	t.Helper()
	d := dispatch.New(client, 8, 100*time.Millisecond)
	return New(d, res, store, time.Second)
}

func addr(host string) model.Address {
	return model.Address{Host: host, Port: 80}
}

func TestRunAppliesConfirmedState(t *testing.T) {
	sc := newStubClient()
	a := addr("10.0.0.5")
	sc.states[a] = model.DeviceState{Power: true, Brightness: 80, Color: model.RGB{R: 0xFF}, UpdatedAt: time.Now()}

	eng := testEngine(t, sc, &stubResolver{}, nil)
	report, err := eng.Run(context.Background(), model.QueryStatus(a))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Outcome != model.OutcomeSuccess {
		t.Fatalf("Outcome = %s, want success", report.Outcome)
	}

	d, ok := eng.Registry().Get(a)
	if !ok {
		t.Fatal("device not in registry after successful query")
	}
	if d.Health != model.HealthReachable {
		t.Errorf("Health = %s, want reachable", d.Health)
	}
	if !d.State.Power || d.State.Brightness != 80 || d.State.Color != (model.RGB{R: 0xFF}) {
		t.Errorf("State = %+v, want the device-confirmed state", d.State)
	}
}

func TestRunMarksUnreachableOnFailure(t *testing.T) {
	sc := newStubClient()
	a, b := addr("10.0.0.1"), addr("10.0.0.2")
	sc.states[a] = model.DeviceState{Power: true}
	sc.errs[b] = &bulb.Error{Kind: model.FailUnreachable, Err: errors.New("refused")}

	eng := testEngine(t, sc, &stubResolver{}, nil)
	report, err := eng.Run(context.Background(), model.SetPower(true, a, b))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Outcome != model.OutcomePartialFailure {
		t.Errorf("Outcome = %s, want partial_failure", report.Outcome)
	}

	da, _ := eng.Registry().Get(a)
	if da.Health != model.HealthReachable {
		t.Errorf("Health of %s = %s, want reachable", a, da.Health)
	}
	db, _ := eng.Registry().Get(b)
	if db.Health != model.HealthUnreachable {
		t.Errorf("Health of %s = %s, want unreachable", b, db.Health)
	}
}

func TestRunKeepsStateOnProtocolError(t *testing.T) {
	sc := newStubClient()
	a := addr("10.0.0.1")
	sc.states[a] = model.DeviceState{Power: true, Brightness: 50}

	eng := testEngine(t, sc, &stubResolver{}, nil)
	if _, err := eng.Run(context.Background(), model.QueryStatus(a)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The device now answers garbage. Its last good state must survive.
	sc.mu.Lock()
	sc.errs[a] = &bulb.Error{Kind: model.FailProtocol, Err: errors.New("bad json")}
	sc.mu.Unlock()

	if _, err := eng.Run(context.Background(), model.QueryStatus(a)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	d, _ := eng.Registry().Get(a)
	if d.Health != model.HealthReachable {
		t.Errorf("Health = %s, want reachable kept after protocol error", d.Health)
	}
	if !d.State.Power || d.State.Brightness != 50 {
		t.Errorf("State = %+v, want last good state kept", d.State)
	}
}

func TestDiscoverMergesOnlyNewDevices(t *testing.T) {
	sc := newStubClient()
	known, fresh := addr("10.0.0.1"), addr("10.0.0.2")
	res := &stubResolver{addrs: []model.Address{known, fresh}}

	eng := testEngine(t, sc, res, nil)
	eng.Registry().Upsert(model.Device{
		Address: known,
		Name:    "desk-lamp",
		Health:  model.HealthReachable,
	})

	addrs, err := eng.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("Discover() returned %v, want both addresses", addrs)
	}

	d, _ := eng.Registry().Get(known)
	if d.Name != "desk-lamp" || d.Health != model.HealthReachable {
		t.Errorf("known device altered by discovery: %+v", d)
	}
	d, ok := eng.Registry().Get(fresh)
	if !ok {
		t.Fatal("newly discovered device not registered")
	}
	if d.Health != model.HealthUnknown {
		t.Errorf("Health of new device = %s, want unknown until queried", d.Health)
	}
}

func TestTargetsExplicit(t *testing.T) {
	res := &stubResolver{addrs: []model.Address{addr("10.0.0.9")}}
	eng := testEngine(t, newStubClient(), res, nil)

	targets, err := eng.Targets(context.Background(), []string{"10.0.0.1", "10.0.0.2:8080"}, true)
	if err != nil {
		t.Fatalf("Targets() error = %v", err)
	}
	want := []model.Address{addr("10.0.0.1"), {Host: "10.0.0.2", Port: 8080}}
	if len(targets) != 2 || targets[0] != want[0] || targets[1] != want[1] {
		t.Errorf("Targets() = %v, want %v", targets, want)
	}
	if res.runs != 0 {
		t.Error("explicit targets must not trigger discovery")
	}

	if _, err := eng.Targets(context.Background(), []string{"not a host"}, false); err == nil {
		t.Error("Targets() with a bad address = nil error, want parse failure")
	}
}

func TestTargetsFromRegistryWithDiscovery(t *testing.T) {
	fresh := addr("10.0.0.7")
	res := &stubResolver{addrs: []model.Address{fresh}}
	eng := testEngine(t, newStubClient(), res, nil)

	targets, err := eng.Targets(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("Targets() error = %v", err)
	}
	if res.runs != 1 {
		t.Errorf("discovery ran %d times, want 1", res.runs)
	}
	if len(targets) != 1 || targets[0] != fresh {
		t.Errorf("Targets() = %v, want [%s]", targets, fresh)
	}
}

func TestEnginePersistsThroughStorage(t *testing.T) {
	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer store.Close()

	sc := newStubClient()
	a := addr("10.0.0.5")
	sc.states[a] = model.DeviceState{Power: true, Brightness: 60}

	eng := testEngine(t, sc, &stubResolver{}, store)
	if _, err := eng.Run(context.Background(), model.QueryStatus(a)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	saved, err := store.GetDevice(a)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if !saved.State.Power || saved.State.Brightness != 60 {
		t.Errorf("persisted state = %+v, want the confirmed state", saved.State)
	}

	// A fresh engine over the same storage sees the inventory.
	eng2 := testEngine(t, sc, &stubResolver{}, store)
	if err := eng2.LoadInventory(); err != nil {
		t.Fatalf("LoadInventory() error = %v", err)
	}
	if _, ok := eng2.Registry().Get(a); !ok {
		t.Error("device not loaded from inventory")
	}

	if err := eng2.Remove(a); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := store.GetDevice(a); !errors.Is(err, storage.ErrDeviceNotFound) {
		t.Errorf("GetDevice() after remove error = %v, want ErrDeviceNotFound", err)
	}
}

func TestAddDefaultsHealth(t *testing.T) {
	eng := testEngine(t, newStubClient(), &stubResolver{}, nil)
	eng.Add(model.Device{Address: addr("10.0.0.3"), Name: "porch"})

	d, ok := eng.Registry().Get(addr("10.0.0.3"))
	if !ok {
		t.Fatal("added device not in registry")
	}
	if d.Health != model.HealthUnknown {
		t.Errorf("Health = %s, want unknown", d.Health)
	}
}
