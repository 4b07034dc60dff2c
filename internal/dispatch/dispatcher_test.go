package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/martinsuchenak/bulbs/internal/bulb"
	"github.com/martinsuchenak/bulbs/internal/model"
)

// fakeBehavior scripts one device's response.
type fakeBehavior struct {
	state model.DeviceState
	err   error
	delay time.Duration
}

// fakeClient is a scripted bulb.Client for dispatcher tests.
type fakeClient struct {
	mu        sync.Mutex
	behaviors map[model.Address]fakeBehavior
	calls     int32
	inFlight  int32
	maxSeen   int32
}

var _ bulb.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{behaviors: make(map[model.Address]fakeBehavior)}
}

func (f *fakeClient) set(addr model.Address, b fakeBehavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[addr] = b
}

func (f *fakeClient) respond(ctx context.Context, addr model.Address) (model.DeviceState, error) {
	atomic.AddInt32(&f.calls, 1)

	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	b := f.behaviors[addr]
	f.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return model.DeviceState{}, ctx.Err()
		}
	}
	if b.err != nil {
		return model.DeviceState{}, b.err
	}
	return b.state, nil
}

func (f *fakeClient) Status(ctx context.Context, addr model.Address) (model.DeviceState, error) {
	return f.respond(ctx, addr)
}

func (f *fakeClient) SetPower(ctx context.Context, addr model.Address, on bool) (model.DeviceState, error) {
	st, err := f.respond(ctx, addr)
	if err != nil {
		return st, err
	}
	st.Power = on
	return st, nil
}

func (f *fakeClient) SetBrightness(ctx context.Context, addr model.Address, value int) (model.DeviceState, error) {
	st, err := f.respond(ctx, addr)
	if err != nil {
		return st, err
	}
	st.Brightness = value
	return st, nil
}

func (f *fakeClient) SetColor(ctx context.Context, addr model.Address, c model.RGB) (model.DeviceState, error) {
	st, err := f.respond(ctx, addr)
	if err != nil {
		return st, err
	}
	st.Color = c
	return st, nil
}

func (f *fakeClient) Toggle(ctx context.Context, addr model.Address) (model.DeviceState, error) {
	st, err := f.respond(ctx, addr)
	if err != nil {
		return st, err
	}
	st.Power = !st.Power
	return st, nil
}

func addr(host string) model.Address {
	return model.Address{Host: host, Port: 80}
}

func TestDispatchOneResultPerTarget(t *testing.T) {
	fc := newFakeClient()
	a, b, c := addr("10.0.0.1"), addr("10.0.0.2"), addr("10.0.0.3")
	fc.set(b, fakeBehavior{err: &bulb.Error{Kind: model.FailUnreachable, Err: errors.New("refused")}})

	d := New(fc, 0, 0)
	// b is listed twice; the dispatcher must still produce one result
	// per unique address.
	results, err := d.Dispatch(context.Background(), model.QueryStatus(a, b, c, b))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (one per unique target)", len(results))
	}
	for _, target := range []model.Address{a, b, c} {
		if _, ok := results[target]; !ok {
			t.Errorf("no result for target %s", target)
		}
	}
}

func TestDispatchEmptyTargetsRejectedBeforeNetwork(t *testing.T) {
	fc := newFakeClient()
	d := New(fc, 0, 0)

	_, err := d.Dispatch(context.Background(), model.SetPower(true))
	if !errors.Is(err, model.ErrInvalidCommand) {
		t.Fatalf("Dispatch() error = %v, want ErrInvalidCommand", err)
	}
	if n := atomic.LoadInt32(&fc.calls); n != 0 {
		t.Errorf("client saw %d calls, want 0 before validation", n)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	fc := newFakeClient()
	a, b := addr("10.0.0.1"), addr("10.0.0.2")
	fc.set(a, fakeBehavior{state: model.DeviceState{}})
	// b never answers within the per-device budget.
	fc.set(b, fakeBehavior{delay: time.Second})

	d := New(fc, 4, 25*time.Millisecond)
	report, err := d.Execute(context.Background(), model.SetPower(true, a, b))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if report.Outcome != model.OutcomePartialFailure {
		t.Errorf("Outcome = %s, want partial_failure", report.Outcome)
	}

	ra, ok := report.Result(a)
	if !ok || !ra.OK() || !ra.State.Power {
		t.Errorf("result for %s = %+v, want success with power on", a, ra)
	}
	rb, ok := report.Result(b)
	if !ok || rb.OK() || rb.Failure != model.FailTimeout {
		t.Errorf("result for %s = %+v, want timeout failure", b, rb)
	}
}

func TestDispatchAllSucceed(t *testing.T) {
	fc := newFakeClient()
	a, b := addr("10.0.0.1"), addr("10.0.0.2")

	d := New(fc, 0, 0)
	report, err := d.Execute(context.Background(), model.SetPower(true, a, b))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if report.Outcome != model.OutcomeSuccess {
		t.Errorf("Outcome = %s, want success", report.Outcome)
	}
	if report.Succeeded() != 2 {
		t.Errorf("Succeeded() = %d, want 2", report.Succeeded())
	}
}

func TestDispatchAllFail(t *testing.T) {
	fc := newFakeClient()
	a, b := addr("10.0.0.1"), addr("10.0.0.2")
	fail := fakeBehavior{err: &bulb.Error{Kind: model.FailUnreachable, Err: errors.New("refused")}}
	fc.set(a, fail)
	fc.set(b, fail)

	d := New(fc, 0, 0)
	report, err := d.Execute(context.Background(), model.Toggle(a, b))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if report.Outcome != model.OutcomeFailure {
		t.Errorf("Outcome = %s, want failure", report.Outcome)
	}
	for _, r := range report.Results {
		if r.Failure != model.FailUnreachable {
			t.Errorf("result for %s = %s, want unreachable", r.Address, r.Failure)
		}
	}
}

func TestDispatchOneFailureNeverBlocksOthers(t *testing.T) {
	fc := newFakeClient()
	slow := addr("10.0.0.1")
	fc.set(slow, fakeBehavior{delay: time.Second})

	targets := []model.Address{slow}
	for i := 2; i <= 8; i++ {
		targets = append(targets, addr(fmt.Sprintf("10.0.0.%d", i)))
	}

	d := New(fc, len(targets), 50*time.Millisecond)
	start := time.Now()
	report, err := d.Execute(context.Background(), model.QueryStatus(targets...))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// The batch must complete in roughly one timeout, not serially.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("dispatch took %s, slow device delayed the batch", elapsed)
	}
	if report.Succeeded() != len(targets)-1 {
		t.Errorf("Succeeded() = %d, want %d", report.Succeeded(), len(targets)-1)
	}
}

func TestDispatchBoundedConcurrency(t *testing.T) {
	fc := newFakeClient()
	var targets []model.Address
	for i := 1; i <= 20; i++ {
		a := addr(fmt.Sprintf("10.0.0.%d", i))
		fc.set(a, fakeBehavior{delay: 10 * time.Millisecond})
		targets = append(targets, a)
	}

	const bound = 3
	d := New(fc, bound, time.Second)
	if _, err := d.Dispatch(context.Background(), model.QueryStatus(targets...)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if max := atomic.LoadInt32(&fc.maxSeen); max > bound {
		t.Errorf("observed %d concurrent requests, bound is %d", max, bound)
	}
}

func TestDispatchCancellation(t *testing.T) {
	fc := newFakeClient()
	var targets []model.Address
	for i := 1; i <= 6; i++ {
		a := addr(fmt.Sprintf("10.0.0.%d", i))
		fc.set(a, fakeBehavior{delay: 40 * time.Millisecond})
		targets = append(targets, a)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	// One request at a time: the later targets are still queued when
	// the context is canceled.
	d := New(fc, 1, time.Second)
	results, err := d.Dispatch(ctx, model.QueryStatus(targets...))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(results) != len(targets) {
		t.Fatalf("got %d results, want %d: every target must resolve", len(results), len(targets))
	}

	var ok, canceled int
	for _, r := range results {
		switch {
		case r.OK():
			ok++
		case r.Failure == model.FailCanceled:
			canceled++
		default:
			t.Errorf("unexpected failure %s for %s", r.Failure, r.Address)
		}
	}
	if ok == 0 {
		t.Error("expected the in-flight request to complete despite cancellation")
	}
	if canceled == 0 {
		t.Error("expected queued targets to resolve as canceled")
	}
}
