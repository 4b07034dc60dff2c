// Package dispatch fans one command out to many bulbs concurrently and
// folds the per-device outcomes into a single report.
package dispatch

import (
	"context"
	"time"

	"github.com/martinsuchenak/bulbs/internal/bulb"
	"github.com/martinsuchenak/bulbs/internal/log"
	"github.com/martinsuchenak/bulbs/internal/model"
)

const (
	// DefaultMaxInFlight caps concurrent device requests so a large
	// target set cannot flood the local network segment.
	DefaultMaxInFlight = 32

	// DefaultTimeout bounds each device's request, independent of the
	// other targets.
	DefaultTimeout = 2 * time.Second
)

// Dispatcher sends one logical command to a set of addresses
// concurrently. It performs no retries and never mutates the registry;
// callers apply successful results themselves.
type Dispatcher struct {
	client      bulb.Client
	maxInFlight int
	timeout     time.Duration
}

// New creates a dispatcher. maxInFlight <= 0 and timeout <= 0 select
// the defaults.
func New(client bulb.Client, maxInFlight int, timeout time.Duration) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		client:      client,
		maxInFlight: maxInFlight,
		timeout:     timeout,
	}
}

// Dispatch validates cmd and issues it to every target concurrently,
// bounded by a counting semaphore. It returns exactly one result per
// unique target address and only returns once every target has
// resolved; one device failing or timing out never blocks the rest.
//
// Cancelling ctx stops new requests from being issued. Requests already
// in flight run to completion or their own timeout, so results obtained
// before cancellation stay valid; targets never started resolve as
// canceled.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd model.Command) (map[model.Address]model.CommandResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	targets := dedupe(cmd.Targets)

	log.Debug("Dispatching command",
		"kind", cmd.Kind, "targets", len(targets), "max_in_flight", d.maxInFlight)

	type indexed struct {
		addr   model.Address
		result model.CommandResult
	}

	// Size the semaphore to the batch, at least 8, never above the
	// configured ceiling.
	bound := len(targets)
	if bound < 8 {
		bound = 8
	}
	if bound > d.maxInFlight {
		bound = d.maxInFlight
	}

	sem := make(chan struct{}, bound)
	out := make(chan indexed, len(targets))

	for _, addr := range targets {
		go func(addr model.Address) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out <- indexed{addr, canceled(addr, ctx.Err())}
				return
			}
			if ctx.Err() != nil {
				out <- indexed{addr, canceled(addr, ctx.Err())}
				return
			}

			// Detach from ctx so an in-flight request finishes or times
			// out on its own clock after the batch is cancelled.
			reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
			defer cancel()

			out <- indexed{addr, d.send(reqCtx, cmd, addr)}
		}(addr)
	}

	results := make(map[model.Address]model.CommandResult, len(targets))
	for range targets {
		r := <-out
		results[r.addr] = r.result
	}
	return results, nil
}

// Execute is Dispatch followed by Aggregate, stamping the report with
// an ID and timing.
func (d *Dispatcher) Execute(ctx context.Context, cmd model.Command) (model.Report, error) {
	started := time.Now()
	results, err := d.Dispatch(ctx, cmd)
	if err != nil {
		return model.Report{}, err
	}

	report := Aggregate(cmd, results)
	report.Started = started
	report.Duration = time.Since(started)

	log.Info("Command dispatched",
		"id", report.ID, "kind", cmd.Kind, "outcome", report.Outcome,
		"targets", len(report.Results), "succeeded", report.Succeeded(),
		"duration", report.Duration)
	return report, nil
}

func (d *Dispatcher) send(ctx context.Context, cmd model.Command, addr model.Address) model.CommandResult {
	var (
		state model.DeviceState
		err   error
	)

	switch cmd.Kind {
	case model.CmdSetPower:
		state, err = d.client.SetPower(ctx, addr, cmd.Power)
	case model.CmdSetBrightness:
		state, err = d.client.SetBrightness(ctx, addr, cmd.Brightness)
	case model.CmdSetColor:
		state, err = d.client.SetColor(ctx, addr, cmd.Color)
	case model.CmdToggle:
		state, err = d.client.Toggle(ctx, addr)
	case model.CmdQueryStatus:
		state, err = d.client.Status(ctx, addr)
	}

	if err != nil {
		kind := bulb.Classify(err)
		log.Debug("Device request failed", "addr", addr, "kind", cmd.Kind, "failure", kind, "error", err)
		return model.CommandResult{Address: addr, Failure: kind, Error: err.Error()}
	}
	return model.CommandResult{Address: addr, State: &state}
}

func canceled(addr model.Address, cause error) model.CommandResult {
	msg := "dispatch canceled"
	if cause != nil {
		msg = cause.Error()
	}
	return model.CommandResult{Address: addr, Failure: model.FailCanceled, Error: msg}
}

func dedupe(addrs []model.Address) []model.Address {
	seen := make(map[model.Address]struct{}, len(addrs))
	out := make([]model.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
