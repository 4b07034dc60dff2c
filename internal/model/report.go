package model

import (
	"time"
)

// FailureKind classifies a per-address dispatch failure.
type FailureKind string

const (
	FailTimeout     FailureKind = "timeout"
	FailUnreachable FailureKind = "unreachable"
	FailProtocol    FailureKind = "protocol_error"
	FailCanceled    FailureKind = "canceled"
)

// CommandResult is the outcome of one command for one address: either a
// new device state or a failure classification, never both.
type CommandResult struct {
	Address Address      `json:"address"`
	State   *DeviceState `json:"state,omitempty"`
	Failure FailureKind  `json:"failure,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// OK reports whether the device completed the command.
func (r CommandResult) OK() bool {
	return r.Failure == ""
}

// Outcome is the overall result of a dispatch across all targets.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailure        Outcome = "failure"
)

// Report aggregates the per-address results of one dispatched command.
// The breakdown always covers every target, whatever the overall outcome.
type Report struct {
	ID       string          `json:"id"`
	Kind     CommandKind     `json:"kind"`
	Outcome  Outcome         `json:"outcome"`
	Results  []CommandResult `json:"results"` // ordered by address
	Started  time.Time       `json:"started"`
	Duration time.Duration   `json:"duration"`
}

// Succeeded counts targets that completed the command.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Result returns the entry for addr and whether one exists.
func (r Report) Result(addr Address) (CommandResult, bool) {
	for _, res := range r.Results {
		if res.Address == addr {
			return res, true
		}
	}
	return CommandResult{}, false
}
