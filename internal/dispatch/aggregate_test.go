package dispatch

import (
	"fmt"
	"sort"
	"testing"

	"pgregory.net/rapid"

	"github.com/martinsuchenak/bulbs/internal/model"
)

func TestAggregateOutcome(t *testing.T) {
	on := model.DeviceState{Power: true}
	a, b := addr("10.0.0.1"), addr("10.0.0.2")

	tests := []struct {
		name    string
		results map[model.Address]model.CommandResult
		want    model.Outcome
	}{
		{
			name: "all succeed",
			results: map[model.Address]model.CommandResult{
				a: {Address: a, State: &on},
				b: {Address: b, State: &on},
			},
			want: model.OutcomeSuccess,
		},
		{
			name: "mixed",
			results: map[model.Address]model.CommandResult{
				a: {Address: a, State: &on},
				b: {Address: b, Failure: model.FailTimeout, Error: "deadline exceeded"},
			},
			want: model.OutcomePartialFailure,
		},
		{
			name: "all fail",
			results: map[model.Address]model.CommandResult{
				a: {Address: a, Failure: model.FailUnreachable, Error: "refused"},
				b: {Address: b, Failure: model.FailTimeout, Error: "deadline exceeded"},
			},
			want: model.OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Aggregate(model.SetPower(true, a, b), tt.results)
			if report.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", report.Outcome, tt.want)
			}
			if report.Kind != model.CmdSetPower {
				t.Errorf("Kind = %s, want %s", report.Kind, model.CmdSetPower)
			}
			if report.ID == "" {
				t.Error("report has no ID")
			}
		})
	}
}

func TestAggregateOrdersResultsByAddress(t *testing.T) {
	results := make(map[model.Address]model.CommandResult)
	var targets []model.Address
	for _, host := range []string{"10.0.0.9", "10.0.0.1", "192.168.1.4", "10.0.0.30"} {
		a := addr(host)
		targets = append(targets, a)
		results[a] = model.CommandResult{Address: a, State: &model.DeviceState{}}
	}

	report := Aggregate(model.QueryStatus(targets...), results)
	if !sort.SliceIsSorted(report.Results, func(i, j int) bool {
		return report.Results[i].Address.Less(report.Results[j].Address)
	}) {
		t.Errorf("results not ordered by address: %v", report.Results)
	}
}

func TestAggregateProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 32).Draw(t, "targets")
		failures := []model.FailureKind{
			model.FailTimeout, model.FailUnreachable,
			model.FailProtocol, model.FailCanceled,
		}

		results := make(map[model.Address]model.CommandResult, n)
		var targets []model.Address
		succeeded := 0
		for i := 0; i < n; i++ {
			a := addr(fmt.Sprintf("10.0.%d.%d", i/250, i%250+1))
			targets = append(targets, a)
			if rapid.Bool().Draw(t, fmt.Sprintf("ok-%d", i)) {
				st := model.DeviceState{
					Power:      rapid.Bool().Draw(t, fmt.Sprintf("power-%d", i)),
					Brightness: rapid.IntRange(0, model.MaxBrightness).Draw(t, fmt.Sprintf("bri-%d", i)),
				}
				results[a] = model.CommandResult{Address: a, State: &st}
				succeeded++
			} else {
				kind := rapid.SampledFrom(failures).Draw(t, fmt.Sprintf("fail-%d", i))
				results[a] = model.CommandResult{Address: a, Failure: kind, Error: "scripted"}
			}
		}

		report := Aggregate(model.QueryStatus(targets...), results)

		if len(report.Results) != n {
			t.Fatalf("got %d results, want %d", len(report.Results), n)
		}
		if report.Succeeded() != succeeded {
			t.Fatalf("Succeeded() = %d, want %d", report.Succeeded(), succeeded)
		}

		var want model.Outcome
		switch {
		case succeeded == n:
			want = model.OutcomeSuccess
		case succeeded > 0:
			want = model.OutcomePartialFailure
		default:
			want = model.OutcomeFailure
		}
		if report.Outcome != want {
			t.Fatalf("Outcome = %s, want %s (succeeded %d of %d)", report.Outcome, want, succeeded, n)
		}

		// Each per-device result must appear verbatim.
		for _, r := range report.Results {
			in, ok := results[r.Address]
			if !ok {
				t.Fatalf("result for unknown address %s", r.Address)
			}
			if r.Failure != in.Failure || r.Error != in.Error || (r.State == nil) != (in.State == nil) {
				t.Fatalf("result for %s altered: got %+v, want %+v", r.Address, r, in)
			}
		}
	})
}
