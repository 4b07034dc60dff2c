package dispatch

import (
	"sort"

	"github.com/google/uuid"

	"github.com/martinsuchenak/bulbs/internal/model"
)

// Aggregate merges per-address results into one report. The outcome is
// success only when every address succeeded; partial_failure when at
// least one succeeded and at least one failed; failure when none did.
// Every result appears in the breakdown verbatim, ordered by address.
func Aggregate(cmd model.Command, results map[model.Address]model.CommandResult) model.Report {
	ordered := make([]model.CommandResult, 0, len(results))
	for _, r := range results {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Address.Less(ordered[j].Address)
	})

	succeeded := 0
	for _, r := range ordered {
		if r.OK() {
			succeeded++
		}
	}

	var outcome model.Outcome
	switch {
	case succeeded == len(ordered):
		outcome = model.OutcomeSuccess
	case succeeded > 0:
		outcome = model.OutcomePartialFailure
	default:
		outcome = model.OutcomeFailure
	}

	return model.Report{
		ID:      uuid.NewString(),
		Kind:    cmd.Kind,
		Outcome: outcome,
		Results: ordered,
	}
}
