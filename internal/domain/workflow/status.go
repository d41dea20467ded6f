package workflow

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
)

// MonthState summarizes a subject's progress for one period.
type MonthState string

// Month states.
const (
	MonthCompleted MonthState = "completed"
	MonthPartial   MonthState = "partial"
	MonthEmpty     MonthState = "empty"
)

// MonthStatus pairs a period with its state.
type MonthStatus struct {
	Period period.Key `json:"period"`
	Label  string     `json:"label"`
	State  MonthState `json:"state"`
}

// statusLookups bounds concurrent store lookups.
const statusLookups = 4

// MonthStatuses reports, per period, whether a final submission exists
// (completed), only a draft exists (partial), or neither (empty). The result
// keeps the order of periods.
func MonthStatuses(ctx context.Context, subs SubmissionStore, drafts *draft.Store, subject string, periods []period.Key) ([]MonthStatus, error) {
	out := make([]MonthStatus, len(periods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusLookups)
	for i, p := range periods {
		g.Go(func() error {
			id := model.Identity{SubjectKey: subject, Period: p}
			state, err := monthState(gctx, subs, drafts, id)
			if err != nil {
				return err
			}
			out[i] = MonthStatus{Period: p, Label: p.ShortLabel(), State: state}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func monthState(ctx context.Context, subs SubmissionStore, drafts *draft.Store, id model.Identity) (MonthState, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	done, err := subs.Exists(ctx, id)
	if err != nil {
		return "", persistenceErr("status", id, err)
	}
	if done {
		return MonthCompleted, nil
	}
	partial, err := drafts.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if partial {
		return MonthPartial, nil
	}
	return MonthEmpty, nil
}
