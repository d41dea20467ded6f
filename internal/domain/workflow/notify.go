package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// Notifier is told about save and submit outcomes so they can be surfaced.
type Notifier interface {
	DraftSaved(ctx context.Context, id model.Identity, at time.Time)
	DraftSaveFailed(ctx context.Context, id model.Identity, err error)
	Submitted(ctx context.Context, sub model.Submission)
	SubmitFailed(ctx context.Context, id model.Identity, err error)
}

// LogNotifier logs outcomes and counts submissions.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a notifier writing to l, or to the global logger when l is nil.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	return &LogNotifier{log: logger.OrGet(l, "workflow.notify")}
}

// DraftSaved implements Notifier.
func (n *LogNotifier) DraftSaved(ctx context.Context, id model.Identity, at time.Time) {
	n.log.Debug(ctx, "draft saved", logger.String("identity", id.String()), logger.Time("saved_at", at))
}

// DraftSaveFailed implements Notifier.
func (n *LogNotifier) DraftSaveFailed(ctx context.Context, id model.Identity, err error) {
	n.log.Warn(ctx, "draft save failed, edits kept in memory",
		logger.String("identity", id.String()), logger.Error(err))
}

// Submitted implements Notifier.
func (n *LogNotifier) Submitted(ctx context.Context, sub model.Submission) {
	metrics.RecordSubmission("ok")
	n.log.Info(ctx, "submission saved",
		logger.String("identity", sub.Identity.String()), logger.Int("fields", len(sub.Fields)))
}

// SubmitFailed implements Notifier.
func (n *LogNotifier) SubmitFailed(ctx context.Context, id model.Identity, err error) {
	if errors.Is(err, ErrValidationFailed) {
		metrics.RecordSubmission("invalid")
		n.log.Info(ctx, "submission rejected", logger.String("identity", id.String()), logger.Error(err))
		return
	}
	metrics.RecordSubmission("failed")
	n.log.Error(ctx, "submission failed", logger.String("identity", id.String()), logger.Error(err))
}
