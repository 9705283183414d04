package beehive

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
	"github.com/randalmurphal/beehive/pkg/beehive/journal"
	"github.com/randalmurphal/beehive/pkg/beehive/observability"
)

// reporter fans node reports out to the hive's logger, metrics and journal.
type reporter struct {
	h *Hive
}

var _ bee.Reporter = (*reporter)(nil)

func (r *reporter) Produced(ctx context.Context, streamer string, _ event.Event) {
	r.h.metrics.RecordProduced(ctx, streamer, nil)
}

func (r *reporter) ProductionFailed(ctx context.Context, err *bherrors.ProductionError) {
	observability.LogProductionError(r.h.runLogger, err.Streamer, err.Err)
	r.h.metrics.RecordProduced(ctx, err.Streamer, err)
	r.record(err)
}

func (r *reporter) Delivered(ctx context.Context, listener string, ev event.Event, d time.Duration, err error) {
	r.h.metrics.RecordDelivery(ctx, listener, d, err)
	if err == nil {
		return
	}
	observability.LogDeliveryError(r.h.runLogger, listener, ev.ID(), err)
	r.record(err)
}

func (r *reporter) Lifecycle(ctx context.Context, node string, phase bherrors.Phase, err error) {
	observability.LogLifecycle(r.h.runLogger, node, string(phase), err)
	r.h.metrics.RecordLifecycle(ctx, node, string(phase), err)
	if err != nil {
		r.record(err)
	}
}

func (r *reporter) record(err error) {
	if r.h.journal == nil || !bherrors.IsIsolated(err) {
		return
	}
	entry, ok := journal.FromError(r.h.runID, err)
	if !ok {
		return
	}
	if jerr := r.h.journal.Record(entry); jerr != nil {
		r.h.runLogger.Warn("journal record failed",
			slog.String("kind", string(entry.Kind)),
			slog.String("node", entry.Node),
			slog.String("error", jerr.Error()),
		)
	}
}
