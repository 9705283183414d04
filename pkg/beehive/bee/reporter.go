package bee

import (
	"context"
	"time"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
)

// Reporter observes what nodes do. The hive implements it on top of its
// logger, metrics and failure journal.
type Reporter interface {
	// Produced is called after a streamer pushed ev.
	Produced(ctx context.Context, streamer string, ev event.Event)

	// ProductionFailed is called when a production cycle ends with an error.
	ProductionFailed(ctx context.Context, err *bherrors.ProductionError)

	// Delivered is called after a listener handled ev. err is nil on success.
	Delivered(ctx context.Context, listener string, ev event.Event, d time.Duration, err error)

	// Lifecycle is called after a setup or teardown hook ran.
	Lifecycle(ctx context.Context, node string, phase bherrors.Phase, err error)
}

// NopReporter discards every report.
type NopReporter struct{}

// Produced implements Reporter.
func (NopReporter) Produced(context.Context, string, event.Event) {}

// ProductionFailed implements Reporter.
func (NopReporter) ProductionFailed(context.Context, *bherrors.ProductionError) {}

// Delivered implements Reporter.
func (NopReporter) Delivered(context.Context, string, event.Event, time.Duration, error) {}

// Lifecycle implements Reporter.
func (NopReporter) Lifecycle(context.Context, string, bherrors.Phase, error) {}

// Ensure NopReporter implements Reporter.
var _ Reporter = NopReporter{}
