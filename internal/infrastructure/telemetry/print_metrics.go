package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys used by print pipeline metrics.
var (
	AttrOutcome = attribute.Key("outcome")
	AttrStage   = attribute.Key("stage")
	AttrCode    = attribute.Key("error_code")
	AttrBackend = attribute.Key("backend")
)

// Outcome values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// PrintMetrics holds the instruments recorded by the print pipeline.
// A nil *PrintMetrics records nothing.
type PrintMetrics struct {
	backend             attribute.KeyValue
	jobsTotal           *Counter
	pagesTotal          *Counter
	cleanupFailures     *Counter
	jobsInFlight        *UpDownCounter
	jobDuration         *Histogram
	stageDuration       *Histogram
	printerListDuration *Histogram
}

// NewPrintMetrics creates the print pipeline instruments on meter. Job, page
// and printer-list series are tagged with the printer backend in use.
func NewPrintMetrics(meter metric.Meter, backend string) (*PrintMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	pm := &PrintMetrics{backend: AttrBackend.String(backend)}
	var err error

	if pm.jobsTotal, err = NewCounter(meter, "print_jobs_total", "Print submissions by outcome and failing stage", "{jobs}"); err != nil {
		return nil, err
	}
	if pm.pagesTotal, err = NewCounter(meter, "print_pages_total", "Pages rasterized and dispatched", "{pages}"); err != nil {
		return nil, err
	}
	if pm.cleanupFailures, err = NewCounter(meter, "print_cleanup_failures_total", "Temporary artifacts that could not be removed", "{files}"); err != nil {
		return nil, err
	}
	if pm.jobsInFlight, err = NewUpDownCounter(meter, "print_jobs_in_flight", "Print pipeline runs currently executing", "{jobs}"); err != nil {
		return nil, err
	}
	if pm.jobDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "print_job_duration_seconds",
		Description: "End to end print pipeline duration",
		Unit:        "s",
		Boundaries:  PipelineDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if pm.stageDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "print_stage_duration_seconds",
		Description: "Duration of a single print pipeline stage",
		Unit:        "s",
		Boundaries:  PipelineDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if pm.printerListDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "printer_list_duration_seconds",
		Description: "Duration of printer enumeration",
		Unit:        "s",
	}); err != nil {
		return nil, err
	}

	return pm, nil
}

// JobStarted marks a pipeline run as in flight.
func (pm *PrintMetrics) JobStarted(ctx context.Context) {
	if pm == nil {
		return
	}
	pm.jobsInFlight.Add(ctx, 1)
}

// JobFinished records the outcome of a pipeline run. stage and code are empty on success.
func (pm *PrintMetrics) JobFinished(ctx context.Context, d time.Duration, stage, code string) {
	if pm == nil {
		return
	}
	pm.jobsInFlight.Add(ctx, -1)

	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeFailure
	}
	pm.jobsTotal.Inc(ctx, pm.backend, AttrOutcome.String(outcome), AttrStage.String(stage), AttrCode.String(code))
	pm.jobDuration.RecordDuration(ctx, d, pm.backend, AttrOutcome.String(outcome))
}

// StageCompleted records how long one stage took.
func (pm *PrintMetrics) StageCompleted(ctx context.Context, stage string, d time.Duration) {
	if pm == nil {
		return
	}
	pm.stageDuration.RecordDuration(ctx, d, AttrStage.String(stage))
}

// PagesPrinted adds n dispatched pages.
func (pm *PrintMetrics) PagesPrinted(ctx context.Context, n int) {
	if pm == nil || n <= 0 {
		return
	}
	pm.pagesTotal.Add(ctx, int64(n), pm.backend)
}

// CleanupFailed counts a temporary artifact that could not be removed.
func (pm *PrintMetrics) CleanupFailed(ctx context.Context) {
	if pm == nil {
		return
	}
	pm.cleanupFailures.Inc(ctx)
}

// PrintersListed records a printer enumeration.
func (pm *PrintMetrics) PrintersListed(ctx context.Context, d time.Duration, code string) {
	if pm == nil {
		return
	}
	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeFailure
	}
	pm.printerListDuration.RecordDuration(ctx, d, pm.backend, AttrOutcome.String(outcome), AttrCode.String(code))
}
