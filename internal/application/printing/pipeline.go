package printing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/logger"
	infra "github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/sgpatel/secure-pdf-viewer/internal/application/printing"

// PipelineConfig wires the pipeline to its components
type PipelineConfig struct {
	Directory  printing.PrinterDirectory
	Rasterizer printing.Rasterizer
	Inspector  printing.Inspector
	Flattener  printing.Flattener
	Dispatcher printing.Dispatcher

	VirtualPrinters printing.VirtualPrinterPolicy
	// Redactions are painted over the rendered pages before flattening
	Redactions []printing.RedactionRegion
	// RenderDPI must match the rasterizer so redactions land in the right place
	RenderDPI float64
	// TempDir holds the per-job workspaces, defaults to the OS temp dir
	TempDir string
	// MaxConcurrentJobs caps running submissions, 0 means unlimited
	MaxConcurrentJobs int
	// WorkspaceOptions are applied to every per-job workspace
	WorkspaceOptions []infra.WorkspaceOption

	Metrics *telemetry.PrintMetrics
	Tracer  trace.Tracer
	Logger  *zap.Logger
}

// Pipeline turns a submitted PDF into an image-only copy and prints it.
// Each Submit owns its own workspace, and nothing else is shared between calls.
type Pipeline struct {
	directory  printing.PrinterDirectory
	rasterizer printing.Rasterizer
	inspector  printing.Inspector
	flattener  printing.Flattener
	dispatcher printing.Dispatcher

	virtualPrinters printing.VirtualPrinterPolicy
	redactions      []printing.RedactionRegion
	renderDPI       float64
	tempDir         string
	workspaceOpts   []infra.WorkspaceOption
	slots           *semaphore.Weighted

	metrics *telemetry.PrintMetrics
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewPipeline creates a new Pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		directory:       cfg.Directory,
		rasterizer:      cfg.Rasterizer,
		inspector:       cfg.Inspector,
		flattener:       cfg.Flattener,
		dispatcher:      cfg.Dispatcher,
		virtualPrinters: cfg.VirtualPrinters,
		redactions:      cfg.Redactions,
		renderDPI:       cfg.RenderDPI,
		tempDir:         cfg.TempDir,
		workspaceOpts:   cfg.WorkspaceOptions,
		metrics:         cfg.Metrics,
		tracer:          cfg.Tracer,
		logger:          cfg.Logger,
	}
	if p.renderDPI <= 0 {
		p.renderDPI = infra.DefaultRenderDPI
	}
	if cfg.MaxConcurrentJobs > 0 {
		p.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs))
	}
	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// ListPrinters returns the printers a user may choose. Virtual printers are
// hidden when the policy blocks them.
func (p *Pipeline) ListPrinters(ctx context.Context) ([]printing.PrinterName, error) {
	ctx, span := p.tracer.Start(ctx, "printing.ListPrinters")
	defer span.End()

	start := time.Now()
	printers, err := p.directory.ListPrinters(ctx)
	if err != nil {
		p.metrics.PrintersListed(ctx, time.Since(start), printing.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	p.metrics.PrintersListed(ctx, time.Since(start), "")

	visible := p.virtualPrinters.Filter(printers)
	span.SetAttributes(
		attribute.Int("printers.found", len(printers)),
		attribute.Int("printers.visible", len(visible)),
	)
	return visible, nil
}

// Inspect reports page count, encryption and page sizes of a document
func (p *Pipeline) Inspect(ctx context.Context, doc printing.SourceDocument) (*printing.DocumentInfo, error) {
	ctx, span := p.tracer.Start(ctx, "printing.Inspect")
	defer span.End()

	info, err := p.inspector.Inspect(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("document.pages", info.PageCount))
	return info, nil
}

// Submit rasterizes, flattens and prints req. A failure aborts the remaining
// stages and is returned unchanged apart from its stage annotation. Every
// temporary file is removed before Submit returns, and a cleanup failure is
// logged without replacing the result.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (result *SubmitResult, err error) {
	jobID := uuid.NewString()
	log := logger.For(ctx, p.logger).With(
		zap.String("job_id", jobID),
		zap.String("printer", req.Printer.String()),
	)

	ctx, span := p.tracer.Start(ctx, "printing.Submit", trace.WithAttributes(
		attribute.String("print.job_id", jobID),
		attribute.String("print.printer", req.Printer.String()),
	))
	defer span.End()

	start := time.Now()
	p.metrics.JobStarted(ctx)
	defer func() {
		if err != nil {
			stage := printing.StageOf(err)
			p.metrics.JobFinished(ctx, time.Since(start), string(stage), printing.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("print job failed",
				zap.String("stage", string(stage)),
				zap.String("code", printing.CodeOf(err)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		p.metrics.JobFinished(ctx, time.Since(start), "", "")
		p.metrics.PagesPrinted(ctx, result.PageCount)
		log.Info("print job completed",
			zap.Int("pages", result.PageCount),
			zap.String("spool_job_id", result.SpoolJobID),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	if req.Printer.IsEmpty() {
		return nil, printing.NewPrintError(printing.ErrCodePrinterNotFound, "printer name is required", nil)
	}
	if err := p.virtualPrinters.Check(req.Printer); err != nil {
		return nil, err
	}

	if p.slots != nil {
		if err := p.slots.Acquire(ctx, 1); err != nil {
			return nil, printing.FromContextError(err, "waiting for a free print slot")
		}
		defer p.slots.Release(1)
	}

	ws, err := infra.NewWorkspace(p.tempDir, log, p.workspaceOpts...)
	if err != nil {
		return nil, printing.AtStage(printing.StageWriteSource, err)
	}
	defer func() {
		if releaseErr := ws.Release(); releaseErr != nil {
			p.metrics.CleanupFailed(ctx)
			log.Error("temporary files were not removed",
				zap.Strings("paths", ws.Paths()),
				zap.Error(releaseErr),
			)
		}
	}()

	if err := p.stage(ctx, printing.StageWriteSource, func(context.Context) error {
		_, err := ws.Write(".pdf", req.Document.Data)
		return err
	}); err != nil {
		return nil, err
	}

	var pages []printing.PageImage
	if err := p.stage(ctx, printing.StageRasterize, func(ctx context.Context) error {
		var err error
		pages, err = p.rasterizer.Rasterize(ctx, req.Document)
		return err
	}); err != nil {
		return nil, err
	}

	if len(p.redactions) > 0 {
		_ = p.stage(ctx, printing.StageRedact, func(context.Context) error {
			n := printing.ApplyRedactions(pages, p.redactions, p.renderDPI)
			log.Debug("redactions applied", zap.Int("regions", n))
			return nil
		})
	}

	var flat *printing.FlattenedDocument
	if err := p.stage(ctx, printing.StageFlatten, func(ctx context.Context) error {
		var err error
		flat, err = p.flattener.Flatten(ctx, pages)
		return err
	}); err != nil {
		return nil, err
	}
	if flat.PageCount != len(pages) {
		return nil, printing.AtStage(printing.StageFlatten, printing.NewPrintError(printing.ErrCodeEncodingFailed,
			fmt.Sprintf("flattened document has %d pages, source has %d", flat.PageCount, len(pages)), nil))
	}
	pages = nil

	var flatPath string
	if err := p.stage(ctx, printing.StageWriteFlattened, func(context.Context) error {
		var err error
		flatPath, err = ws.Write("-flat.pdf", flat.Data)
		return err
	}); err != nil {
		return nil, err
	}

	var spoolJobID string
	if err := p.stage(ctx, printing.StageDispatch, func(ctx context.Context) error {
		var err error
		spoolJobID, err = p.dispatcher.Dispatch(ctx, flatPath, req.Printer)
		return err
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("print.pages", flat.PageCount))
	return &SubmitResult{
		JobID:      jobID,
		Printer:    req.Printer,
		PageCount:  flat.PageCount,
		SpoolJobID: spoolJobID,
		Message:    fmt.Sprintf("Document sent to printer %s", req.Printer.String()),
	}, nil
}

// stage runs fn in a child span under a stage profiling label, records its
// duration and tags any error with stage
func (p *Pipeline) stage(ctx context.Context, stage printing.Stage, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "printing."+string(stage))
	defer span.End()

	start := time.Now()
	var err error
	telemetry.WithStageLabel(ctx, string(stage), func(ctx context.Context) {
		err = fn(ctx)
	})
	p.metrics.StageCompleted(ctx, string(stage), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return printing.AtStage(stage, err)
	}
	return nil
}
