package printing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"go.uber.org/zap"
)

const defaultDispatchTimeout = 60 * time.Second

// dispatchStrategy builds the platform print command for a file and printer
type dispatchStrategy func(d *OSDispatcher, filePath string, printer printing.PrinterName) (string, []string)

var lpDispatch dispatchStrategy = func(d *OSDispatcher, filePath string, printer printing.PrinterName) (string, []string) {
	return d.lp, []string{"-d", printer.String(), filePath}
}

// dispatchStrategies is keyed by runtime.GOOS
var dispatchStrategies = map[string]dispatchStrategy{
	"windows": func(d *OSDispatcher, filePath string, printer printing.PrinterName) (string, []string) {
		return d.windowsPrint, []string{"-print-to", printer.String(), "-silent", filePath}
	},
	"linux":   lpDispatch,
	"darwin":  lpDispatch,
	"freebsd": lpDispatch,
}

// lp prints "request id is Office-LaserJet-42 (1 file(s))"
var lpRequestID = regexp.MustCompile(`request id is (\S+)`)

// Spooler messages that mean the queue does not exist
var printerNotFoundMarkers = []string{
	"does not exist",
	"unknown destination",
	"no such printer",
	"printer not found",
	"invalid printer",
	"not a valid printer",
}

func isPrinterNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range printerNotFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// OSDispatcherConfig contains configuration for OSDispatcher
type OSDispatcherConfig struct {
	// GOOS selects the dispatch strategy, defaults to runtime.GOOS
	GOOS string
	// LpCommand is the POSIX print binary, defaults to "lp"
	LpCommand string
	// WindowsPrintCommand is the SumatraPDF executable, defaults to "SumatraPDF.exe"
	WindowsPrintCommand string
	// Timeout bounds a single dispatch call
	Timeout time.Duration
	Runner  CommandRunner
	Logger  *zap.Logger
}

// OSDispatcher sends files to a print queue with the host's print commands
type OSDispatcher struct {
	goos         string
	lp           string
	windowsPrint string
	timeout      time.Duration
	runner       CommandRunner
	logger       *zap.Logger
}

// NewOSDispatcher creates a new OSDispatcher
func NewOSDispatcher(cfg OSDispatcherConfig) *OSDispatcher {
	d := &OSDispatcher{
		goos:         cfg.GOOS,
		lp:           cfg.LpCommand,
		windowsPrint: cfg.WindowsPrintCommand,
		timeout:      cfg.Timeout,
		runner:       cfg.Runner,
		logger:       cfg.Logger,
	}
	if d.goos == "" {
		d.goos = runtime.GOOS
	}
	if d.lp == "" {
		d.lp = "lp"
	}
	if d.windowsPrint == "" {
		d.windowsPrint = "SumatraPDF.exe"
	}
	if d.timeout <= 0 {
		d.timeout = defaultDispatchTimeout
	}
	if d.runner == nil {
		d.runner = ExecRunner{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// Dispatch hands filePath to printer and waits for the spooler to answer.
// Printer existence is not checked beforehand; the spooler decides.
func (d *OSDispatcher) Dispatch(ctx context.Context, filePath string, printer printing.PrinterName) (string, error) {
	strategy, ok := dispatchStrategies[d.goos]
	if !ok {
		return "", printing.NewPrintError(printing.ErrCodePlatformUnsupported,
			fmt.Sprintf("printing is not supported on %s", d.goos), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	name, args := strategy(d, filePath, printer)
	start := time.Now()
	result, err := d.runner.Run(ctx, name, args...)
	if result == nil {
		result = &CommandResult{}
	}
	if err != nil {
		return "", d.classify(ctx, name, printer, result, err)
	}

	jobID := ""
	if m := lpRequestID.FindSubmatch(result.Stdout); m != nil {
		jobID = string(m[1])
	}

	d.logger.Info("print job spooled",
		zap.String("printer", printer.String()),
		zap.String("command", name),
		zap.String("spool_job_id", jobID),
		zap.Duration("duration", time.Since(start)),
	)
	return jobID, nil
}

func (d *OSDispatcher) classify(ctx context.Context, name string, printer printing.PrinterName, result *CommandResult, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		d.logger.Warn("print command did not finish",
			zap.String("printer", printer.String()),
			zap.Duration("timeout", d.timeout),
			zap.Error(ctxErr),
		)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return printing.NewPrintError(printing.ErrCodeTimeout,
				fmt.Sprintf("%s did not finish within %s", name, d.timeout), ctxErr)
		}
		return printing.FromContextError(ctxErr, "print dispatch cancelled")
	}

	diagnostic := result.Diagnostic()
	d.logger.Warn("print command failed",
		zap.String("printer", printer.String()),
		zap.String("command", name),
		zap.String("output", diagnostic),
		zap.Error(err),
	)

	cause := err
	if diagnostic != "" {
		cause = fmt.Errorf("%s: %w", diagnostic, err)
	}
	if isPrinterNotFound(diagnostic) {
		return printing.NewPrintError(printing.ErrCodePrinterNotFound,
			fmt.Sprintf("printer %q not found", printer.String()), cause)
	}
	return printing.NewPrintError(printing.ErrCodeSpoolFailed,
		fmt.Sprintf("%s could not spool the job", name), cause)
}

var _ printing.Dispatcher = (*OSDispatcher)(nil)
