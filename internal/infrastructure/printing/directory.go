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

const defaultListTimeout = 10 * time.Second

// listStrategy builds the platform listing command and parses its output
type listStrategy struct {
	command func(d *OSDirectory) (string, []string)
	parse   func(output string) []printing.PrinterName
}

var posixPrinterLine = regexp.MustCompile(`^printer\s+(\S+)`)

var posixListStrategy = listStrategy{
	command: func(d *OSDirectory) (string, []string) {
		return d.lpstat, []string{"-p"}
	},
	parse: parsePrefixedLines,
}

// listStrategies is keyed by runtime.GOOS. Supporting another platform only
// needs a new entry here.
var listStrategies = map[string]listStrategy{
	"windows": {
		command: func(*OSDirectory) (string, []string) {
			return "powershell", []string{
				"-NoProfile", "-NonInteractive", "-Command",
				"Get-Printer | Select-Object -ExpandProperty Name",
			}
		},
		parse: parseTrimmedLines,
	},
	"linux":   posixListStrategy,
	"darwin":  posixListStrategy,
	"freebsd": posixListStrategy,
}

// parseTrimmedLines returns every non-blank line, trimmed
func parseTrimmedLines(output string) []printing.PrinterName {
	names := make([]printing.PrinterName, 0)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, printing.PrinterName(line))
		}
	}
	return names
}

// parsePrefixedLines returns the token after the leading "printer" marker of
// each lpstat line. Lines without the marker are skipped.
func parsePrefixedLines(output string) []printing.PrinterName {
	names := make([]printing.PrinterName, 0)
	for _, line := range strings.Split(output, "\n") {
		m := posixPrinterLine.FindStringSubmatch(strings.TrimSpace(line))
		if m != nil {
			names = append(names, printing.PrinterName(m[1]))
		}
	}
	return names
}

// OSDirectoryConfig contains configuration for OSDirectory
type OSDirectoryConfig struct {
	// GOOS selects the listing strategy, defaults to runtime.GOOS
	GOOS string
	// LpstatCommand is the POSIX listing binary, defaults to "lpstat"
	LpstatCommand string
	// Timeout bounds a single listing call
	Timeout time.Duration
	Runner  CommandRunner
	Logger  *zap.Logger
}

// OSDirectory lists printers with the host's print commands
type OSDirectory struct {
	goos    string
	lpstat  string
	timeout time.Duration
	runner  CommandRunner
	logger  *zap.Logger
}

// NewOSDirectory creates a new OSDirectory
func NewOSDirectory(cfg OSDirectoryConfig) *OSDirectory {
	d := &OSDirectory{
		goos:    cfg.GOOS,
		lpstat:  cfg.LpstatCommand,
		timeout: cfg.Timeout,
		runner:  cfg.Runner,
		logger:  cfg.Logger,
	}
	if d.goos == "" {
		d.goos = runtime.GOOS
	}
	if d.lpstat == "" {
		d.lpstat = "lpstat"
	}
	if d.timeout <= 0 {
		d.timeout = defaultListTimeout
	}
	if d.runner == nil {
		d.runner = ExecRunner{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// ListPrinters returns the printers currently known to the OS. Nothing is cached.
func (d *OSDirectory) ListPrinters(ctx context.Context) ([]printing.PrinterName, error) {
	strategy, ok := listStrategies[d.goos]
	if !ok {
		return nil, printing.NewPrintError(printing.ErrCodePlatformUnsupported,
			fmt.Sprintf("printer listing is not supported on %s", d.goos), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	name, args := strategy.command(d)
	result, err := d.runner.Run(ctx, name, args...)
	if result == nil {
		result = &CommandResult{}
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", d.timeout, err)
		}
		d.logger.Warn("printer listing command failed",
			zap.String("command", name),
			zap.String("stderr", result.Diagnostic()),
			zap.Error(err),
		)
		return nil, printing.NewPrintError(printing.ErrCodeCommandFailed,
			commandFailureMessage(name, result), err)
	}

	if stderr := strings.TrimSpace(string(result.Stderr)); stderr != "" {
		d.logger.Warn("printer listing command wrote to stderr",
			zap.String("command", name),
			zap.String("stderr", stderr),
		)
		return nil, printing.NewPrintError(printing.ErrCodeCommandFailed,
			fmt.Sprintf("%s reported an error", name), errors.New(stderr))
	}

	return strategy.parse(string(result.Stdout)), nil
}

func commandFailureMessage(name string, result *CommandResult) string {
	if msg := result.Diagnostic(); msg != "" {
		return fmt.Sprintf("%s failed: %s", name, msg)
	}
	return fmt.Sprintf("%s failed", name)
}

var _ printing.PrinterDirectory = (*OSDirectory)(nil)
