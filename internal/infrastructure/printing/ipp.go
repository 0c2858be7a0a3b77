package printing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/phin1x/go-ipp"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"go.uber.org/zap"
)

// IPP status client-error-not-found
const ippStatusNotFound = 0x0406

// ippClient is the subset of the go-ipp CUPS client used here
type ippClient interface {
	GetPrinters(attributes []string) (map[string]ipp.Attributes, error)
	PrintFile(filePath, printer string, jobAttributes map[string]interface{}) (int, error)
}

// IPPConfig contains connection settings for an IPP/CUPS server
type IPPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	// Timeout bounds each IPP request
	Timeout time.Duration
	Logger  *zap.Logger
}

// IPPBackend lists and prints through an IPP server. It implements both
// PrinterDirectory and Dispatcher.
type IPPBackend struct {
	client  ippClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewIPPBackend creates an IPPBackend connected to a CUPS server
func NewIPPBackend(cfg IPPConfig) *IPPBackend {
	client := ipp.NewCUPSClient(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.TLS)
	return newIPPBackend(client, cfg.Timeout, cfg.Logger)
}

func newIPPBackend(client ippClient, timeout time.Duration, logger *zap.Logger) *IPPBackend {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPPBackend{client: client, timeout: timeout, logger: logger}
}

// ListPrinters returns the queue names reported by the IPP server
func (b *IPPBackend) ListPrinters(ctx context.Context) ([]printing.PrinterName, error) {
	var printers map[string]ipp.Attributes
	err := b.call(ctx, func() error {
		var err error
		printers, err = b.client.GetPrinters([]string{"printer-name"})
		return err
	})
	if err != nil {
		b.logger.Warn("IPP printer listing failed", zap.Error(err))
		return nil, printing.NewPrintError(printing.ErrCodeCommandFailed, "IPP printer listing failed", err)
	}

	names := make([]string, 0, len(printers))
	for name := range printers {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	result := make([]printing.PrinterName, len(names))
	for i, name := range names {
		result[i] = printing.PrinterName(name)
	}
	return result, nil
}

// Dispatch submits filePath as a print job and returns the IPP job id
func (b *IPPBackend) Dispatch(ctx context.Context, filePath string, printer printing.PrinterName) (string, error) {
	var jobID int
	err := b.call(ctx, func() error {
		var err error
		jobID, err = b.client.PrintFile(filePath, printer.String(), map[string]interface{}{
			"job-name": "secure-print",
		})
		return err
	})
	if err != nil {
		if perr, ok := err.(*printing.PrintError); ok {
			return "", perr
		}
		b.logger.Warn("IPP print job failed",
			zap.String("printer", printer.String()),
			zap.Error(err),
		)
		if isIPPNotFound(err) {
			return "", printing.NewPrintError(printing.ErrCodePrinterNotFound,
				fmt.Sprintf("printer %q not found", printer.String()), err)
		}
		return "", printing.NewPrintError(printing.ErrCodeSpoolFailed, "IPP server rejected the job", err)
	}

	b.logger.Info("print job submitted over IPP",
		zap.String("printer", printer.String()),
		zap.Int("ipp_job_id", jobID),
	)
	return strconv.Itoa(jobID), nil
}

// call runs fn and returns early with TIMEOUT or CANCELED when ctx ends first.
// go-ipp requests are not context aware, so an abandoned request finishes in
// the background.
func (b *IPPBackend) call(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return printing.FromContextError(ctx.Err(), "IPP request did not finish")
	}
}

func isIPPNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not-found") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, strconv.Itoa(ippStatusNotFound))
}

var (
	_ printing.PrinterDirectory = (*IPPBackend)(nil)
	_ printing.Dispatcher       = (*IPPBackend)(nil)
)
