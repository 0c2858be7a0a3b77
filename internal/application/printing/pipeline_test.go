package printing

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	infra "github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/printing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Mock implementations

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListPrinters(ctx context.Context) ([]printing.PrinterName, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]printing.PrinterName), args.Error(1)
}

type MockRasterizer struct {
	mock.Mock
}

func (m *MockRasterizer) Rasterize(ctx context.Context, doc printing.SourceDocument) ([]printing.PageImage, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]printing.PageImage), args.Error(1)
}

func (m *MockRasterizer) Inspect(ctx context.Context, doc printing.SourceDocument) (*printing.DocumentInfo, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*printing.DocumentInfo), args.Error(1)
}

type MockFlattener struct {
	mock.Mock
}

func (m *MockFlattener) Flatten(ctx context.Context, pages []printing.PageImage) (*printing.FlattenedDocument, error) {
	args := m.Called(ctx, pages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*printing.FlattenedDocument), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, filePath string, printer printing.PrinterName) (string, error) {
	args := m.Called(ctx, filePath, printer)
	return args.String(0), args.Error(1)
}

// Test helpers

type pipelineMocks struct {
	directory  *MockDirectory
	rasterizer *MockRasterizer
	flattener  *MockFlattener
	dispatcher *MockDispatcher
	tempDir    string
}

func newTestPipeline(t *testing.T, modify func(*PipelineConfig)) (*Pipeline, *pipelineMocks) {
	t.Helper()
	m := &pipelineMocks{
		directory:  new(MockDirectory),
		rasterizer: new(MockRasterizer),
		flattener:  new(MockFlattener),
		dispatcher: new(MockDispatcher),
		tempDir:    t.TempDir(),
	}
	cfg := PipelineConfig{
		Directory:       m.directory,
		Rasterizer:      m.rasterizer,
		Inspector:       m.rasterizer,
		Flattener:       m.flattener,
		Dispatcher:      m.dispatcher,
		VirtualPrinters: printing.NewVirtualPrinterPolicy(true, printing.DefaultVirtualPrinterKeywords),
		TempDir:         m.tempDir,
	}
	if modify != nil {
		modify(&cfg)
	}
	return NewPipeline(cfg), m
}

func testPages(n int) []printing.PageImage {
	pages := make([]printing.PageImage, n)
	for i := range pages {
		pages[i] = printing.PageImage{Number: i + 1, Image: image.NewRGBA(image.Rect(0, 0, 10, 10))}
	}
	return pages
}

func assertNoArtifacts(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary artifacts left behind")
}

var onePagePDF = []byte("%PDF-1.7 one page")

// Tests

func TestPipeline_Submit_Success(t *testing.T) {
	p, m := newTestPipeline(t, nil)
	ctx := context.Background()
	doc := printing.SourceDocument{Data: onePagePDF}
	pages := testPages(1)

	m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
	m.flattener.On("Flatten", mock.Anything, pages).
		Return(&printing.FlattenedDocument{Data: []byte("%PDF flat"), PageCount: 1}, nil)
	m.dispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("string"), printing.PrinterName("Office-LaserJet")).
		Run(func(args mock.Arguments) {
			data, err := os.ReadFile(args.String(1))
			require.NoError(t, err)
			assert.Equal(t, "%PDF flat", string(data))
		}).
		Return("Office-LaserJet-7", nil)

	result, err := p.Submit(ctx, SubmitRequest{Document: doc, Printer: "Office-LaserJet"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PageCount)
	assert.Equal(t, "Office-LaserJet-7", result.SpoolJobID)
	assert.Equal(t, printing.PrinterName("Office-LaserJet"), result.Printer)
	assert.NotEmpty(t, result.JobID)
	assert.Contains(t, result.Message, "Office-LaserJet")

	m.dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
	assertNoArtifacts(t, m.tempDir)
}

func TestPipeline_Submit_WrongPassword(t *testing.T) {
	p, m := newTestPipeline(t, nil)
	doc := printing.SourceDocument{Data: []byte("%PDF encrypted"), Password: "wrong"}

	m.rasterizer.On("Rasterize", mock.Anything, doc).
		Return(nil, printing.NewPrintError(printing.ErrCodeInvalidPassword, "incorrect document password", nil))

	result, err := p.Submit(context.Background(), SubmitRequest{Document: doc, Printer: "Office-LaserJet"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, printing.ErrInvalidPassword)
	assert.Equal(t, printing.StageRasterize, printing.StageOf(err))

	m.flattener.AssertNotCalled(t, "Flatten", mock.Anything, mock.Anything)
	m.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
	assertNoArtifacts(t, m.tempDir)
}

func TestPipeline_Submit_UnknownPrinter(t *testing.T) {
	p, m := newTestPipeline(t, nil)
	doc := printing.SourceDocument{Data: onePagePDF}
	pages := testPages(1)
	spoolErr := printing.NewPrintError(printing.ErrCodePrinterNotFound, `printer "Nonexistent-Printer" not found`,
		errors.New("lp: The printer or class does not exist."))

	m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
	m.flattener.On("Flatten", mock.Anything, pages).
		Return(&printing.FlattenedDocument{Data: []byte("%PDF flat"), PageCount: 1}, nil)
	m.dispatcher.On("Dispatch", mock.Anything, mock.Anything, printing.PrinterName("Nonexistent-Printer")).
		Return("", spoolErr)

	_, err := p.Submit(context.Background(), SubmitRequest{Document: doc, Printer: "Nonexistent-Printer"})
	require.Error(t, err)
	assert.ErrorIs(t, err, printing.ErrPrinterNotFound)
	assert.Equal(t, printing.StageDispatch, printing.StageOf(err))

	var pe *printing.PrintError
	require.True(t, errors.As(err, &pe))
	assert.Same(t, spoolErr, pe, "original error must be propagated unchanged")

	m.rasterizer.AssertExpectations(t)
	m.flattener.AssertExpectations(t)
	assertNoArtifacts(t, m.tempDir)
}

func TestPipeline_Submit_FailuresAtEveryStageCleanUp(t *testing.T) {
	doc := printing.SourceDocument{Data: onePagePDF}

	tests := []struct {
		name   string
		modify func(t *testing.T, cfg *PipelineConfig)
		setup  func(m *pipelineMocks)
		stage  printing.Stage
		code   string
	}{
		{
			name: "temp root unusable",
			modify: func(t *testing.T, cfg *PipelineConfig) {
				blocker := filepath.Join(t.TempDir(), "blocker")
				require.NoError(t, os.WriteFile(blocker, nil, 0o600))
				cfg.TempDir = filepath.Join(blocker, "jobs")
			},
			setup: func(m *pipelineMocks) {},
			stage: printing.StageWriteSource,
			code:  printing.ErrCodeTempFileFailed,
		},
		{
			name: "corrupt document",
			setup: func(m *pipelineMocks) {
				m.rasterizer.On("Rasterize", mock.Anything, doc).
					Return(nil, printing.NewPrintError(printing.ErrCodeCorruptDocument, "bad", nil))
			},
			stage: printing.StageRasterize,
			code:  printing.ErrCodeCorruptDocument,
		},
		{
			name: "page render failure",
			setup: func(m *pipelineMocks) {
				m.rasterizer.On("Rasterize", mock.Anything, doc).
					Return(nil, printing.NewPageRenderError(2, errors.New("broken stream")))
			},
			stage: printing.StageRasterize,
			code:  printing.ErrCodePageRenderFailed,
		},
		{
			name: "empty input",
			setup: func(m *pipelineMocks) {
				m.rasterizer.On("Rasterize", mock.Anything, doc).Return([]printing.PageImage{}, nil)
				m.flattener.On("Flatten", mock.Anything, []printing.PageImage{}).
					Return(nil, printing.NewPrintError(printing.ErrCodeEmptyInput, "no pages", nil))
			},
			stage: printing.StageFlatten,
			code:  printing.ErrCodeEmptyInput,
		},
		{
			name: "page count mismatch",
			setup: func(m *pipelineMocks) {
				pages := testPages(2)
				m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
				m.flattener.On("Flatten", mock.Anything, pages).
					Return(&printing.FlattenedDocument{Data: []byte("x"), PageCount: 1}, nil)
			},
			stage: printing.StageFlatten,
			code:  printing.ErrCodeEncodingFailed,
		},
		{
			name: "job directory vanished before flattened write",
			setup: func(m *pipelineMocks) {
				pages := testPages(1)
				m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
				m.flattener.On("Flatten", mock.Anything, pages).
					Run(func(mock.Arguments) {
						entries, _ := os.ReadDir(m.tempDir)
						for _, e := range entries {
							_ = os.RemoveAll(filepath.Join(m.tempDir, e.Name()))
						}
					}).
					Return(&printing.FlattenedDocument{Data: []byte("x"), PageCount: 1}, nil)
			},
			stage: printing.StageWriteFlattened,
			code:  printing.ErrCodeTempFileFailed,
		},
		{
			name: "spool timeout",
			setup: func(m *pipelineMocks) {
				pages := testPages(1)
				m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
				m.flattener.On("Flatten", mock.Anything, pages).
					Return(&printing.FlattenedDocument{Data: []byte("x"), PageCount: 1}, nil)
				m.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
					Return("", printing.NewPrintError(printing.ErrCodeTimeout, "lp did not finish", context.DeadlineExceeded))
			},
			stage: printing.StageDispatch,
			code:  printing.ErrCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m := newTestPipeline(t, func(cfg *PipelineConfig) {
				if tt.modify != nil {
					tt.modify(t, cfg)
				}
			})
			tt.setup(m)

			_, err := p.Submit(context.Background(), SubmitRequest{Document: doc, Printer: "Office"})
			require.Error(t, err)
			assert.Equal(t, tt.stage, printing.StageOf(err))
			assert.Equal(t, tt.code, printing.CodeOf(err))
			m.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
			assertNoArtifacts(t, m.tempDir)
		})
	}
}

func TestPipeline_Submit_CleanupFailureNeverReplacesOutcome(t *testing.T) {
	doc := printing.SourceDocument{Data: onePagePDF}
	failingRemover := infra.WithRemover(func(string) error {
		return errors.New("read-only file system")
	})

	newPipeline := func(t *testing.T) (*Pipeline, *pipelineMocks, *observer.ObservedLogs) {
		core, logs := observer.New(zapcore.DebugLevel)
		p, m := newTestPipeline(t, func(cfg *PipelineConfig) {
			cfg.WorkspaceOptions = []infra.WorkspaceOption{failingRemover}
			cfg.Logger = zap.New(core)
		})
		return p, m, logs
	}

	t.Run("successful dispatch is still reported", func(t *testing.T) {
		p, m, logs := newPipeline(t)
		pages := testPages(1)
		m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
		m.flattener.On("Flatten", mock.Anything, pages).
			Return(&printing.FlattenedDocument{Data: []byte("%PDF flat"), PageCount: 1}, nil)
		m.dispatcher.On("Dispatch", mock.Anything, mock.Anything, printing.PrinterName("Office")).
			Return("Office-12", nil)

		result, err := p.Submit(context.Background(), SubmitRequest{Document: doc, Printer: "Office"})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "Office-12", result.SpoolJobID)
		assert.Equal(t, 1, logs.FilterMessage("temporary files were not removed").Len())
	})

	t.Run("original failure is still reported", func(t *testing.T) {
		p, m, logs := newPipeline(t)
		m.rasterizer.On("Rasterize", mock.Anything, doc).
			Return(nil, printing.NewPrintError(printing.ErrCodeCorruptDocument, "bad xref", nil))

		result, err := p.Submit(context.Background(), SubmitRequest{Document: doc, Printer: "Office"})
		require.Error(t, err)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, printing.ErrCorruptDocument)
		assert.Equal(t, printing.StageRasterize, printing.StageOf(err))
		assert.NotContains(t, err.Error(), "read-only file system")
		assert.Equal(t, 1, logs.FilterMessage("temporary files were not removed").Len())
	})
}

func TestPipeline_Submit_VirtualPrinterRejectedBeforeWork(t *testing.T) {
	p, m := newTestPipeline(t, nil)

	_, err := p.Submit(context.Background(), SubmitRequest{
		Document: printing.SourceDocument{Data: onePagePDF},
		Printer:  "Microsoft Print to PDF",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, printing.ErrVirtualPrinter)
	m.rasterizer.AssertNotCalled(t, "Rasterize", mock.Anything, mock.Anything)
	assertNoArtifacts(t, m.tempDir)
}

func TestPipeline_Submit_EmptyPrinter(t *testing.T) {
	p, m := newTestPipeline(t, nil)

	_, err := p.Submit(context.Background(), SubmitRequest{Document: printing.SourceDocument{Data: onePagePDF}})
	assert.ErrorIs(t, err, printing.ErrPrinterNotFound)
	m.rasterizer.AssertNotCalled(t, "Rasterize", mock.Anything, mock.Anything)
}

func TestPipeline_Submit_AppliesRedactions(t *testing.T) {
	region := printing.RedactionRegion{Page: 1, X: 0, Y: 0, Width: 5, Height: 5}
	p, m := newTestPipeline(t, func(cfg *PipelineConfig) {
		cfg.Redactions = []printing.RedactionRegion{region}
		cfg.RenderDPI = 72
	})
	doc := printing.SourceDocument{Data: onePagePDF}
	pages := testPages(1)

	m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
	m.flattener.On("Flatten", mock.Anything, pages).
		Run(func(args mock.Arguments) {
			got := args.Get(1).([]printing.PageImage)
			assert.Equal(t, printing.RedactionFill, got[0].Image.RGBAAt(2, 2))
			assert.Equal(t, color.RGBA{}, got[0].Image.RGBAAt(7, 7))
		}).
		Return(&printing.FlattenedDocument{Data: []byte("x"), PageCount: 1}, nil)
	m.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	_, err := p.Submit(context.Background(), SubmitRequest{Document: doc, Printer: "Office"})
	require.NoError(t, err)
	m.flattener.AssertExpectations(t)
}

func TestPipeline_Submit_ConcurrencyLimit(t *testing.T) {
	p, m := newTestPipeline(t, func(cfg *PipelineConfig) {
		cfg.MaxConcurrentJobs = 1
	})
	doc := printing.SourceDocument{Data: onePagePDF}
	pages := testPages(1)
	release := make(chan struct{})
	started := make(chan struct{})

	m.rasterizer.On("Rasterize", mock.Anything, doc).Return(pages, nil)
	m.flattener.On("Flatten", mock.Anything, pages).
		Return(&printing.FlattenedDocument{Data: []byte("x"), PageCount: 1}, nil)
	m.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("1", nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), SubmitRequest{Document: doc, Printer: "Office"})
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Submit(ctx, SubmitRequest{Document: doc, Printer: "Office"})
	assert.ErrorIs(t, err, printing.ErrTimeout)

	close(release)
	require.NoError(t, <-done)
	m.dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestPipeline_ListPrinters(t *testing.T) {
	t.Run("hides virtual printers", func(t *testing.T) {
		p, m := newTestPipeline(t, nil)
		m.directory.On("ListPrinters", mock.Anything).
			Return([]printing.PrinterName{"Office", "Microsoft Print to PDF", "Fax", "Annex"}, nil)

		printers, err := p.ListPrinters(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []printing.PrinterName{"Office", "Annex"}, printers)
	})

	t.Run("returns all when policy disabled", func(t *testing.T) {
		p, m := newTestPipeline(t, func(cfg *PipelineConfig) {
			cfg.VirtualPrinters = printing.NewVirtualPrinterPolicy(false, nil)
		})
		m.directory.On("ListPrinters", mock.Anything).
			Return([]printing.PrinterName{"Office", "Fax"}, nil)

		printers, err := p.ListPrinters(context.Background())
		require.NoError(t, err)
		assert.Len(t, printers, 2)
	})

	t.Run("propagates directory errors", func(t *testing.T) {
		p, m := newTestPipeline(t, nil)
		m.directory.On("ListPrinters", mock.Anything).
			Return(nil, printing.NewPrintError(printing.ErrCodePlatformUnsupported, "nope", nil))

		_, err := p.ListPrinters(context.Background())
		assert.ErrorIs(t, err, printing.ErrPlatformUnsupported)
	})
}

func TestPipeline_Inspect(t *testing.T) {
	p, m := newTestPipeline(t, nil)
	doc := printing.SourceDocument{Data: onePagePDF}
	info := &printing.DocumentInfo{PageCount: 1, Pages: []printing.PageSize{{Number: 1, Width: 612, Height: 792}}}
	m.rasterizer.On("Inspect", mock.Anything, doc).Return(info, nil)

	got, err := p.Inspect(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestPipeline_Submit_EndToEnd(t *testing.T) {
	flattener := infra.NewPdfcpuFlattener(nil)
	page := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for i := range page.Pix {
		page.Pix[i] = 0xff
	}
	source, err := flattener.Flatten(context.Background(), []printing.PageImage{
		{Number: 1, Image: page},
		{Number: 2, Image: page},
		{Number: 3, Image: page},
	})
	require.NoError(t, err)

	dispatcher := new(MockDispatcher)
	tempDir := t.TempDir()
	rasterizer := infra.NewFitzRasterizer(infra.FitzRasterizerConfig{})
	p := NewPipeline(PipelineConfig{
		Rasterizer: rasterizer,
		Inspector:  rasterizer,
		Flattener:  flattener,
		Dispatcher: dispatcher,
		TempDir:    tempDir,
	})

	dispatcher.On("Dispatch", mock.Anything, mock.Anything, printing.PrinterName("Office-LaserJet")).Return("", nil)

	result, err := p.Submit(context.Background(), SubmitRequest{
		Document: printing.SourceDocument{Data: source.Data},
		Printer:  "Office-LaserJet",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.PageCount)
	dispatcher.AssertExpectations(t)
	assertNoArtifacts(t, tempDir)
}
