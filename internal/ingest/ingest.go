// Package ingest runs one ingestion call: resolve inputs, read every file on
// a bounded worker pool, and assemble the unified table.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/readtext/backend/internal/config"
	"github.com/readtext/backend/internal/docvars"
	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/parser"
	"github.com/readtext/backend/internal/resolver"
	"github.com/readtext/backend/internal/table"
)

// Ingester holds the collaborators shared by ingestion calls. It is safe for
// concurrent use.
type Ingester struct {
	resolver   *resolver.Resolver
	converters parser.Converters
	workers    int
	// core, when set, receives every call's log output instead of stderr.
	core zapcore.Core
}

// New creates an Ingester.
func New(res *resolver.Resolver, conv parser.Converters) *Ingester {
	return &Ingester{
		resolver:   res,
		converters: conv,
	}
}

// WithLogCore routes call logs to core.
func (i *Ingester) WithLogCore(core zapcore.Core) *Ingester {
	i.core = core
	return i
}

// NewFromConfig builds an Ingester from the application config: staging
// under the temp directory, converters from the Converters section, and
// remote fetchers when remote inputs are allowed.
func NewFromConfig(ctx context.Context, cfg *config.AppConfig) (*Ingester, error) {
	res := resolver.New(cfg.GetTempDir())
	if cfg.Processing.AllowRemoteInputs {
		web := resolver.NewHTTPFetcher(&http.Client{Timeout: cfg.FetchTimeout()})
		res.RegisterFetcher("http", web)
		res.RegisterFetcher("https", web)

		s3f, err := resolver.NewS3FetcherFromEnv(ctx, cfg.S3.Region, cfg.S3.AccessKey, cfg.S3.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("failed to configure s3 inputs: %w", err)
		}
		res.RegisterFetcher("s3", s3f)
	} else {
		res.RegisterFetcher("http", nil)
		res.RegisterFetcher("https", nil)
	}

	conv := parser.DefaultConverters()
	conv.ByFormat[models.FormatDoc] = parser.ExecConverter(cfg.Converters.Antiword, "{}")
	conv.ByFormat[models.FormatPDF] = parser.ExecConverter(cfg.Converters.Pdftotext, "-enc", "UTF-8", "{}", "-")
	if !cfg.Converters.UseDocconvFallback {
		conv.Fallback = nil
	}
	conv.Timeout = cfg.ConverterTimeout()

	ing := New(res, conv)
	ing.workers = cfg.Processing.Workers
	return ing, nil
}

var defaultIngester = New(resolver.New(""), parser.DefaultConverters())

// Ingest runs a call on the default ingester.
func Ingest(ctx context.Context, inputs []string, opts Options) (*models.ResultTable, error) {
	return defaultIngester.Ingest(ctx, inputs, opts)
}

// Ingest resolves inputs and returns one table holding every document.
// Invalid options fail before any file is opened; a fatal per-file error
// aborts the call with no partial table.
func (i *Ingester) Ingest(ctx context.Context, inputs []string, opts Options) (*models.ResultTable, error) {
	start := time.Now()

	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, models.NewConfigError("file", "no inputs given")
	}
	delim, _ := opts.delimiter()

	log := i.logger(opts.verbosity())
	ctx = logging.WithLogger(ctx, log)
	var warnings []string

	// 1. Resolve
	missing := opts.Missing
	if missing == "" {
		missing = resolver.MissingFail
	}
	res, err := i.resolver.Resolve(ctx, inputs, missing)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			log.Warn("failed to remove staged files", zap.Error(err))
		}
	}()
	warnings = append(warnings, res.Warnings...)
	files := res.Files

	// 2. Checks that need the resolved file list
	if n := len(opts.Encodings); n > 1 && n != len(files) {
		return nil, models.NewConfigError("encoding",
			"%d encodings given for %d files; give one or exactly one per file", n, len(files))
	}
	for f := range files {
		switch len(opts.Encodings) {
		case 0:
		case 1:
			files[f].Encoding = opts.Encodings[0]
		default:
			files[f].Encoding = opts.Encodings[f]
		}
		if files[f].Format.RowOriented() && files[f].Format != models.FormatJSON && opts.TextField == "" {
			return nil, models.NewConfigError("text_field", "must be set to read %s", files[f].Source)
		}
	}

	// 3. Read on a bounded pool; results keep resolution order
	conv := i.converters
	if opts.ConverterTimeout > 0 {
		conv.Timeout = opts.ConverterTimeout
	}
	registry := parser.NewRegistryWithConverters(conv)
	popts := parser.Options{TextField: opts.TextField, Delimiter: delim}

	sets := make([]models.RecordSet, len(files))
	fileWarnings := make([][]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workerCount(opts))
	for idx, file := range files {
		g.Go(func() error {
			records, warns, err := registry.Parse(gctx, file, popts)
			if err != nil {
				return err
			}
			sets[idx] = models.RecordSet{File: file, Records: records}
			fileWarnings[idx] = warns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, w := range fileWarnings {
		warnings = append(warnings, w...)
	}

	// 4. Filename docvars
	sources := make([]string, len(files))
	for f, file := range files {
		sources[f] = file.Source
	}
	dv, err := docvars.Extract(opts.DocvarSource, sources, opts.DocvarSep, opts.DocvarNames)
	if err != nil {
		return nil, err
	}
	for _, w := range dv.Warnings {
		log.Info(w)
	}
	warnings = append(warnings, dv.Warnings...)

	// 5. Assemble
	result, err := table.Assemble(sets, dv)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		log.Warn(w)
	}
	result.Warnings = append(warnings, result.Warnings...)

	log.Info("ingestion complete",
		zap.Int("files", len(files)),
		zap.Int("documents", len(result.Rows)),
		zap.Int("docvars", len(result.Columns)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (i *Ingester) logger(verbosity int) *zap.Logger {
	if i.core != nil {
		return logging.NewWithCore(i.core, verbosity)
	}
	return logging.New(verbosity)
}

func (i *Ingester) workerCount(opts Options) int {
	switch {
	case opts.Workers > 0:
		return opts.Workers
	case i.workers > 0:
		return i.workers
	}
	return runtime.GOMAXPROCS(0)
}
