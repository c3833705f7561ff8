// Command readtext reads text files and their document variables into one
// table and writes it as CSV, JSON, msgpack or a DuckDB database.
//
//	readtext -docvarsfrom filenames -docvarnames Year,President -o speeches.duckdb 'inaugural/*.txt'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/readtext/backend/internal/config"
	"github.com/readtext/backend/internal/export"
	"github.com/readtext/backend/internal/ingest"
	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cliFlags struct {
	profile      string
	configPath   string
	output       string
	textField    string
	docvarsFrom  string
	docvarSep    string
	docvarNames  string
	encoding     string
	missing      string
	verbosity    int
	delimiter    string
	workers      int
	convTimeout  time.Duration
	showWarnings bool
}

func newFlagSet(f *cliFlags, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("readtext", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.profile, "profile", "", "YAML ingestion profile; flags override its values")
	fs.StringVar(&f.configPath, "config", "", "XML application config (converters, workers, remote inputs)")
	fs.StringVar(&f.output, "o", "", "output file (.csv, .json, .msgpack, .duckdb); default CSV on stdout")
	fs.StringVar(&f.textField, "text-field", "", "text field of csv, tsv, json and xml files: name, 1-based index or XML path")
	fs.StringVar(&f.docvarsFrom, "docvarsfrom", "", "docvars source: none, filenames, filepaths")
	fs.StringVar(&f.docvarSep, "dvsep", "", `separator regex for filename docvars (default "_")`)
	fs.StringVar(&f.docvarNames, "docvarnames", "", "comma-separated docvar names")
	fs.StringVar(&f.encoding, "encoding", "", "comma-separated encodings: one for all files or one per file")
	fs.StringVar(&f.missing, "missing", "", "inputs that match nothing: fail or ignore")
	// -1 means "not overridden"
	fs.IntVar(&f.verbosity, "verbosity", -1, "0 errors, 1 warnings, 2 info, 3 debug")
	fs.StringVar(&f.delimiter, "delimiter", "", `field separator override for csv/tsv ("tab" for tab)`)
	fs.IntVar(&f.workers, "workers", 0, "concurrent file reads (default GOMAXPROCS)")
	fs.DurationVar(&f.convTimeout, "converter-timeout", 0, "per-file timeout for doc/pdf/docx converters")
	fs.BoolVar(&f.showWarnings, "warnings", false, "print collected warnings to stderr")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: readtext [flags] input...\n\n")
		fs.PrintDefaults()
	}
	return fs
}

func run(args []string, stdout, stderr io.Writer) int {
	var f cliFlags
	fs := newFlagSet(&f, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		fs.Usage()
		return exitUsage
	}

	opts, err := buildOptions(fs, &f)
	if err != nil {
		fmt.Fprintf(stderr, "readtext: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ingester, err := newIngester(ctx, f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "readtext: %v\n", err)
		return exitUsage
	}

	table, err := ingester.Ingest(ctx, inputs, opts)
	if err != nil {
		fmt.Fprintf(stderr, "readtext: %v\n", err)
		if errors.Is(err, models.ErrConfig) {
			return exitUsage
		}
		return exitFailed
	}

	if f.showWarnings {
		for _, w := range table.Warnings {
			fmt.Fprintf(stderr, "warning: %s\n", w)
		}
	}

	if f.output == "" {
		err = export.WriteCSV(stdout, table)
	} else {
		err = export.WriteFile(ctx, f.output, table)
	}
	if err != nil {
		fmt.Fprintf(stderr, "readtext: writing output: %v\n", err)
		return exitFailed
	}
	return exitOK
}

// buildOptions starts from the profile, if any, and applies the flags that
// were set explicitly.
func buildOptions(fs *flag.FlagSet, f *cliFlags) (ingest.Options, error) {
	p := &config.Profile{}
	if f.profile != "" {
		var err error
		if p, err = config.ParseProfile(f.profile); err != nil {
			return ingest.Options{}, err
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "text-field":
			p.TextField = f.textField
		case "docvarsfrom":
			p.DocvarsFrom = f.docvarsFrom
		case "dvsep":
			p.DocvarSep = f.docvarSep
		case "docvarnames":
			p.DocvarNames = splitList(f.docvarNames)
		case "encoding":
			p.Encoding = splitList(f.encoding)
		case "missing":
			p.Missing = f.missing
		case "verbosity":
			v := f.verbosity
			p.Verbosity = &v
		case "delimiter":
			p.Delimiter = f.delimiter
		case "workers":
			p.Workers = f.workers
		case "converter-timeout":
			p.ConverterTimeout = f.convTimeout.String()
		}
	})

	opts, err := ingest.OptionsFromProfile(p)
	if err != nil {
		return ingest.Options{}, err
	}
	if opts.Verbosity != nil {
		// The CLI runs one call, so the process default follows the flag.
		if err := logging.SetDefaultVerbosity(*opts.Verbosity); err != nil {
			return ingest.Options{}, err
		}
	}
	return opts, nil
}

type ingester interface {
	Ingest(ctx context.Context, inputs []string, opts ingest.Options) (*models.ResultTable, error)
}

type defaultIngester struct{}

func (defaultIngester) Ingest(ctx context.Context, inputs []string, opts ingest.Options) (*models.ResultTable, error) {
	return ingest.Ingest(ctx, inputs, opts)
}

// newIngester builds an ingester from an XML config, or the default one.
// A missing config file is an error here; the server creates one instead.
func newIngester(ctx context.Context, configPath string) (ingester, error) {
	if configPath == "" {
		return defaultIngester{}, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return ingest.NewFromConfig(ctx, cfg)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
