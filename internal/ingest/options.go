package ingest

import (
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/readtext/backend/internal/config"
	"github.com/readtext/backend/internal/docvars"
	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/parser"
	"github.com/readtext/backend/internal/resolver"
)

// Options controls one ingestion call. The zero value reads files with no
// docvars from names, UTF-8 encoding and the process default verbosity.
type Options struct {
	// TextField selects the text of row-oriented formats: a field name, a
	// 1-based index, or an XML path selector.
	TextField string

	DocvarSource docvars.Source
	// DocvarSep is a regular expression; empty means "_".
	DocvarSep   string
	DocvarNames []string

	// Encodings holds one encoding for all files, or one per resolved file.
	Encodings []string
	Missing   resolver.MissingPolicy
	// Verbosity overrides the process default for this call only.
	Verbosity *int

	// Delimiter overrides the separator of csv and tsv files.
	Delimiter string
	// Workers bounds concurrent file reads; zero means GOMAXPROCS.
	Workers int
	// ConverterTimeout overrides the ingester's converter timeout when set.
	ConverterTimeout time.Duration
}

// verbosity returns the effective verbosity for the call.
func (o Options) verbosity() int {
	if o.Verbosity != nil {
		return *o.Verbosity
	}
	return logging.DefaultVerbosity()
}

// validate checks every option that does not depend on the resolved files.
func (o Options) validate() error {
	if o.Verbosity != nil {
		if err := logging.ValidateVerbosity(*o.Verbosity); err != nil {
			return err
		}
	}
	switch o.DocvarSource {
	case "", docvars.SourceNone, docvars.SourceFilenames, docvars.SourceFilepaths:
	default:
		return models.NewConfigError("docvarsfrom", "unknown source %q", o.DocvarSource)
	}
	if o.DocvarSep != "" {
		if _, err := regexp.Compile(o.DocvarSep); err != nil {
			return models.NewConfigError("dvsep", "%v", err)
		}
	}
	for _, enc := range o.Encodings {
		if err := parser.ValidateEncoding(enc); err != nil {
			return err
		}
	}
	if _, err := o.delimiter(); err != nil {
		return err
	}
	switch o.Missing {
	case "", resolver.MissingFail, resolver.MissingIgnore:
	default:
		return models.NewConfigError("ignore_missing", "unknown policy %q", o.Missing)
	}
	if o.Workers < 0 {
		return models.NewConfigError("workers", "must not be negative")
	}
	if o.ConverterTimeout < 0 {
		return models.NewConfigError("converter_timeout", "must not be negative")
	}
	return nil
}

// delimiter returns the single-character delimiter override, or 0.
func (o Options) delimiter() (rune, error) {
	switch o.Delimiter {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(o.Delimiter) != 1 {
		return 0, models.NewConfigError("delimiter", "must be a single character, got %q", o.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(o.Delimiter)
	return r, nil
}

// OptionsFromProfile converts a YAML ingestion profile.
func OptionsFromProfile(p *config.Profile) (Options, error) {
	source, err := docvars.ParseSource(p.DocvarsFrom)
	if err != nil {
		return Options{}, err
	}
	missing, err := resolver.ParseMissing(p.Missing)
	if err != nil {
		return Options{}, err
	}
	timeout, err := p.Timeout()
	if err != nil {
		return Options{}, models.NewConfigError("converter_timeout", "%v", err)
	}

	opts := Options{
		TextField:        p.TextField,
		DocvarSource:     source,
		DocvarSep:        p.DocvarSep,
		DocvarNames:      p.DocvarNames,
		Encodings:        p.Encoding,
		Missing:          missing,
		Verbosity:        p.Verbosity,
		Delimiter:        p.Delimiter,
		Workers:          p.Workers,
		ConverterTimeout: timeout,
	}
	return opts, opts.validate()
}
