package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
)

// Registry holds all available parsers and dispatches files by format.
type Registry struct {
	parsers  []Parser
	byFormat map[models.Format]Parser
	fallback Parser
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a registry with every built-in reader and the default
// external converters.
func NewRegistry() *Registry {
	return NewRegistryWithConverters(DefaultConverters())
}

// NewRegistryWithConverters creates a registry whose external-format reader
// uses conv.
func NewRegistryWithConverters(conv Converters) *Registry {
	text := NewTextParser()
	r := &Registry{
		byFormat: make(map[models.Format]Parser),
		fallback: text,
	}
	r.Register(text)
	r.Register(NewDelimitedParser())
	r.Register(NewJSONParser())
	r.Register(NewXMLParser())
	r.Register(NewHTMLParser())
	r.Register(NewExternalParser(conv))
	return r
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds a parser, taking over the formats it lists.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
	for _, f := range p.Formats() {
		r.byFormat[f] = p
	}
}

// FindParser returns the parser for a format. ok is false when the format
// has no reader and the plain-text fallback is returned.
func (r *Registry) FindParser(format models.Format) (p Parser, ok bool) {
	if p, ok := r.byFormat[format]; ok {
		return p, true
	}
	return r.fallback, false
}

// GetParserByName returns a parser by its name.
func (r *Registry) GetParserByName(name string) (Parser, error) {
	name = strings.ToLower(name)
	for _, p := range r.parsers {
		if strings.ToLower(p.Name()) == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser not found: %s", name)
}

// SupportedFormats maps each readable format to its file extensions.
func (r *Registry) SupportedFormats() map[models.Format][]string {
	out := make(map[models.Format][]string, len(r.byFormat))
	for f := range r.byFormat {
		out[f] = f.Extensions()
	}
	return out
}

// Formats lists the readable formats in name order.
func (r *Registry) Formats() []models.Format {
	formats := make([]models.Format, 0, len(r.byFormat))
	for f := range r.byFormat {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// Parse reads one file with the parser for its format. Unknown extensions
// are read as plain text. A converter timeout drops the file: no records, no
// error, and a warning.
func (r *Registry) Parse(ctx context.Context, file models.ResolvedFile, opts Options) ([]models.Record, []string, error) {
	log := logging.FromContext(ctx)
	var warnings []string
	warn := func(msg string) {
		log.Warn(msg)
		warnings = append(warnings, msg)
	}

	p, ok := r.FindParser(file.Format)
	if !ok {
		warn(fmt.Sprintf("unsupported extension %q for %s; reading as plain text",
			filepath.Ext(file.Source), file.Source))
	}

	log.Debug("reading file",
		zap.String("source", file.Source),
		zap.String("parser", p.Name()))

	records, err := p.Parse(ctx, file, opts)
	if errors.Is(err, ErrTimeout) {
		warn(fmt.Sprintf("%s: %v; file skipped", file.Source, err))
		return nil, warnings, nil
	}
	if err != nil {
		return nil, warnings, err
	}

	if len(records) == 0 {
		warn(fmt.Sprintf("no documents read from %s", file.Source))
	}
	return records, warnings, nil
}
