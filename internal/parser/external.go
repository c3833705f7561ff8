package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
)

// ErrTimeout marks a conversion that exceeded its time limit. The registry
// turns it into a warning and skips the file.
var ErrTimeout = errors.New("converter timed out")

// Converter turns a binary document into plain text.
type Converter func(ctx context.Context, path string) (string, error)

// Converters configures the external-format reader.
type Converters struct {
	ByFormat map[models.Format]Converter
	// Fallback is tried when the format's converter fails or is missing.
	Fallback Converter
	// Timeout bounds one conversion; zero means no limit.
	Timeout time.Duration
}

// DefaultConverters uses antiword for doc, pdftotext for pdf and docconv
// for docx, odt and rtf, with docconv as the fallback.
func DefaultConverters() Converters {
	return Converters{
		ByFormat: map[models.Format]Converter{
			models.FormatDoc:  ExecConverter("antiword", "{}"),
			models.FormatPDF:  ExecConverter("pdftotext", "-enc", "UTF-8", "{}", "-"),
			models.FormatDocx: DocconvConverter,
			models.FormatODT:  DocconvConverter,
			models.FormatRTF:  DocconvConverter,
		},
		Fallback: DocconvConverter,
	}
}

// ExecConverter runs an external tool and returns its standard output. The
// argument "{}" is replaced by the file path.
func ExecConverter(name string, args ...string) Converter {
	return func(ctx context.Context, path string) (string, error) {
		argv := make([]string, len(args))
		for i, a := range args {
			if a == "{}" {
				a = path
			}
			argv[i] = a
		}

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, name, argv...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, exec.ErrNotFound) {
				return "", fmt.Errorf("%w: %s is not installed", models.ErrConverter, name)
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return "", fmt.Errorf("%w: %s: %s", models.ErrConverter, name, msg)
		}
		return stdout.String(), nil
	}
}

// docconvSlots bounds running docconv conversions. ConvertPath takes no
// context, so a conversion abandoned on cancellation keeps its slot until
// docconv returns.
var docconvSlots = make(chan struct{}, 4)

// DocconvConverter converts with docconv, picking the handler by extension.
func DocconvConverter(ctx context.Context, path string) (string, error) {
	select {
	case docconvSlots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-docconvSlots }()
		res, err := docconv.ConvertPath(path)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{body: res.Body}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: docconv: %v", models.ErrConverter, r.err)
		}
		return r.body, nil
	}
}

// ExternalParser reads binary documents through converters.
type ExternalParser struct {
	conv Converters
}

func NewExternalParser(conv Converters) *ExternalParser {
	return &ExternalParser{conv: conv}
}

func (p *ExternalParser) Name() string {
	return "external"
}

func (p *ExternalParser) Formats() []models.Format {
	return []models.Format{models.FormatDoc, models.FormatDocx, models.FormatPDF, models.FormatODT, models.FormatRTF}
}

func (p *ExternalParser) Parse(ctx context.Context, file models.ResolvedFile, _ Options) ([]models.Record, error) {
	parent := ctx
	if p.conv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.conv.Timeout)
		defer cancel()
	}

	text, err := p.convert(ctx, file)
	if err != nil {
		// Only the converter's own deadline skips the file; a cancelled or
		// expired caller context aborts the call.
		if p.conv.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, p.conv.Timeout)
		}
		return nil, &models.FileError{Path: file.Source, Err: err}
	}
	return []models.Record{{Text: text}}, nil
}

func (p *ExternalParser) convert(ctx context.Context, file models.ResolvedFile) (string, error) {
	primary := p.conv.ByFormat[file.Format]
	if primary == nil && p.conv.Fallback == nil {
		return "", fmt.Errorf("%w: no converter configured for %s", models.ErrConverter, file.Format)
	}
	if primary == nil {
		return p.conv.Fallback(ctx, file.Path)
	}

	text, err := primary(ctx, file.Path)
	if err == nil || p.conv.Fallback == nil || ctx.Err() != nil {
		return text, err
	}

	logging.FromContext(ctx).Info("converter failed, trying fallback",
		zap.String("source", file.Source), zap.Error(err))
	text, ferr := p.conv.Fallback(ctx, file.Path)
	if ferr != nil {
		return "", err
	}
	return text, nil
}
