package parser

import (
	"context"

	"github.com/readtext/backend/internal/models"
)

// TextParser reads a whole file as one document.
type TextParser struct{}

func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Name() string {
	return "text"
}

func (p *TextParser) Formats() []models.Format {
	return []models.Format{models.FormatText}
}

func (p *TextParser) Parse(_ context.Context, file models.ResolvedFile, _ Options) ([]models.Record, error) {
	text, err := readFile(file)
	if err != nil {
		return nil, &models.FileError{Path: file.Source, Err: err}
	}
	return []models.Record{{Text: text}}, nil
}
