package parser

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/readtext/backend/internal/models"
)

// skipped elements never contribute visible text.
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// block elements end a line of text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Header: true, atom.Footer: true,
	atom.Title: true, atom.Hr: true, atom.Dd: true, atom.Dt: true,
}

// HTMLParser extracts the visible text of an HTML page as one document.
type HTMLParser struct{}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

func (p *HTMLParser) Name() string {
	return "html"
}

func (p *HTMLParser) Formats() []models.Format {
	return []models.Format{models.FormatHTML}
}

func (p *HTMLParser) Parse(_ context.Context, file models.ResolvedFile, _ Options) ([]models.Record, error) {
	content, err := readFile(file)
	if err != nil {
		return nil, &models.FileError{Path: file.Source, Err: err}
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, formatError(file, "%v", err)
	}
	return []models.Record{{Text: visibleText(doc)}}, nil
}

// visibleText collapses whitespace within lines and separates block
// elements with newlines.
func visibleText(doc *html.Node) string {
	var lines []string
	var cur strings.Builder
	flush := func() {
		line := strings.Join(strings.Fields(cur.String()), " ")
		if line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			return
		}
		isBlock := n.Type == html.ElementNode && block[n.DataAtom]
		if isBlock {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isBlock {
			flush()
		} else if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
			cur.WriteByte(' ')
		}
	}
	walk(doc)
	flush()

	return strings.Join(lines, "\n")
}
