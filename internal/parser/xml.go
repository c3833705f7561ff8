package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/readtext/backend/internal/models"
)

// xmlNode is a minimal element tree; only what record extraction needs.
type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	parent   *xmlNode
	text     strings.Builder
}

func (n *xmlNode) isLeaf() bool {
	return len(n.children) == 0
}

// innerText concatenates the character data of n and its descendants.
func (n *xmlNode) innerText() string {
	var b strings.Builder
	var walk func(*xmlNode)
	walk = func(x *xmlNode) {
		b.WriteString(x.text.String())
		for _, c := range x.children {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// XMLParser reads XML documents. With a text field starting with "/" it
// selects records by path; otherwise each child of the root element is a
// record and the text field names one of its leaf elements. Without a text
// field the whole document is one record.
type XMLParser struct{}

func NewXMLParser() *XMLParser {
	return &XMLParser{}
}

func (p *XMLParser) Name() string {
	return "xml"
}

func (p *XMLParser) Formats() []models.Format {
	return []models.Format{models.FormatXML}
}

func (p *XMLParser) Parse(_ context.Context, file models.ResolvedFile, opts Options) ([]models.Record, error) {
	root, err := parseXMLTree(file)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	switch {
	case opts.TextField == "":
		return []models.Record{{Text: root.innerText()}}, nil
	case strings.HasPrefix(opts.TextField, "/"):
		return selectRecords(file, root, opts.TextField)
	default:
		return childRecords(file, root, opts.TextField)
	}
}

func parseXMLTree(file models.ResolvedFile) (*xmlNode, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, &models.FileError{Path: file.Source, Err: err}
	}

	var dec *xml.Decoder
	if file.Encoding != "" {
		text, err := decode(data, file.Encoding)
		if err != nil {
			return nil, err
		}
		dec = xml.NewDecoder(strings.NewReader(text))
		dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	} else {
		dec = xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
		dec.CharsetReader = func(label string, r io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(label)
			if err != nil {
				return nil, err
			}
			return enc.NewDecoder().Reader(r), nil
		}
	}

	var root, cur *xmlNode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, formatError(file, "%v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: t.Copy().Attr, parent: cur}
			if cur == nil {
				if root != nil {
					return nil, formatError(file, "multiple root elements")
				}
				root = n
			} else {
				cur.children = append(cur.children, n)
			}
			cur = n
		case xml.EndElement:
			if cur != nil {
				cur = cur.parent
			}
		case xml.CharData:
			if cur != nil {
				cur.text.Write(t)
			}
		}
	}
	return root, nil
}

type xmlStep struct {
	name       string
	descendant bool
}

// parseSelector splits a path into element steps and an optional trailing
// attribute name ("/a/b/@title").
func parseSelector(sel string) ([]xmlStep, string, bool) {
	var steps []xmlStep
	var attr string
	descendant := false
	for _, part := range strings.Split(sel, "/")[1:] {
		if attr != "" {
			return nil, "", false
		}
		if part == "" {
			if descendant {
				return nil, "", false
			}
			descendant = true
			continue
		}
		if strings.HasPrefix(part, "@") {
			if descendant || len(part) == 1 {
				return nil, "", false
			}
			attr = part[1:]
			continue
		}
		steps = append(steps, xmlStep{name: part, descendant: descendant})
		descendant = false
	}
	return steps, attr, len(steps) > 0 && !descendant
}

// selectRecords evaluates a path selector: "/a/b" walks children, "*"
// matches any name, "//b" matches at any depth and a final "@name" takes
// the text from an attribute of each matched element.
func selectRecords(file models.ResolvedFile, root *xmlNode, sel string) ([]models.Record, error) {
	steps, attr, ok := parseSelector(sel)
	if !ok {
		return nil, models.NewConfigError("text_field", "invalid XML path %q", sel)
	}

	doc := &xmlNode{children: []*xmlNode{root}}
	current := []*xmlNode{doc}
	for _, step := range steps {
		var next []*xmlNode
		seen := make(map[*xmlNode]bool)
		for _, n := range current {
			var candidates []*xmlNode
			if step.descendant {
				candidates = descendants(n)
			} else {
				candidates = n.children
			}
			for _, c := range candidates {
				if (step.name == "*" || c.name == step.name) && !seen[c] {
					seen[c] = true
					next = append(next, c)
				}
			}
		}
		current = next
	}

	if attr != "" {
		return attrRecords(current, attr), nil
	}

	records := make([]models.Record, 0, len(current))
	for _, n := range current {
		rec := models.Record{Text: n.innerText()}
		rec.Docvars = appendAttrs(rec.Docvars, n.attrs)
		if n.parent != nil && n.parent != doc {
			rec.Docvars = appendAttrs(rec.Docvars, n.parent.attrs)
			for _, sib := range n.parent.children {
				if sib != n && sib.isLeaf() && sib.name != n.name {
					rec.Docvars = append(rec.Docvars, models.Docvar{Name: sib.name, Value: strings.TrimSpace(sib.text.String())})
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// attrRecords makes one record per element carrying attr. The element's
// other attributes and its leaf children become docvars.
func attrRecords(nodes []*xmlNode, attr string) []models.Record {
	records := make([]models.Record, 0, len(nodes))
	for _, n := range nodes {
		text, ok := "", false
		var rest []xml.Attr
		for _, a := range n.attrs {
			if a.Name.Local == attr && !ok {
				text, ok = a.Value, true
				continue
			}
			rest = append(rest, a)
		}
		if !ok {
			continue
		}
		rec := models.Record{Text: text}
		rec.Docvars = appendAttrs(rec.Docvars, rest)
		for _, c := range n.children {
			if c.isLeaf() {
				rec.Docvars = append(rec.Docvars, models.Docvar{Name: c.name, Value: strings.TrimSpace(c.text.String())})
			}
		}
		records = append(records, rec)
	}
	return records
}

// childRecords treats each non-leaf child of the root as a record; leaf
// children of the root become docvars of every record. A root whose children
// are all leaves is itself the only record.
func childRecords(file models.ResolvedFile, root *xmlNode, field string) ([]models.Record, error) {
	var rows []*xmlNode
	var shared []models.Docvar
	for _, c := range root.children {
		if c.isLeaf() {
			shared = append(shared, models.Docvar{Name: c.name, Value: strings.TrimSpace(c.text.String())})
		} else {
			rows = append(rows, c)
		}
	}
	if len(rows) == 0 {
		rows = []*xmlNode{root}
		shared = nil
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		var names []string
		var leaves []*xmlNode
		for _, c := range row.children {
			if c.isLeaf() {
				names = append(names, c.name)
				leaves = append(leaves, c)
			}
		}
		idx, ok := fieldIndex(names, field)
		if !ok {
			return nil, missingField(file, field, names)
		}

		rec := models.Record{Text: strings.TrimSpace(leaves[idx].text.String())}
		rec.Docvars = appendAttrs(rec.Docvars, row.attrs)
		for i, leaf := range leaves {
			if i == idx {
				continue
			}
			rec.Docvars = append(rec.Docvars, models.Docvar{Name: leaf.name, Value: strings.TrimSpace(leaf.text.String())})
		}
		rec.Docvars = append(rec.Docvars, shared...)
		records = append(records, rec)
	}
	return records, nil
}

func descendants(n *xmlNode) []*xmlNode {
	var out []*xmlNode
	for _, c := range n.children {
		out = append(out, c)
		out = append(out, descendants(c)...)
	}
	return out
}

func appendAttrs(dvs []models.Docvar, attrs []xml.Attr) []models.Docvar {
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		dvs = append(dvs, models.Docvar{Name: a.Name.Local, Value: a.Value})
	}
	return dvs
}
