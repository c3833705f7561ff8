package models

import (
	"path/filepath"
	"sort"
	"strings"
)

// Format is the closed set of input formats the registry dispatches on.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatText    Format = "txt"
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatJSON    Format = "json"
	FormatXML     Format = "xml"
	FormatHTML    Format = "html"
	FormatDoc     Format = "doc"
	FormatDocx    Format = "docx"
	FormatPDF     Format = "pdf"
	FormatODT     Format = "odt"
	FormatRTF     Format = "rtf"
)

var extensionFormats = map[string]Format{
	".txt":    FormatText,
	".text":   FormatText,
	".md":     FormatText,
	".csv":    FormatCSV,
	".tsv":    FormatTSV,
	".tab":    FormatTSV,
	".json":   FormatJSON,
	".jsonl":  FormatJSON,
	".ndjson": FormatJSON,
	".xml":    FormatXML,
	".html":   FormatHTML,
	".htm":    FormatHTML,
	".doc":    FormatDoc,
	".docx":   FormatDocx,
	".pdf":    FormatPDF,
	".odt":    FormatODT,
	".rtf":    FormatRTF,
}

// FormatFromPath maps a file name to its Format by extension, ignoring case.
func FormatFromPath(path string) Format {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatUnknown
}

// RowOriented reports whether the format yields one record per row and
// therefore needs a text field to know which column holds the text.
func (f Format) RowOriented() bool {
	return f == FormatCSV || f == FormatTSV || f == FormatJSON
}

// External reports whether the format is converted by an external tool.
func (f Format) External() bool {
	switch f {
	case FormatDoc, FormatDocx, FormatPDF, FormatODT, FormatRTF:
		return true
	}
	return false
}

// KnownFormats lists every supported format.
func KnownFormats() []Format {
	return []Format{
		FormatText, FormatCSV, FormatTSV, FormatJSON, FormatXML, FormatHTML,
		FormatDoc, FormatDocx, FormatPDF, FormatODT, FormatRTF,
	}
}

// Extensions returns the registered extensions for f, sorted.
func (f Format) Extensions() []string {
	var exts []string
	for ext, ef := range extensionFormats {
		if ef == f {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}
