// Package docvars derives document variables from file names and paths.
package docvars

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/readtext/backend/internal/models"
)

// Source selects where filename docvars come from.
type Source string

const (
	SourceNone      Source = "none"
	SourceFilenames Source = "filenames"
	SourceFilepaths Source = "filepaths"
)

// DefaultSeparator splits "1789_Washington.txt" into two docvars.
const DefaultSeparator = "_"

// ParseSource validates a docvars source name; empty means none.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceNone:
		return SourceNone, nil
	case SourceFilenames:
		return SourceFilenames, nil
	case SourceFilepaths:
		return SourceFilepaths, nil
	}
	return "", models.NewConfigError("docvarsfrom", "must be one of none, filenames, filepaths; got %q", s)
}

// Set holds the extracted docvars of several files. Values[i] belongs to the
// i-th path passed to Extract; a name absent from Values[i] is missing.
type Set struct {
	Names    []string
	Values   []map[string]string
	Warnings []string
}

// Extract splits every path into segments and names them. A caller name list
// replaces the leading default names; segments beyond it keep the default
// docvarN names and names beyond the segment count are dropped.
func Extract(source Source, paths []string, sep string, names []string) (*Set, error) {
	set := &Set{Values: make([]map[string]string, len(paths))}
	if source == SourceNone || source == "" {
		for i := range set.Values {
			set.Values[i] = map[string]string{}
		}
		return set, nil
	}

	if sep == "" {
		sep = DefaultSeparator
	}
	re, err := regexp.Compile(sep)
	if err != nil {
		return nil, models.NewConfigError("dvsep", "invalid separator pattern %q: %v", sep, err)
	}

	segments := make([][]string, len(paths))
	width := 0
	uneven := false
	for i, p := range paths {
		segments[i] = Split(source, p, re)
		if i > 0 && len(segments[i]) != width {
			uneven = true
		}
		if len(segments[i]) > width {
			width = len(segments[i])
		}
	}
	if uneven {
		set.Warnings = append(set.Warnings,
			fmt.Sprintf("filename elements are not equal in length; padding to %d docvars with missing values", width))
	}

	set.Names = columnNames(width, names)
	if len(names) > 0 && len(names) != width {
		if len(names) < width {
			set.Warnings = append(set.Warnings,
				fmt.Sprintf("fewer docvar names supplied than segments; last %d docvars given generic names", width-len(names)))
		} else {
			set.Warnings = append(set.Warnings,
				fmt.Sprintf("more docvar names supplied than segments; dropping %d names", len(names)-width))
		}
	}

	for i, segs := range segments {
		row := make(map[string]string, len(segs))
		for j, s := range segs {
			row[set.Names[j]] = s
		}
		set.Values[i] = row
	}
	return set, nil
}

// Split returns the ordered docvar segments of one path.
func Split(source Source, path string, sep *regexp.Regexp) []string {
	if source == SourceFilepaths {
		var out []string
		for _, part := range pathElements(trimExt(path)) {
			out = append(out, sep.Split(part, -1)...)
		}
		return out
	}
	return sep.Split(trimExt(filepath.Base(filepath.FromSlash(path))), -1)
}

func columnNames(width int, names []string) []string {
	cols := make([]string, width)
	for i := range cols {
		if i < len(names) && names[i] != "" {
			cols[i] = names[i]
		} else {
			cols[i] = fmt.Sprintf("docvar%d", i+1)
		}
	}
	return cols
}

func trimExt(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}

// pathElements splits a path on both slash styles, dropping volume names and
// empty or "." elements.
func pathElements(p string) []string {
	p = strings.TrimPrefix(p, filepath.VolumeName(p))
	p = strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
	var out []string
	for _, e := range strings.Split(p, "/") {
		if e == "" || e == "." {
			continue
		}
		out = append(out, e)
	}
	return out
}
