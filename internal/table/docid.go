package table

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/readtext/backend/internal/models"
)

// AssignDocIDs returns the document ids of every record of every file.
// counts[i] is the number of records file i produced.
//
// A single-record file is named by its base name, a multi-record file by the
// base name plus a 1-based position ("data.csv.1"). When ids collide, every
// file is prefixed with the last k directories of its source path, k being
// the smallest depth that makes all ids unique.
func AssignDocIDs(files []models.ResolvedFile, counts []int) [][]string {
	dirs := make([][]string, len(files))
	bases := make([]string, len(files))
	maxDepth := 0
	for i, f := range files {
		dirs[i], bases[i] = splitSource(f.Source)
		if len(dirs[i]) > maxDepth {
			maxDepth = len(dirs[i])
		}
	}

	var ids [][]string
	for depth := 0; depth <= maxDepth; depth++ {
		ids = buildIDs(dirs, bases, counts, depth)
		if unique(ids) {
			return ids
		}
	}
	return disambiguate(ids)
}

func buildIDs(dirs [][]string, bases []string, counts []int, depth int) [][]string {
	ids := make([][]string, len(bases))
	for i, base := range bases {
		name := base
		if depth > 0 {
			d := dirs[i]
			if len(d) > depth {
				d = d[len(d)-depth:]
			}
			if len(d) > 0 {
				name = strings.Join(d, "/") + "/" + base
			}
		}

		n := counts[i]
		ids[i] = make([]string, n)
		if n == 1 {
			ids[i][0] = name
			continue
		}
		for j := 0; j < n; j++ {
			ids[i][j] = fmt.Sprintf("%s.%d", name, j+1)
		}
	}
	return ids
}

func unique(ids [][]string) bool {
	seen := make(map[string]struct{})
	for _, group := range ids {
		for _, id := range group {
			if _, dup := seen[id]; dup {
				return false
			}
			seen[id] = struct{}{}
		}
	}
	return true
}

// disambiguate appends "#n" to ids that still collide at full depth, which
// only happens when different inputs share a source path.
func disambiguate(ids [][]string) [][]string {
	seen := make(map[string]struct{})
	for _, group := range ids {
		for j, id := range group {
			candidate := id
			for n := 2; ; n++ {
				if _, dup := seen[candidate]; !dup {
					break
				}
				candidate = fmt.Sprintf("%s#%d", id, n)
			}
			group[j] = candidate
			seen[candidate] = struct{}{}
		}
	}
	return ids
}

// splitSource returns the directory elements and base name of a source path.
func splitSource(source string) ([]string, string) {
	p := strings.ReplaceAll(filepath.ToSlash(source), `\`, "/")
	p = strings.TrimPrefix(p, filepath.VolumeName(p))
	dir, base := path.Split(p)

	var elems []string
	for _, e := range strings.Split(dir, "/") {
		if e == "" || e == "." {
			continue
		}
		elems = append(elems, e)
	}
	return elems, base
}
