package parser

// Row-oriented files repeat the same docvar names on every record and often
// the same short categorical values ("en", "TRUE", a screen name). An
// interner lets those records share one copy of each string.

const (
	// maxInternPoolSize stops growth on files with mostly unique values.
	maxInternPoolSize = 100000
	// maxInternLen skips long values, which rarely repeat.
	maxInternLen = 64
)

// interner deduplicates strings within one Parse call. It is not safe for
// concurrent use; each file gets its own.
type interner struct {
	pool map[string]string
}

func newInterner() *interner {
	return &interner{pool: make(map[string]string, 256)}
}

// intern returns the pooled copy of s, adding s when there is room.
func (in *interner) intern(s string) string {
	if len(s) > maxInternLen {
		return s
	}
	if pooled, ok := in.pool[s]; ok {
		return pooled
	}
	if len(in.pool) >= maxInternPoolSize {
		return s
	}
	in.pool[s] = s
	return s
}

func (in *interner) len() int {
	return len(in.pool)
}
