package logx

import (
	"io"
	"sync"

	aho "github.com/petar-dambovaliev/aho-corasick"
)

const redactedPlaceholder = "[REDACTED]"

// MaskingWriter wraps an io.Writer and replaces any occurrence of protected
// values with [REDACTED]. Uses Aho-Corasick for multi-pattern matching.
// Each Write is masked independently; the logger emits whole lines, so
// matches never straddle a Write boundary.
type MaskingWriter struct {
	mu      sync.Mutex
	out     io.Writer
	matcher *aho.AhoCorasick
	secrets map[string]struct{}
}

// NewMaskingWriter creates a MaskingWriter with an initially empty pattern
// set. Writes pass through unmodified until Protect is called.
func NewMaskingWriter(out io.Writer) *MaskingWriter {
	return &MaskingWriter{
		out:     out,
		secrets: make(map[string]struct{}),
	}
}

// Protect adds values to the redaction set. Empty strings are ignored — they
// are meaningless to match and would redact everything.
func (mw *MaskingWriter) Protect(values ...string) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	changed := false
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := mw.secrets[v]; !ok {
			mw.secrets[v] = struct{}{}
			changed = true
		}
	}
	if !changed {
		return
	}

	patterns := make([]string, 0, len(mw.secrets))
	for s := range mw.secrets {
		patterns = append(patterns, s)
	}
	builder := aho.NewAhoCorasickBuilder(aho.Opts{})
	m := builder.Build(patterns)
	mw.matcher = &m
}

// Write implements io.Writer.
func (mw *MaskingWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	if mw.matcher == nil {
		return mw.out.Write(p)
	}

	matches := mw.matcher.FindAll(string(p))
	if len(matches) == 0 {
		return mw.out.Write(p)
	}

	var result []byte
	pos := 0
	for _, m := range matches {
		if m.Start() < pos {
			continue // overlapping match
		}
		result = append(result, p[pos:m.Start()]...)
		result = append(result, []byte(redactedPlaceholder)...)
		pos = m.End()
	}
	result = append(result, p[pos:]...)

	if _, err := mw.out.Write(result); err != nil {
		return 0, err
	}
	return len(p), nil
}
