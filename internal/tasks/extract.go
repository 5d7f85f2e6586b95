// Package tasks finds checklist items ("- [ ] buy milk", "* [x] done") in
// free-text event descriptions.
package tasks

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"schedimport/internal/model"
)

// Options describes the checklist dialect recognized by an Extractor.
type Options struct {
	// Bullets lists the characters accepted as list bullets.
	Bullets string
	// Open lists status characters meaning "not done".
	Open string
	// Done lists status characters meaning "done". Matching is exact, so
	// both cases must be listed for case-insensitive behavior.
	Done string
	// StripPrefixes are removed from the start of a line (with any
	// whitespace that follows) before the marker search.
	StripPrefixes []string
}

// DefaultOptions returns the dialect seen in practice: "-" or "*" bullets,
// " " for open, "x"/"X" for done, and the "Original Text:" artifact that
// some sources prepend to a rephrased copy of the text.
func DefaultOptions() Options {
	return Options{
		Bullets:       "-*",
		Open:          " ",
		Done:          "xX",
		StripPrefixes: []string{"Original Text:"},
	}
}

// Extractor is safe for concurrent use.
type Extractor struct {
	opts   Options
	marker *regexp.Regexp
}

var defaultExtractor = MustNew(DefaultOptions())

// New compiles an Extractor for opts.
func New(opts Options) (*Extractor, error) {
	if opts.Bullets == "" {
		return nil, errors.New("tasks: no bullet characters configured")
	}
	if opts.Open+opts.Done == "" {
		return nil, errors.New("tasks: no status characters configured")
	}
	if strings.ContainsAny(opts.Open, opts.Done) {
		return nil, errors.New("tasks: a status character cannot be both open and done")
	}

	// bullet, optional space, "[", one status char, "]", at least one
	// whitespace, rest of line. Unanchored on purpose: other leading
	// characters may remain in front of the bullet.
	pattern := `[` + charClass(opts.Bullets) + `]\s*\[([` + charClass(opts.Open+opts.Done) + `])\]\s+(.*)`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Extractor{opts: opts, marker: re}, nil
}

// MustNew is like New but panics on invalid options.
func MustNew(opts Options) *Extractor {
	e, err := New(opts)
	if err != nil {
		panic(err)
	}
	return e
}

// Extract runs the default extractor over description.
func Extract(description string) []model.Task {
	return defaultExtractor.Extract(description)
}

// Extract returns the tasks found in description in source order. A line
// yields at most one task. The result is never nil.
func (e *Extractor) Extract(description string) []model.Task {
	out := make([]model.Task, 0)
	if description == "" {
		return out
	}

	for _, line := range strings.Split(FoldNewlines(description), "\n") {
		line = e.stripPrefix(line)

		m := e.marker.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}
		out = append(out, model.Task{
			Text:      text,
			Completed: strings.Contains(e.opts.Done, m[1]),
		})
	}
	return out
}

func (e *Extractor) stripPrefix(line string) string {
	for _, p := range e.opts.StripPrefixes {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimLeftFunc(rest, unicode.IsSpace)
		}
	}
	return line
}

var newlineFolder = strings.NewReplacer(`\n`, "\n", "\r\n", "\n", "\r", "\n")

// FoldNewlines turns literal two-character "\n" sequences and CR/CRLF line
// endings into plain "\n". Folding an already folded string is a no-op.
func FoldNewlines(s string) string {
	return newlineFolder.Replace(s)
}

// charClass escapes chars for use inside a regexp bracket expression.
func charClass(chars string) string {
	var b strings.Builder
	for _, r := range chars {
		switch r {
		case '\\', ']', '[', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
