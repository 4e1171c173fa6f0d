package diff

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMismatch is returned by Apply when the script was not computed from the
// given source.
var ErrMismatch = errors.New("edit script does not match source")

// Apply replays the script against src and returns the target lines.
func (s EditScript) Apply(src []string) ([]string, error) {
	out := make([]string, 0, len(src))
	i := 0
	for k, e := range s {
		switch e.Kind {
		case Unchanged, Deleted:
			if i >= len(src) || src[i] != e.Line {
				return nil, fmt.Errorf("%w: edit %d expects %q at source line %d", ErrMismatch, k, e.Line, i+1)
			}
			if e.Kind == Unchanged {
				out = append(out, e.Line)
			}
			i++
		case Inserted:
			out = append(out, e.Line)
		default:
			return nil, fmt.Errorf("edit %d: unknown kind %d", k, e.Kind)
		}
	}
	if i != len(src) {
		return nil, fmt.Errorf("%w: %d source lines not covered", ErrMismatch, len(src)-i)
	}
	return out, nil
}

// Source returns the lines the script was computed from.
func (s EditScript) Source() []string {
	var out []string
	for _, e := range s {
		if e.Kind != Inserted {
			out = append(out, e.Line)
		}
	}
	return out
}

// Target returns the lines the script produces.
func (s EditScript) Target() []string {
	var out []string
	for _, e := range s {
		if e.Kind != Deleted {
			out = append(out, e.Line)
		}
	}
	return out
}

// Changes drops unchanged lines.
func (s EditScript) Changes() EditScript {
	var out EditScript
	for _, e := range s {
		if e.Kind != Unchanged {
			out = append(out, e)
		}
	}
	return out
}

// Stats counts lines per kind.
type Stats struct {
	Unchanged int
	Inserted  int
	Deleted   int
}

func (s EditScript) Stats() Stats {
	var st Stats
	for _, e := range s {
		switch e.Kind {
		case Unchanged:
			st.Unchanged++
		case Inserted:
			st.Inserted++
		case Deleted:
			st.Deleted++
		}
	}
	return st
}

// Identical reports whether the script contains no changes.
func (s EditScript) Identical() bool {
	for _, e := range s {
		if e.Kind != Unchanged {
			return false
		}
	}
	return true
}

func marker(k Kind) string {
	switch k {
	case Deleted:
		return "- "
	case Inserted:
		return "+ "
	}
	return "  "
}

// String renders one line per edit with a two-character marker.
func (s EditScript) String() string {
	var b strings.Builder
	for _, e := range s {
		b.WriteString(marker(e.Kind))
		b.WriteString(e.Line)
		b.WriteByte('\n')
	}
	return b.String()
}
