package diff

import (
	"fmt"
	"strings"
)

// Hunk is a run of changes with surrounding context. Starts are 1-based
// line numbers, or the line before the hunk when it spans no lines.
type Hunk struct {
	SrcStart, SrcLines int
	DstStart, DstLines int
	Edits              EditScript
}

// Header returns the "@@ -a,b +c,d @@" line.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%s +%s @@", formatRange(h.SrcStart, h.SrcLines), formatRange(h.DstStart, h.DstLines))
}

func formatRange(start, n int) string {
	if n == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, n)
}

// Hunks groups changes that lie within 2*context unchanged lines of each
// other. A negative context counts as zero.
func (s EditScript) Hunks(context int) []Hunk {
	if context < 0 {
		context = 0
	}
	// Source and target line offsets before each edit.
	srcAt := make([]int, len(s)+1)
	dstAt := make([]int, len(s)+1)
	var changed []int
	for k, e := range s {
		srcAt[k+1], dstAt[k+1] = srcAt[k], dstAt[k]
		if e.Kind != Inserted {
			srcAt[k+1]++
		}
		if e.Kind != Deleted {
			dstAt[k+1]++
		}
		if e.Kind != Unchanged {
			changed = append(changed, k)
		}
	}

	var hunks []Hunk
	for c := 0; c < len(changed); {
		first, last := changed[c], changed[c]
		c++
		for c < len(changed) && changed[c]-last-1 <= 2*context {
			last = changed[c]
			c++
		}
		start := max(0, first-context)
		end := min(len(s), last+context+1)

		h := Hunk{
			SrcLines: srcAt[end] - srcAt[start],
			DstLines: dstAt[end] - dstAt[start],
			Edits:    s[start:end],
		}
		h.SrcStart = srcAt[start]
		if h.SrcLines > 0 {
			h.SrcStart++
		}
		h.DstStart = dstAt[start]
		if h.DstLines > 0 {
			h.DstStart++
		}
		hunks = append(hunks, h)
	}
	return hunks
}

// Unified renders the script in unified diff format. It returns "" when
// there are no changes.
func (s EditScript) Unified(from, to string, context int) string {
	hunks := s.Hunks(context)
	if len(hunks) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", from, to)
	for _, h := range hunks {
		b.WriteString(h.Header())
		b.WriteByte('\n')
		for _, e := range h.Edits {
			switch e.Kind {
			case Deleted:
				b.WriteByte('-')
			case Inserted:
				b.WriteByte('+')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(e.Line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
