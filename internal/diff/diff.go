// Package diff computes line-level edit scripts between two texts.
//
// Diff aligns the inputs on a longest common subsequence using the classic
// dynamic-programming table, which costs O(n*m) time and space for inputs of
// n and m lines after their common prefix is removed. Any faster algorithm
// substituted here must keep the same tie-break: inside every run of changes
// all deletions come before all insertions.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/zeebo/xxh3"
)

// Kind classifies one line of an edit script.
type Kind int

const (
	Unchanged Kind = iota
	Deleted
	Inserted
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Deleted:
		return "deleted"
	case Inserted:
		return "inserted"
	}
	return "unknown"
}

// Edit is one line of an edit script.
type Edit struct {
	Kind Kind
	Line string
}

// EditScript transforms a source line sequence into a target one.
type EditScript []Edit

// Lines splits text into lines. Each line loses its "\n" or "\r\n"
// terminator; a trailing fragment without a newline still counts as a line.
// Empty input has no lines.
func Lines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	lines := difflib.SplitLines(s)
	// SplitLines terminates the final element itself, which for text already
	// ending in a newline is an extra empty line.
	terminated := strings.HasSuffix(s, "\n")
	if terminated {
		lines = lines[:len(lines)-1]
	}
	last := len(lines) - 1
	for i, l := range lines {
		l = strings.TrimSuffix(l, "\n")
		// An unterminated final line only carries the newline SplitLines
		// added, so a "\r" there is content.
		if i < last || terminated {
			l = strings.TrimSuffix(l, "\r")
		}
		lines[i] = l
	}
	return lines
}

// Join is the inverse of Lines for newline-terminated text.
func Join(lines []string) []byte {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Diff returns the edit script from src to dst.
func Diff(src, dst []string) EditScript {
	a, b := intern(src, dst)

	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	script := make(EditScript, 0, len(src)+len(dst)-pre)
	for i := 0; i < pre; i++ {
		script = append(script, Edit{Unchanged, src[i]})
	}

	x, y := a[pre:], b[pre:]
	n, m := len(x), len(y)

	// lcs[i*w+j] is the LCS length of x[i:] and y[j:].
	w := m + 1
	lcs := make([]int32, (n+1)*w)
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case x[i] == y[j]:
				lcs[i*w+j] = lcs[(i+1)*w+j+1] + 1
			case lcs[(i+1)*w+j] >= lcs[i*w+j+1]:
				lcs[i*w+j] = lcs[(i+1)*w+j]
			default:
				lcs[i*w+j] = lcs[i*w+j+1]
			}
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case x[i] == y[j]:
			script = append(script, Edit{Unchanged, src[pre+i]})
			i++
			j++
		case lcs[(i+1)*w+j] >= lcs[i*w+j+1]:
			script = append(script, Edit{Deleted, src[pre+i]})
			i++
		default:
			script = append(script, Edit{Inserted, dst[pre+j]})
			j++
		}
	}
	for ; i < n; i++ {
		script = append(script, Edit{Deleted, src[pre+i]})
	}
	for ; j < m; j++ {
		script = append(script, Edit{Inserted, dst[pre+j]})
	}
	return script
}

// DiffBytes splits both texts with Lines and diffs them.
func DiffBytes(src, dst []byte) EditScript {
	return Diff(Lines(src), Lines(dst))
}

// intern maps every distinct line to a small integer so the table compares
// ints. Lines are bucketed by xxh3 hash and compared exactly within a bucket.
func intern(src, dst []string) ([]int, []int) {
	buckets := make(map[uint64][]int)
	var distinct []string
	id := func(s string) int {
		h := xxh3.HashString(s)
		for _, k := range buckets[h] {
			if distinct[k] == s {
				return k
			}
		}
		k := len(distinct)
		distinct = append(distinct, s)
		buckets[h] = append(buckets[h], k)
		return k
	}
	a := make([]int, len(src))
	for i, s := range src {
		a[i] = id(s)
	}
	b := make([]int, len(dst))
	for i, s := range dst {
		b[i] = id(s)
	}
	return a, b
}
