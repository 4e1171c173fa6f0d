package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/mattn/go-isatty"

	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/repo"
	"github.com/systemshift/snapvcs/internal/snapshot"
)

func formatCommit(c *history.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s\n", c.ID)
	if c.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", c.Author)
	}
	fmt.Fprintf(&b, "Date:   %s\n\n", c.Timestamp.Local().Format("Mon Jan 2 15:04:05 2006 -0700"))
	for _, line := range strings.Split(c.Message, "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	b.WriteByte('\n')
	return b.String()
}

func formatStatus(changes []snapshot.Change) string {
	if len(changes) == 0 {
		return "nothing to commit, working tree clean\n"
	}
	var b strings.Builder
	for _, ch := range changes {
		fmt.Fprintf(&b, "  %-9s %s\n", ch.Kind.String()+":", ch.Path)
	}
	return b.String()
}

func formatBranches(branches []history.Branch, current string) string {
	var b strings.Builder
	for _, br := range branches {
		mark := " "
		if br.Name == current {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %s %s\n", mark, br.Name, br.Tip.Short())
	}
	return b.String()
}

func formatDiff(files []repo.FileDiff, context int) string {
	var b strings.Builder
	for _, f := range files {
		from, to := "a/"+f.Path, "b/"+f.Path
		switch f.Kind {
		case snapshot.Added:
			from = "/dev/null"
		case snapshot.Deleted:
			to = "/dev/null"
		}
		fmt.Fprintf(&b, "diff a/%s b/%s\n", f.Path, f.Path)
		if f.Binary {
			fmt.Fprintf(&b, "Binary files %s and %s differ\n", from, to)
			continue
		}
		b.WriteString(f.Script.Unified(from, to, context))
	}
	return b.String()
}

func formatStat(files []repo.FileDiff) string {
	var b strings.Builder
	var ins, del int
	for _, f := range files {
		if f.Binary {
			fmt.Fprintf(&b, " %s | Bin\n", f.Path)
			continue
		}
		st := f.Script.Stats()
		ins += st.Inserted
		del += st.Deleted
		fmt.Fprintf(&b, " %s | %d %s%s\n", f.Path, st.Inserted+st.Deleted,
			strings.Repeat("+", min(st.Inserted, 40)), strings.Repeat("-", min(st.Deleted, 40)))
	}
	fmt.Fprintf(&b, " %d files changed, %d insertions(+), %d deletions(-)\n", len(files), ins, del)
	return b.String()
}

// useColor resolves a -color mode for f.
func useColor(mode string, f *os.File) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()), nil
	}
	return false, fmt.Errorf("invalid color mode %q", mode)
}

// writeDiff writes a patch, highlighted with the chroma diff lexer when
// colored is set.
func writeDiff(w io.Writer, patch string, colored bool) error {
	if !colored || patch == "" {
		_, err := io.WriteString(w, patch)
		return err
	}
	lexer := lexers.Get("diff")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, patch)
	if err != nil {
		return err
	}
	style := styles.Get("github-dark")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	return formatter.Format(w, style, iterator)
}
