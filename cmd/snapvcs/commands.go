package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/snapvcs/internal/config"
	"github.com/systemshift/snapvcs/internal/digest"
	"github.com/systemshift/snapvcs/internal/fuse"
	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/repo"
	"github.com/systemshift/snapvcs/internal/snapshot"
	"github.com/systemshift/snapvcs/internal/watch"
)

func (c *cli) initCmd(args []string) error {
	fls := c.flagSet("init", "init [-backend file|badger] [-compression none|zstd|lzma] [-branch name] [dir]")
	backend := fls.String("backend", config.BackendFile, "storage backend")
	compression := fls.String("compression", "zstd", "blob compression")
	branch := fls.String("branch", "main", "initial branch")
	if err := fls.Parse(args); err != nil {
		return err
	}
	dir := c.dir
	if fls.NArg() > 0 {
		dir = fls.Arg(0)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	opts := c.options()
	opts.Settings = map[string]string{
		"core.backend":       *backend,
		"core.compression":   *compression,
		"core.defaultBranch": *branch,
	}
	r, err := repo.Init(dir, opts)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Fprintf(c.stdout, "Initialized empty repository in %s\n", repo.MetaPath(dir))
	return nil
}

func (c *cli) commitCmd(args []string) error {
	fls := c.flagSet("commit", "commit -m message [-b branch]")
	message := fls.String("m", "", "commit message")
	branch := fls.String("b", "", "branch to commit on (default: current)")
	if err := fls.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*message) == "" {
		return errors.New("commit: a message is required (-m)")
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	name := *branch
	if name == "" {
		if name, err = r.CurrentBranch(); err != nil {
			return err
		}
	}
	start := time.Now()
	commit, err := r.Commit(*message, name)
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"files":   commit.Snapshot.Len(),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("committed")

	root := ""
	if commit.IsRoot() {
		root = " (root commit)"
	}
	fmt.Fprintf(c.stdout, "[%s%s %s] %s\n", name, root, commit.ID.Short(), firstLine(commit.Message))
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func (c *cli) logCmd(args []string) error {
	fls := c.flagSet("log", "log [-n count] [-oneline] [rev]")
	limit := fls.Int("n", 0, "show at most `count` commits")
	oneline := fls.Bool("oneline", false, "one commit per line")
	if err := fls.Parse(args); err != nil {
		return err
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	start, err := r.Resolve(fls.Arg(0))
	if err != nil {
		return err
	}
	shown := 0
	for commit, err := range r.History.Log(start.ID) {
		if err != nil {
			return err
		}
		if *limit > 0 && shown == *limit {
			break
		}
		shown++
		if *oneline {
			fmt.Fprintf(c.stdout, "%s %s\n", commit.ID.Short(), firstLine(commit.Message))
			continue
		}
		fmt.Fprint(c.stdout, formatCommit(commit))
	}
	return nil
}

func (c *cli) statusCmd(args []string) error {
	fls := c.flagSet("status", "status [-b branch]")
	branch := fls.String("b", "", "compare against this branch (default: current)")
	if err := fls.Parse(args); err != nil {
		return err
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	name := *branch
	if name == "" {
		if name, err = r.CurrentBranch(); err != nil {
			return err
		}
	}
	changes, err := r.Status(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "On branch %s\n", name)
	fmt.Fprint(c.stdout, formatStatus(changes))
	return nil
}

func (c *cli) diffCmd(args []string) error {
	fls := c.flagSet("diff", "diff [-U n] [-stat] [-color auto|always|never] [rev [rev]]")
	unified := fls.Int("U", 3, "lines of context")
	stat := fls.Bool("stat", false, "show a summary instead of the patch")
	color := fls.String("color", "auto", "colorize output")
	if err := fls.Parse(args); err != nil {
		return err
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	var files []repo.FileDiff
	switch fls.NArg() {
	case 0:
		files, err = r.DiffWorking("")
	case 1:
		// Changes introduced by one commit.
		var to *history.Commit
		if to, err = r.Resolve(fls.Arg(0)); err != nil {
			return err
		}
		from := snapshot.Empty
		if !to.IsRoot() {
			parent, err := r.History.Get(to.Parent)
			if err != nil {
				return err
			}
			from = parent.Snapshot
		}
		files, err = r.DiffSnapshots(from, to.Snapshot)
	case 2:
		var from, to *history.Commit
		if from, err = r.Resolve(fls.Arg(0)); err != nil {
			return err
		}
		if to, err = r.Resolve(fls.Arg(1)); err != nil {
			return err
		}
		files, err = r.DiffCommits(from.ID, to.ID)
	default:
		fls.Usage()
		return errors.New("diff: too many revisions")
	}
	if err != nil {
		return err
	}

	if *stat {
		fmt.Fprint(c.stdout, formatStat(files))
		return nil
	}
	colored, err := useColor(*color, os.Stdout)
	if err != nil {
		return err
	}
	return writeDiff(c.stdout, formatDiff(files, *unified), colored)
}

func (c *cli) branchCmd(args []string) error {
	fls := c.flagSet("branch", "branch [name [rev]]")
	if err := fls.Parse(args); err != nil {
		return err
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	if fls.NArg() == 0 {
		current, err := r.CurrentBranch()
		if err != nil {
			return err
		}
		branches, err := r.Branches()
		if err != nil {
			return err
		}
		fmt.Fprint(c.stdout, formatBranches(branches, current))
		return nil
	}

	at, err := r.Resolve(fls.Arg(1))
	if err != nil {
		return err
	}
	return r.CreateBranch(fls.Arg(0), at.ID)
}

func (c *cli) headCmd(args []string) error {
	fls := c.flagSet("head", "head [branch]")
	if err := fls.Parse(args); err != nil {
		return err
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	if fls.NArg() == 0 {
		name, err := r.CurrentBranch()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, name)
		return nil
	}
	// Only moves HEAD; the working tree is left as it is.
	return r.Checkout(fls.Arg(0))
}

func (c *cli) catCmd(args []string) error {
	fls := c.flagSet("cat", "cat (<digest> | <rev> <path>)")
	if err := fls.Parse(args); err != nil {
		return err
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	var d digest.Digest
	switch fls.NArg() {
	case 1:
		if d, err = digest.Parse(fls.Arg(0)); err != nil {
			return err
		}
	case 2:
		commit, err := r.Resolve(fls.Arg(0))
		if err != nil {
			return err
		}
		var ok bool
		if d, ok = commit.Snapshot.Lookup(fls.Arg(1)); !ok {
			return fmt.Errorf("cat: %s not in commit %s", fls.Arg(1), commit.ID.Short())
		}
	default:
		fls.Usage()
		return errors.New("cat: wrong number of arguments")
	}
	data, err := r.Blob(d)
	if err != nil {
		return err
	}
	_, err = c.stdout.Write(data)
	return err
}

func (c *cli) configCmd(args []string) error {
	fls := c.flagSet("config", "config (get <key> | set <key> <value> | list)")
	if err := fls.Parse(args); err != nil {
		return err
	}
	pos := fls.Args()
	if len(pos) == 0 {
		fls.Usage()
		return errors.New("config: missing subcommand")
	}

	root, err := repo.Find(c.dir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(filepath.Join(repo.MetaPath(root), "config"))
	if err != nil {
		return err
	}

	switch pos[0] {
	case "get":
		if len(pos) != 2 {
			return errors.New("usage: snapvcs config get <key>")
		}
		val, err := cfg.Get(pos[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, val)
	case "set":
		if len(pos) != 3 {
			return errors.New("usage: snapvcs config set <key> <value>")
		}
		if err := cfg.Set(pos[1], pos[2]); err != nil {
			return err
		}
		return cfg.Save()
	case "list":
		for _, line := range cfg.List() {
			fmt.Fprintln(c.stdout, line)
		}
	default:
		return fmt.Errorf("unknown config command: %s", pos[0])
	}
	return nil
}

func (c *cli) mountCmd(args []string) error {
	fls := c.flagSet("mount", "mount [-debug] <mountpoint>")
	debug := fls.Bool("debug", false, "log FUSE requests")
	if err := fls.Parse(args); err != nil {
		return err
	}
	if fls.NArg() != 1 {
		fls.Usage()
		return errors.New("mount: a mountpoint is required")
	}
	mountpoint := fls.Arg(0)

	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}
	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	c.log.WithField("mountpoint", mountpoint).Info("mounting")
	server, err := fuse.MountFS(mountpoint, r, *debug)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-done
		c.log.Info("unmounting")
		if err := server.Unmount(); err != nil {
			c.log.WithError(err).Error("unmount")
		}
	}()

	c.log.WithField("pid", os.Getpid()).Info("ready")
	server.Wait()
	c.log.Info("stopped")
	return nil
}

func (c *cli) watchCmd(args []string) error {
	fls := c.flagSet("watch", "watch [-delay d]")
	delay := fls.Duration("delay", watch.DefaultDelay, "quiet period before reporting")
	if err := fls.Parse(args); err != nil {
		return err
	}

	r, err := c.open()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := func() {
		changes, err := r.Status("")
		if err != nil {
			c.log.WithError(err).Error("status")
			return
		}
		c.log.WithField("changes", len(changes)).Info("working tree changed")
		fmt.Fprint(c.stdout, formatStatus(changes))
	}
	report()

	w := watch.New(r.Root(), *delay, []string{snapshot.MetaDir, ".git"}, c.log)
	return w.Run(ctx, report)
}
