package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/repo"
)

const usage = `usage: snapvcs [-C dir] [-v] <command> [args]

commands:
  init      create a repository
  commit    record the working tree on a branch
  log       show commit history
  status    list changes against the branch tip
  diff      show line changes
  branch    list or create branches
  head      show or set the current branch
  cat       print stored content
  config    get and set repository options
  mount     mount history read-only with FUSE
  watch     report status whenever the working tree changes
`

type cli struct {
	log    *logrus.Logger
	stdout io.Writer
	stderr io.Writer
	dir    string
	// storageLog receives badger diagnostics.
	storageLog *logrus.Logger
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	c := &cli{log: log, stdout: os.Stdout, stderr: os.Stderr}
	if err := c.run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		entry := log.WithError(err)
		if history.IsRetryable(err) {
			entry = entry.WithField("hint", "the branch moved; run the command again")
		}
		entry.Error("snapvcs failed")
		os.Exit(1)
	}
}

func (c *cli) run(args []string) error {
	global := flag.NewFlagSet("snapvcs", flag.ContinueOnError)
	global.SetOutput(c.stderr)
	global.Usage = func() { fmt.Fprint(c.stderr, usage) }
	global.StringVar(&c.dir, "C", ".", "run as if started in `dir`")
	verbose := global.Bool("v", false, "verbose logging")
	if err := global.Parse(args); err != nil {
		return err
	}

	c.storageLog = logrus.New()
	c.storageLog.SetOutput(c.stderr)
	c.storageLog.SetLevel(logrus.WarnLevel)
	if *verbose {
		c.log.SetLevel(logrus.DebugLevel)
		c.storageLog.SetLevel(logrus.DebugLevel)
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return flag.ErrHelp
	}
	cmd, cmdArgs := rest[0], rest[1:]
	c.log.WithField("command", cmd).Debug("dispatch")

	switch cmd {
	case "init":
		return c.initCmd(cmdArgs)
	case "commit":
		return c.commitCmd(cmdArgs)
	case "log":
		return c.logCmd(cmdArgs)
	case "status":
		return c.statusCmd(cmdArgs)
	case "diff":
		return c.diffCmd(cmdArgs)
	case "branch":
		return c.branchCmd(cmdArgs)
	case "head":
		return c.headCmd(cmdArgs)
	case "cat":
		return c.catCmd(cmdArgs)
	case "config":
		return c.configCmd(cmdArgs)
	case "mount":
		return c.mountCmd(cmdArgs)
	case "watch":
		return c.watchCmd(cmdArgs)
	case "help":
		fmt.Fprint(c.stdout, usage)
		return nil
	}
	global.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) flagSet(name, synopsis string) *flag.FlagSet {
	fls := flag.NewFlagSet(name, flag.ContinueOnError)
	fls.SetOutput(c.stderr)
	fls.Usage = func() {
		fmt.Fprintf(c.stderr, "usage: snapvcs %s\n", synopsis)
		fls.PrintDefaults()
	}
	return fls
}

func (c *cli) options() repo.Options {
	return repo.Options{Logger: c.storageLog}
}

// open finds the repository containing the working directory.
func (c *cli) open() (*repo.Repository, error) {
	root, err := repo.Find(c.dir)
	if err != nil {
		return nil, err
	}
	c.log.WithField("root", root).Debug("opening repository")
	return repo.Open(root, c.options())
}
