// Package cmd holds rush's root cobra command. RunWithArgs races the
// command's own completion against a signal watcher, so an interrupt
// during execution still runs cleanup and reports a failing exit code
// instead of hanging.
package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"rush/internal/cache"
	"rush/internal/exec"
	"rush/internal/executor"
	"rush/internal/graph"
	"rush/internal/manifest"
	signalpkg "rush/internal/signal"
	"rush/internal/ui"
	"rush/internal/watch"
)

// osInterruptSignal is what a stopping exec.Manager forwards to its
// tracked process groups; SIGTERM gives a task's own process a chance
// to run its exit handlers, where SIGKILL would not.
const osInterruptSignal = syscall.SIGTERM

func workingDir() (string, error) {
	return os.Getwd()
}

// Options holds the parsed flags for a single invocation.
type Options struct {
	Parallel bool
	Watch    bool
	List     bool
	Verbose  bool
}

func (o *Options) addFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&o.Parallel, "parallel", "j", false, "run independent tasks within a wave concurrently")
	flags.BoolVarP(&o.Watch, "watch", "w", false, "re-run the task whenever a file under the working directory changes")
	flags.BoolVarP(&o.List, "list", "l", false, "print the task catalogue and exit")
	flags.BoolVarP(&o.Verbose, "verbose", "v", false, "enable debug logging")
}

// RunWithArgs runs rush with the specified arguments, not including
// the binary name, and returns a process exit code.
func RunWithArgs(args []string) int {
	signalWatcher := signalpkg.NewWatcher()
	root := getCmd(signalWatcher)
	root.SetArgs(args)

	doneCh := make(chan struct{})
	var execErr error
	go func() {
		execErr = root.Execute()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		signalWatcher.Close()
		if execErr != nil {
			return 1
		}
		return 0
	case <-signalWatcher.Done():
		return 1
	}
}

func getCmd(signalWatcher *signalpkg.Watcher) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "rush [task]",
		Short:         "rush runs declared tasks in dependency order",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, opts, signalWatcher)
		},
	}
	opts.addFlags(root.Flags())
	return root
}

func run(args []string, opts *Options, signalWatcher *signalpkg.Watcher) error {
	level := hclog.Info
	if opts.Verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "rush", Level: level})
	out := ui.New()

	workDir, err := workingDir()
	if err != nil {
		out.Fatal(err)
		return err
	}

	m, err := manifest.Load(workDir)
	if err != nil {
		out.Fatal(err)
		return err
	}

	if opts.List {
		out.List(m)
		return nil
	}
	if len(args) == 0 {
		out.Summary(m)
		return nil
	}
	target := args[0]
	if _, ok := m.Tasks[target]; !ok {
		err := fmt.Errorf("unknown task %q; available tasks: %v", target, m.Names())
		out.Fatal(err)
		return err
	}

	g, err := graph.New(m)
	if err != nil {
		out.Fatal(err)
		return err
	}

	c := cache.New(workDir, logger)
	procs := exec.NewManager(logger)
	signalWatcher.AddOnClose(func() { procs.Stop(osInterruptSignal) })

	e := executor.New(g, c, procs, workDir, logger)
	e.Stdout = out.Out()
	e.Stderr = out.ErrOut()

	runOnce := func() error {
		return e.Run(target, executor.Options{Parallel: opts.Parallel, Hooks: out.Hooks()})
	}

	if !opts.Watch {
		if err := runOnce(); err != nil {
			out.Fatal(err)
			return err
		}
		return nil
	}

	if err := runOnce(); err != nil {
		logger.Error("run failed", "error", err)
	}

	w, err := watch.New(workDir, cache.DirName, logger)
	if err != nil {
		out.Fatal(err)
		return err
	}
	defer w.Close()

	stop := make(chan struct{})
	signalWatcher.AddOnClose(func() { close(stop) })

	w.Run(stop, func() error {
		if err := c.Wipe(); err != nil {
			return err
		}
		return runOnce()
	})
	return nil
}
