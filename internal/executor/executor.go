// Package executor runs a task plan wave by wave: within a wave, every
// task's dependencies are already satisfied, so the wave's tasks run
// concurrently when Options.Parallel is set (one at a time otherwise);
// waves themselves run in order. A task whose fingerprint
// is already fresh in the cache is skipped, not dispatched.
package executor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"rush/internal/cache"
	"rush/internal/exec"
	"rush/internal/graph"
	"rush/internal/hook"
)

// Options configures a single Run.
type Options struct {
	// Parallel allows every task within a wave to run concurrently.
	// When false, a wave's tasks still run one at a time, in their
	// deterministic plan order — useful for debugging interleaved
	// output.
	Parallel bool
	Hooks    hook.Hooks
}

// Executor runs task plans against a graph, a cache, and a process
// manager.
type Executor struct {
	graph   *graph.Graph
	cache   *cache.Cache
	procs   *exec.Manager
	workDir string
	logger  hclog.Logger

	// Stdout and Stderr receive a task's captured output once it has
	// finished: its whole stdout on success, its whole stderr on
	// failure. Output is never streamed while the task is running.
	Stdout, Stderr io.Writer
}

// New returns an Executor for g, rooted at workDir, using c for
// freshness checks and procs to spawn task commands. Output defaults
// to io.Discard; set Stdout/Stderr on the returned value to print it.
func New(g *graph.Graph, c *cache.Cache, procs *exec.Manager, workDir string, logger hclog.Logger) *Executor {
	return &Executor{
		graph:   g,
		cache:   c,
		procs:   procs,
		workDir: workDir,
		logger:  logger.Named("executor"),
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
}

// Run plans root's dependency closure, partitions it into waves, and
// executes those waves in order. Within a wave, every task still runs
// to completion even after one fails — the first-reported failure is
// what Run returns; later failures in the same wave are logged and
// discarded. Later waves do not start once a wave has any failure.
func (e *Executor) Run(root string, opts Options) error {
	order, err := e.graph.Plan(root)
	if err != nil {
		return err
	}
	waves, err := graph.Waves(e.graph, order)
	if err != nil {
		return err
	}
	e.logger.Debug("dependency resolution", "target", root, "order", order, "waves", len(waves))

	for _, wave := range waves {
		if err := e.runWave(wave, opts); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runWave(wave []string, opts Options) error {
	var (
		mu    sync.Mutex
		first error
		peers *multierror.Error
	)

	run := func(name string) {
		if err := e.runTaskRecovered(name, opts.Hooks); err != nil {
			wrapped := fmt.Errorf("%s: %w", name, err)
			mu.Lock()
			if first == nil {
				first = wrapped
			} else {
				peers = multierror.Append(peers, wrapped)
			}
			mu.Unlock()
		}
	}

	if !opts.Parallel {
		// Every task in the wave could run concurrently, but running
		// them one at a time in plan order is occasionally useful for
		// untangling interleaved output while debugging.
		for _, name := range wave {
			run(name)
		}
	} else {
		var g errgroup.Group
		for _, name := range wave {
			name := name
			g.Go(func() error {
				run(name)
				return nil
			})
		}
		_ = g.Wait()
	}

	// The first failure is what Run reports; any peers in the same wave
	// are logged as a single combined warning and discarded, per the
	// first-reported-wins contract.
	if peers.ErrorOrNil() != nil {
		e.logger.Warn("peer tasks failed in same wave", "errors", peers.ErrorOrNil())
	}
	return first
}

// runTaskRecovered runs a single task with a recover guarding the call:
// a panic inside runTask (or anything it calls) is converted into an
// ordinary failure instead of taking down the whole wave. This mirrors
// treating a crashed worker the same as a task that exited non-zero at
// the caller boundary.
func (e *Executor) runTaskRecovered(name string, hooks hook.Hooks) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panicked: %v", r)
		}
	}()
	return e.runTask(name, hooks)
}

// runTask executes a single task: a cache hit short-circuits straight
// to the After hook; a miss spawns the command, then commits the
// cache on success. A task declared with no cache inputs never
// consults or writes the cache at all — it always runs.
func (e *Executor) runTask(name string, hooks hook.Hooks) error {
	t := e.graph.Tasks[name]
	cacheable := len(t.Cache) > 0

	var fingerprint string
	if cacheable {
		var err error
		fingerprint, err = e.cache.Fingerprint(t)
		if err != nil {
			return err
		}

		fresh, err := e.cache.IsFresh(name, fingerprint)
		if err != nil {
			return err
		}
		if fresh {
			e.logger.Debug("cache hit", "task", name)
			if hooks.After != nil {
				hooks.After(name, hook.Cached, 0, nil)
			}
			return nil
		}
	}

	e.logger.Debug("about to run task", "task", name, "cmd", t.Cmd, "env", t.Env)

	if hooks.Before != nil {
		hooks.Before(name, t.Cmd, t.Env)
	}

	start := time.Now()
	result, err := e.procs.Run(t, e.workDir)
	duration := time.Since(start)

	if err != nil {
		if hooks.After != nil {
			hooks.After(name, hook.Failed, duration, err)
		}
		return err
	}

	if result.ExitCode != exec.ExitCodeOK {
		fmt.Fprint(e.Stderr, result.Stderr)
		runErr := &Error{Task: name, ExitCode: result.ExitCode, Stderr: result.Stderr}
		if hooks.After != nil {
			hooks.After(name, hook.Failed, duration, runErr)
		}
		return runErr
	}
	fmt.Fprint(e.Stdout, result.Stdout)

	if cacheable {
		if err := e.cache.Commit(name, fingerprint); err != nil {
			return err
		}
	}
	if hooks.After != nil {
		hooks.After(name, hook.Success, duration, nil)
	}
	return nil
}
