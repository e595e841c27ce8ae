package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"rush/internal/cache"
	"rush/internal/exec"
	"rush/internal/graph"
	"rush/internal/hook"
	"rush/internal/task"
)

func newTestExecutor(t *testing.T, tasks map[string][]string, cmds map[string]string) *Executor {
	t.Helper()
	return newTestExecutorWithCache(t, tasks, cmds, nil)
}

func newTestExecutorWithCache(t *testing.T, tasks map[string][]string, cmds map[string]string, caches map[string][]string) *Executor {
	t.Helper()
	m := &task.Manifest{Tasks: make(map[string]*task.Task, len(tasks))}
	for name, deps := range tasks {
		cmd := cmds[name]
		if cmd == "" {
			cmd = "true"
		}
		m.Tasks[name] = &task.Task{Name: name, Cmd: cmd, Deps: deps, Cache: caches[name]}
	}
	g, err := graph.New(m)
	require.NoError(t, err)

	workDir := t.TempDir()
	c := cache.New(workDir, hclog.NewNullLogger())
	procs := exec.NewManager(hclog.NewNullLogger())
	return New(g, c, procs, workDir, hclog.NewNullLogger())
}

func TestRun_runsDependenciesBeforeDependents(t *testing.T) {
	var mu sync.Mutex
	var finished []string

	e := newTestExecutor(t, map[string][]string{
		"build": {"compile"},
		"compile": nil,
	}, nil)

	hooks := hook.Hooks{After: func(name string, status hook.Status, d time.Duration, err error) {
		mu.Lock()
		finished = append(finished, name)
		mu.Unlock()
	}}

	err := e.Run("build", Options{Parallel: true, Hooks: hooks})
	require.NoError(t, err)
	require.Equal(t, []string{"compile", "build"}, finished)
}

func TestRun_secondRunHitsCache(t *testing.T) {
	e := newTestExecutorWithCache(t,
		map[string][]string{"build": nil},
		map[string]string{"build": "true"},
		map[string][]string{"build": {"does-not-exist.c"}},
	)

	var statuses []hook.Status
	hooks := hook.Hooks{After: func(name string, status hook.Status, d time.Duration, err error) {
		statuses = append(statuses, status)
	}}

	require.NoError(t, e.Run("build", Options{Parallel: true, Hooks: hooks}))
	require.NoError(t, e.Run("build", Options{Parallel: true, Hooks: hooks}))

	require.Equal(t, []hook.Status{hook.Success, hook.Cached}, statuses)
}

func TestRun_emptyCacheNeverSkipsExecution(t *testing.T) {
	e := newTestExecutor(t, map[string][]string{"build": nil}, map[string]string{"build": "true"})

	var statuses []hook.Status
	hooks := hook.Hooks{After: func(name string, status hook.Status, d time.Duration, err error) {
		statuses = append(statuses, status)
	}}

	require.NoError(t, e.Run("build", Options{Parallel: true, Hooks: hooks}))
	require.NoError(t, e.Run("build", Options{Parallel: true, Hooks: hooks}))

	require.Equal(t, []hook.Status{hook.Success, hook.Success}, statuses)
}

func TestRun_taskFailureIsReportedAndStopsLaterWaves(t *testing.T) {
	var mu sync.Mutex
	var ran []string

	e := newTestExecutor(t, map[string][]string{
		"build": {"compile"},
		"compile": nil,
	}, map[string]string{"compile": "exit 1"})

	hooks := hook.Hooks{Before: func(name, cmd string, env map[string]string) {
		mu.Lock()
		ran = append(ran, name)
		mu.Unlock()
	}}

	err := e.Run("build", Options{Parallel: true, Hooks: hooks})
	require.Error(t, err)
	require.Equal(t, []string{"compile"}, ran)
}

func TestRun_panicDuringTaskIsRecoveredAsFailure(t *testing.T) {
	e := newTestExecutor(t, map[string][]string{"build": nil}, nil)

	hooks := hook.Hooks{Before: func(name, cmd string, env map[string]string) {
		panic("boom")
	}}

	err := e.Run("build", Options{Parallel: true, Hooks: hooks})
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
}

func TestRun_peerFailuresInSameWaveAreReportedButBothRun(t *testing.T) {
	var mu sync.Mutex
	var ran []string

	e := newTestExecutor(t, map[string][]string{
		"all": {"a", "b"},
		"a":   nil,
		"b":   nil,
	}, map[string]string{"a": "exit 1", "b": "exit 1"})

	hooks := hook.Hooks{Before: func(name, cmd string, env map[string]string) {
		mu.Lock()
		ran = append(ran, name)
		mu.Unlock()
	}}

	err := e.Run("all", Options{Parallel: true, Hooks: hooks})
	require.Error(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ran, "both peers must run to completion even though one fails first")
}
