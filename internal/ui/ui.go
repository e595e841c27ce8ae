// Package ui renders rush's terminal output: per-task status lines
// colored consistently by task name, the --list catalogue, and fatal
// error reporting. A color is assigned to a task name once and reused
// for the life of the process.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"rush/internal/hook"
	"rush/internal/task"
)

// IsTTY is true when stdout appears to be an interactive terminal.
var IsTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var (
	errorPrefix = color.New(color.Bold, color.FgRed, color.ReverseVideo).Sprint(" ERROR ")
	cachedColor = color.New(color.Faint)
	failColor   = color.New(color.FgRed)
	okColor     = color.New(color.FgGreen)
)

var taskColors = []func(format string, a ...interface{}) string{
	color.CyanString,
	color.MagentaString,
	color.GreenString,
	color.YellowString,
	color.BlueString,
}

// UI renders task status lines to out and fatal errors to errOut.
type UI struct {
	out, errOut io.Writer

	mu     sync.Mutex
	colors map[string]func(string, ...interface{}) string
	next   int
}

// New returns a UI writing task output to os.Stdout and errors to
// os.Stderr.
func New() *UI {
	return &UI{out: os.Stdout, errOut: os.Stderr, colors: make(map[string]func(string, ...interface{}) string)}
}

// colorFor returns a stable color function for a task name, assigning
// the next unused color the first time the name is seen.
func (u *UI) colorFor(name string) func(string, ...interface{}) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if fn, ok := u.colors[name]; ok {
		return fn
	}
	fn := taskColors[u.next%len(taskColors)]
	u.next++
	u.colors[name] = fn
	return fn
}

func (u *UI) prefix(name string) string {
	return u.colorFor(name)("%s", name)
}

// Hooks returns an executor hook.Hooks that renders each task's
// lifecycle as it happens.
func (u *UI) Hooks() hook.Hooks {
	return hook.Hooks{
		Before: func(name, cmd string, env map[string]string) {
			fmt.Fprintf(u.out, "%s %s\n", u.prefix(name), cmd)
		},
		After: func(name string, status hook.Status, d time.Duration, err error) {
			switch status {
			case hook.Cached:
				fmt.Fprintf(u.out, "%s %s\n", u.prefix(name), cachedColor.Sprint("cached"))
			case hook.Success:
				fmt.Fprintf(u.out, "%s %s %s\n", u.prefix(name), okColor.Sprint("done"), d.Round(time.Millisecond))
			case hook.Failed:
				fmt.Fprintf(u.out, "%s %s: %v\n", u.prefix(name), failColor.Sprint("failed"), err)
			}
		},
	}
}

// Fatal prints a top-level error (manifest, graph, or cache failure)
// to the UI's error stream.
func (u *UI) Fatal(err error) {
	fmt.Fprintf(u.errOut, "%s %v\n", errorPrefix, err)
}

// Out is where a task's captured stdout should be written on success.
func (u *UI) Out() io.Writer { return u.out }

// ErrOut is where a task's captured stderr should be written on
// failure.
func (u *UI) ErrOut() io.Writer { return u.errOut }

// Summary prints one line per task, sorted by name: name plus
// description and command if a description is set, name plus command
// otherwise. This is what a bare invocation with no task argument
// prints.
func (u *UI) Summary(m *task.Manifest) {
	for _, name := range sortedNames(m) {
		t := m.Tasks[name]
		prefix := u.colorFor(name)("%s", name)
		if t.Description != "" {
			fmt.Fprintf(u.out, "%s: %s (%s)\n", prefix, t.Description, t.Cmd)
		} else {
			fmt.Fprintf(u.out, "%s: %s\n", prefix, t.Cmd)
		}
	}
}

// List renders the manifest's tasks sorted by name as a full
// catalogue: the command and, when present, the description and
// dependencies, each on their own line.
func (u *UI) List(m *task.Manifest) {
	for _, name := range sortedNames(m) {
		t := m.Tasks[name]
		fmt.Fprintf(u.out, "%s\n", u.colorFor(name)("%s", name))
		fmt.Fprintf(u.out, "  cmd: %s\n", t.Cmd)
		if t.Description != "" {
			fmt.Fprintf(u.out, "  %s\n", t.Description)
		}
		if len(t.Deps) > 0 {
			fmt.Fprintf(u.out, "  deps: %v\n", t.Deps)
		}
	}
}

func sortedNames(m *task.Manifest) []string {
	names := m.Names()
	sort.Strings(names)
	return names
}
