// Package task holds the in-memory task definitions consumed by the
// graph, cache and executor packages.
package task

// Task is a single named unit of work declared in a manifest.
type Task struct {
	// Name is the unique key for this task within a Manifest.
	Name string
	// Cmd is shell text, executed verbatim under the host shell.
	Cmd string
	// Deps are task names that must complete successfully before this
	// task may start. Order is the declared order; duplicates are
	// permitted and semantically idempotent.
	Deps []string
	// Env is merged on top of the inherited process environment, for
	// this task only. Overlay wins on key conflict.
	Env map[string]string
	// Cache is the ordered list of file paths (relative to the working
	// directory) that define this task's fingerprint. An empty list
	// disables caching for the task.
	Cache []string
	// Description is a human-readable label, presentation only.
	Description string
}

// Manifest is the full set of tasks loaded from a manifest file.
type Manifest struct {
	Tasks map[string]*Task
}

// Names returns the task names in the manifest, unordered.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Tasks))
	for name := range m.Tasks {
		names = append(names, name)
	}
	return names
}
