// Package graph builds the task dependency graph from a manifest and
// derives topological schedules from it: a linear plan from a chosen
// root, and a wave partition of that plan for parallel dispatch.
package graph

import (
	"fmt"

	"github.com/pyr-sh/dag"

	"rush/internal/task"
	"rush/internal/util"
)

// Graph is the derived adjacency structure over a manifest's tasks.
type Graph struct {
	Tasks  map[string]*task.Task
	DepsOf map[string][]string
}

// New builds a Graph from a manifest. It rejects, at construction
// time, any dependency name that isn't itself a task (regardless of
// reachability from any particular root), and any cycle anywhere in
// the full manifest.
func New(m *task.Manifest) (*Graph, error) {
	g := &Graph{
		Tasks:  m.Tasks,
		DepsOf: make(map[string][]string, len(m.Tasks)),
	}

	full := &dag.AcyclicGraph{}
	for name, t := range m.Tasks {
		g.DepsOf[name] = t.Deps
		full.Add(name)
	}
	for name, deps := range g.DepsOf {
		for _, dep := range deps {
			if _, ok := g.Tasks[dep]; !ok {
				return nil, &MissingTaskError{Task: name, Dependency: dep}
			}
			full.Add(dep)
			full.Connect(dag.BasicEdge(name, dep))
		}
	}
	// Validate would also demand a single root, but a manifest may hold
	// any number of independent top-level tasks, so only cycles and
	// self-dependencies are checked here.
	if cycles := full.Cycles(); len(cycles) > 0 {
		return nil, &CycleError{Err: fmt.Errorf("cycles: %v", cycles)}
	}
	for _, e := range full.Edges() {
		if e.Source() == e.Target() {
			return nil, &CycleError{Err: fmt.Errorf("self-dependency: %v", e.Source())}
		}
	}
	return g, nil
}

// Plan performs a depth-first post-order traversal from root and
// returns a linear topological order of root's dependency closure:
// dependencies precede dependents. Implemented iteratively (an
// explicit stack rather than recursion) to avoid deep-recursion limits
// on pathological manifests.
func (g *Graph) Plan(root string) ([]string, error) {
	if _, ok := g.Tasks[root]; !ok {
		return nil, &MissingTaskError{Dependency: root}
	}

	done := util.NewStringSet()
	pending := util.NewStringSet()
	order := make([]string, 0, len(g.Tasks))

	type frame struct {
		name string
		idx  int
	}
	stack := []*frame{{name: root}}
	pending.Add(root)

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		deps := g.DepsOf[top.name]

		if top.idx < len(deps) {
			dep := deps[top.idx]
			top.idx++

			if done.Has(dep) {
				continue
			}
			if pending.Has(dep) {
				return nil, &CycleError{Task: dep}
			}
			if _, ok := g.Tasks[dep]; !ok {
				return nil, &MissingTaskError{Task: top.name, Dependency: dep}
			}
			pending.Add(dep)
			stack = append(stack, &frame{name: dep})
			continue
		}

		// All of top's dependencies are committed to order; top can
		// now be committed too.
		stack = stack[:len(stack)-1]
		pending.Delete(top.name)
		done.Add(top.name)
		order = append(order, top.name)
	}

	return order, nil
}

// Waves partitions order into levels such that every task in level w
// has all of its dependencies in some level < w. Within a level, tasks
// keep their relative position from order.
//
// Greedy level-by-level sweep: at each step, emit as one wave every
// not-yet-emitted task whose dependencies are all already emitted.
func Waves(g *Graph, order []string) ([][]string, error) {
	emitted := util.NewStringSet()
	remaining := append([]string(nil), order...)

	var waves [][]string
	for len(remaining) > 0 {
		var wave, next []string
		for _, name := range remaining {
			ready := true
			for _, dep := range g.DepsOf[name] {
				if !emitted.Has(dep) {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, name)
			} else {
				next = append(next, name)
			}
		}
		if len(wave) == 0 {
			// Defensive: should be unreachable once Plan has already
			// rejected cycles.
			return nil, fmt.Errorf("internal error: empty wave with tasks remaining: %v", remaining)
		}
		for _, name := range wave {
			emitted.Add(name)
		}
		waves = append(waves, wave)
		remaining = next
	}
	return waves, nil
}
