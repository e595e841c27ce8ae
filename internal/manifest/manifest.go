// Package manifest loads the declarative task manifest (.rush / .rush.yml
// / .rush.yaml) and decodes it into the in-memory task.Manifest model.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rush/internal/task"
)

// candidateNames are searched in order; the first that exists is used.
var candidateNames = []string{".rush", ".rush.yml", ".rush.yaml"}

// Error reports a missing manifest file, a YAML parse failure, or a
// task declared with bad types. Always fatal.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Discover searches dir for the candidate manifest file names, in
// order, and returns the first that exists.
func Discover(dir string) (string, error) {
	for _, name := range candidateNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &Error{
		Path: filepath.Join(dir, candidateNames[0]),
		Err:  fmt.Errorf("no manifest found (tried %v)", candidateNames),
	}
}

type rawTask struct {
	Cmd         string            `yaml:"cmd"`
	Deps        []string          `yaml:"deps"`
	Cache       []string          `yaml:"cache"`
	Env         map[string]string `yaml:"env"`
	Description string            `yaml:"description"`
}

type rawManifest struct {
	Tasks map[string]rawTask `yaml:"tasks"`
}

// Load discovers, reads, substitutes variables into, and parses the
// manifest under dir.
func Load(dir string) (*task.Manifest, error) {
	path, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile parses a specific manifest file, bypassing discovery. Load
// calls it with the discovered path.
func LoadFile(path string) (*task.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	substituted := substitute(string(raw))

	var rm rawManifest
	if err := yaml.Unmarshal([]byte(substituted), &rm); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parsing manifest: %w", err)}
	}

	m := &task.Manifest{Tasks: make(map[string]*task.Task, len(rm.Tasks))}
	for name, rt := range rm.Tasks {
		if name == "" {
			return nil, &Error{Path: path, Err: fmt.Errorf("task name must not be empty")}
		}
		if rt.Cmd == "" {
			return nil, &Error{Path: path, Err: fmt.Errorf("task %q: cmd is required", name)}
		}
		m.Tasks[name] = &task.Task{
			Name:        name,
			Cmd:         rt.Cmd,
			Deps:        rt.Deps,
			Env:         rt.Env,
			Cache:       rt.Cache,
			Description: rt.Description,
		}
	}
	return m, nil
}
