package taskgraph

import (
	"fmt"
	"sort"
)

// Task is a named unit of work.
type Task struct {
	Name string
	Desc string
	// Deps have to finish successfully before Action starts.
	Deps []string
	// Action may be nil for alias and composite tasks.
	Action Action
	// Steps run strictly one after another once Action succeeded.
	Steps  []string
	Hidden bool
}

func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Name, t.Desc)
}

// Registry maps task names to their definitions. It's populated before any run and only
// read afterwards so it doesn't need any locking.
type Registry struct {
	tasks map[string]*Task
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds the task or replaces an earlier task with the same name.
func (r *Registry) Register(task *Task) {
	r.tasks[task.Name] = task
}

// Lookup returns the task with the given name
func (r *Registry) Lookup(name string) (*Task, bool) {
	task, ok := r.tasks[name]
	return task, ok
}

// Names returns the sorted names of all registered tasks. Hidden tasks are only included
// if withHidden is true.
func (r *Registry) Names(withHidden bool) []string {
	names := make([]string, 0, len(r.tasks))
	for name, task := range r.tasks {
		if task.Hidden && !withHidden {
			continue
		}
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Len returns the number of registered tasks
func (r *Registry) Len() int {
	return len(r.tasks)
}
