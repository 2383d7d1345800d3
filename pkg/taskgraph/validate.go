package taskgraph

// Plan checks the graph reachable from name and returns the reachable task names with
// every task listed after its prerequisites. It fails with an UnknownTaskError if a
// referenced task doesn't exist and with a CycleError if a task can reach itself.
func (r *Registry) Plan(name string) ([]string, error) {
	if _, ok := r.tasks[name]; !ok {
		return nil, &UnknownTaskError{Name: name}
	}

	p := planner{
		registry: r,
		state:    make(map[string]visitState),
		order:    make([]string, 0),
	}
	err := p.visit(name, "")
	if err != nil {
		return nil, err
	}

	return p.order, nil
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

type planner struct {
	registry *Registry
	state    map[string]visitState
	stack    []string
	order    []string
}

func (p *planner) visit(name, parent string) error {
	switch p.state[name] {
	case visited:
		return nil
	case visiting:
		path := []string{name}
		for idx := len(p.stack) - 1; idx >= 0; idx-- {
			path = append([]string{p.stack[idx]}, path...)
			if p.stack[idx] == name {
				break
			}
		}
		return &CycleError{Path: path}
	}

	task, ok := p.registry.tasks[name]
	if !ok {
		return &UnknownTaskError{Name: name, ReferencedBy: parent}
	}

	p.state[name] = visiting
	p.stack = append(p.stack, name)

	for _, dep := range task.Deps {
		if err := p.visit(dep, name); err != nil {
			return err
		}
	}

	p.order = append(p.order, name)

	for _, step := range task.Steps {
		if err := p.visit(step, name); err != nil {
			return err
		}
	}

	p.stack = p.stack[:len(p.stack)-1]
	p.state[name] = visited
	return nil
}
