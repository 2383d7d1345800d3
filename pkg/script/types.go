package script

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
)

// CmdKind identifies the type of a task command
type CmdKind int

const (
	CmdShell CmdKind = iota
	CmdTask
	CmdDelete
	CmdCopy
	CmdConcat
	CmdCompress
)

func (k CmdKind) String() string {
	switch k {
	case CmdShell:
		return "shell"
	case CmdTask:
		return "task"
	case CmdDelete:
		return "delete"
	case CmdCopy:
		return "copy"
	case CmdConcat:
		return "concat"
	case CmdCompress:
		return "compress"
	default:
		return fmt.Sprintf("cmd(%d)", int(k))
	}
}

// CmdDef is a single entry of a task's cmds list
type CmdDef struct {
	Kind     CmdKind
	Script   string
	Task     string
	Base     string
	Patterns []string
	Dest     string
	Rename   string
	Format   string
}

// TaskDef contains the processed values passed to task() by the task script
type TaskDef struct {
	Name         string
	Desc         string
	Base         string
	Env          map[string]string
	Deps         []string
	Steps        []string
	Inputs       []string
	Outputs      []string
	SkipIfExists []string
	Cmds         []CmdDef
	Hidden       bool
}

// Definitions is everything a task script declared
type Definitions struct {
	// Tasks are listed in declaration order
	Tasks []*TaskDef
	// Options contains the declared options
	Options map[string]ScriptOption
	// Sources lists the files besides the script that were read during loading
	Sources []string
}

// Lookup returns the definition with the given name
func (d *Definitions) Lookup(name string) (*TaskDef, bool) {
	for _, task := range d.Tasks {
		if task.Name == name {
			return task, true
		}
	}

	return nil, false
}

// ScriptOption is an option declared with option()
type ScriptOption struct {
	DefaultValue string
	Help         string
}

// Implement starlark.Value for *TaskDef

// String returns a string representation of the task
func (t *TaskDef) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Name, t.Desc)
}

// Type always returns "task" to indicate this type
func (t *TaskDef) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks are immutable anyway
func (t *TaskDef) Freeze() {}

// Truth always returns true since a task can't be nil or None
func (t *TaskDef) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since task is not hashable
func (t *TaskDef) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// actionValue is returned by the delete(), copy(), concat() and compress() builtins
type actionValue struct {
	cmd CmdDef
}

func (a *actionValue) String() string {
	return fmt.Sprintf("<Action %s %v>", a.cmd.Kind, a.cmd.Patterns)
}

func (a *actionValue) Type() string {
	return "action"
}

func (a *actionValue) Freeze() {}

func (a *actionValue) Truth() starlark.Bool {
	return starlark.True
}

func (a *actionValue) Hash() (uint32, error) {
	return 0, eris.New("action is not a hashable type")
}

type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
