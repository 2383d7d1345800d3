package script

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/actions"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

// BuildOptions control how definitions are turned into runnable tasks
type BuildOptions struct {
	// Force disables the inputs/outputs and skip_if_exists checks.
	Force bool
}

// Build registers a task for every definition.
//
// Commands run in the order they were listed. Consecutive shell commands share one
// interpreter so "cd" and variables carry over. A task value in cmds splits the list:
// everything before it becomes the task's action, the referenced task and the rest of the
// commands run as steps, ahead of the steps that were declared explicitly. Input/output and
// skip_if_exists checks cover all commands of the task but not the inline tasks.
func Build(defs *Definitions, registry *taskgraph.Registry, opts BuildOptions) error {
	for _, def := range defs.Tasks {
		segments, err := buildSegments(def)
		if err != nil {
			return eris.Wrapf(err, "failed to build task %s", def.Name)
		}

		task := &taskgraph.Task{
			Name:   def.Name,
			Desc:   def.Desc,
			Deps:   append([]string{}, def.Deps...),
			Hidden: def.Hidden,
		}

		hasChecks := len(def.SkipIfExists) > 0 || (len(def.Inputs) > 0 && len(def.Outputs) > 0)
		if hasChecks && (len(segments) == 0 || segments[0].action == nil) {
			return eris.Errorf("task %s declares inputs/outputs or skip_if_exists but doesn't start with a command they could guard", def.Name)
		}

		var guard *actions.UpToDateAction
		steps := make([]string, 0, len(def.Steps)+len(segments))
		for idx, segment := range segments {
			switch {
			case idx == 0 && segment.action != nil:
				task.Action = segment.action
				if hasChecks && !opts.Force {
					guard = actions.UpToDate(def.Base, def.Inputs, def.Outputs, def.SkipIfExists, segment.action)
					task.Action = guard
				}
			case segment.taskRef != "":
				steps = append(steps, segment.taskRef)
			case segment.action != nil:
				action := segment.action
				if guard != nil {
					action = guard.Follow(action)
				}

				name := fmt.Sprintf("%s#%d", def.Name, idx)
				registry.Register(&taskgraph.Task{
					Name:   name,
					Desc:   fmt.Sprintf("part %d of %s", idx, def.Name),
					Action: action,
					Hidden: true,
				})
				steps = append(steps, name)
			}
		}
		task.Steps = append(steps, def.Steps...)

		registry.Register(task)
	}

	return nil
}

type segment struct {
	action  taskgraph.Action
	taskRef string
}

func buildSegments(def *TaskDef) ([]segment, error) {
	segments := make([]segment, 0)
	current := make([]taskgraph.Action, 0)
	var shell *actions.ShellAction

	flush := func() {
		if len(current) == 1 {
			segments = append(segments, segment{action: current[0]})
		} else if len(current) > 1 {
			segments = append(segments, segment{action: actions.Sequence(current...)})
		}
		current = make([]taskgraph.Action, 0)
		shell = nil
	}

	for idx, cmd := range def.Cmds {
		base := cmd.Base
		if base == "" {
			base = def.Base
		}

		switch cmd.Kind {
		case CmdShell:
			if shell == nil {
				shell = actions.Shell(def.Base, def.Env)
				shell.Name = def.Name
				current = append(current, shell)
			}
			shell.Scripts = append(shell.Scripts, cmd.Script)
			continue
		case CmdTask:
			flush()
			segments = append(segments, segment{taskRef: cmd.Task})
			continue
		case CmdDelete:
			current = append(current, actions.Delete(base, cmd.Patterns...))
		case CmdCopy:
			current = append(current, actions.Copy(base, cmd.Patterns, cmd.Dest, cmd.Rename))
		case CmdConcat:
			current = append(current, actions.Concat(base, cmd.Patterns, cmd.Dest))
		case CmdCompress:
			action, err := actions.Compress(base, cmd.Patterns, cmd.Format)
			if err != nil {
				return nil, eris.Wrapf(err, "invalid command #%d", idx)
			}
			current = append(current, action)
		default:
			return nil, eris.Errorf("unexpected command kind %s in #%d", cmd.Kind, idx)
		}

		// file actions end the current shell block
		shell = nil
	}
	flush()

	return segments, nil
}
