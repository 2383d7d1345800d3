package script

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	tasks        []*TaskDef
	initPhase    bool
}

// * Helpers

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// processCmdParts turns a list of arguments into a shell command. Leading "KEY=value"
// strings become variable assignments.
func processCmdParts(parts starlark.Tuple, parser *syntax.Parser, base string) (*syntax.CallExpr, error) {
	envVars := make([]string, 0, len(parts))
	for _, part := range parts {
		value, ok := part.(starlark.String)
		if !ok || !strings.Contains(value.GoString(), "=") {
			break
		}
		envVars = append(envVars, value.GoString())
	}

	var cmd *syntax.CallExpr
	if len(envVars) > 0 {
		joinedEnvVars := strings.Join(envVars, " ")
		result, err := parser.Parse(strings.NewReader(joinedEnvVars), "env vars")
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command vars %s", joinedEnvVars)
		}

		if len(result.Stmts) != 1 || result.Stmts[0].Cmd == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}

		var ok bool
		cmd, ok = result.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || cmd.Assigns == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}
	} else {
		cmd = new(syntax.CallExpr)
	}

	argCount := len(parts) - len(envVars)
	cmd.Args = make([]*syntax.Word, argCount)
	for a, arg := range parts[len(envVars):] {
		var encodedValue string

		switch value := arg.(type) {
		case starlark.String:
			encodedValue = value.GoString()
		case StarlarkPath:
			encodedValue = string(value)

			if filepath.IsAbs(encodedValue) {
				// absolute paths cause issues on Windows
				relValue, err := filepath.Rel(base, encodedValue)
				if err == nil {
					encodedValue = relValue
				}
			}

			encodedValue = filepath.ToSlash(encodedValue)
		default:
			return nil, eris.Errorf("found argument of type %s but only strings and paths are supported: %s", arg.Type(), arg.String())
		}

		var wordPart syntax.WordPart
		if strings.ContainsAny(encodedValue, " $'\"*?") {
			wordPart = &syntax.SglQuoted{Value: encodedValue}
		} else {
			wordPart = &syntax.Lit{Value: encodedValue}
		}

		cmd.Args[a] = &syntax.Word{Parts: []syntax.WordPart{wordPart}}
	}

	return cmd, nil
}

// cmdToScript converts a tuple or list of arguments to a shell script
func cmdToScript(parts starlark.Tuple, base string) (string, error) {
	cmd, err := processCmdParts(parts, syntax.NewParser(), base)
	if err != nil {
		return "", err
	}

	strBuffer := strings.Builder{}
	err = syntax.NewPrinter(syntax.Minify(true)).Print(&strBuffer, cmd)
	if err != nil {
		return "", err
	}

	return strBuffer.String(), nil
}

func listToTuple(list *starlark.List) starlark.Tuple {
	parts := make(starlark.Tuple, list.Len())
	for idx := 0; idx < list.Len(); idx++ {
		parts[idx] = list.Index(idx)
	}

	return parts
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	filepath := simplifyPath(ctx, ctx.filepath)

	taskgraph.Log(ctx.ctx).Info().
		Msgf("%s:%d:%d: %s", filepath, pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	filepath := simplifyPath(ctx, ctx.filepath)

	taskgraph.Log(ctx.ctx).Warn().
		Msgf("%s:%d:%d: %s", filepath, pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// * Builtin functions

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue.GoString(),
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps *starlark.List
	var steps *starlark.List
	var skipIfExists *starlark.List
	var inputs *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict
	var cmds *starlark.List

	ctx := getCtx(thread)
	if ctx.initPhase {
		return nil, eris.New("tasks can only be declared inside configure()")
	}

	task := new(TaskDef)
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name?", &task.Name, "desc?", &task.Desc,
		"deps?", &deps, "cmds?", &cmds, "steps?", &steps, "base?", &task.Base, "env?", &env,
		"inputs?", &inputs, "outputs?", &outputs, "skip_if_exists?", &skipIfExists, "hidden?", &task.Hidden)
	if err != nil {
		return nil, err
	}

	if task.Name == "" {
		task.Hidden = true
		task.Name = "auto#" + nanoid.New()
	}

	if task.Name == "configure" {
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	if task.Base == "" {
		task.Base = "."
	}
	task.Base = normalizePath(ctx, task.Base)

	task.Deps, err = taskRefList(deps, "deps")
	if err != nil {
		return nil, err
	}

	task.Steps, err = taskRefList(steps, "steps")
	if err != nil {
		return nil, err
	}

	task.SkipIfExists, err = starlarkIterable2stringSlice(skipIfExists, "skip_if_exists")
	if err != nil {
		return nil, err
	}

	task.Inputs, err = starlarkIterable2stringSlice(inputs, "inputs")
	if err != nil {
		return nil, err
	}

	task.Outputs, err = starlarkIterable2stringSlice(outputs, "outputs")
	if err != nil {
		return nil, err
	}

	task.Env = map[string]string{}
	if env != nil {
		for _, rawKey := range env.Keys() {
			key, ok := rawKey.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", rawKey.Type())
			}

			rawValue, _, err := env.Get(rawKey)
			if err != nil {
				return nil, err
			}

			switch value := rawValue.(type) {
			case starlark.String:
				task.Env[key.GoString()] = value.GoString()
			case StarlarkPath:
				task.Env[key.GoString()] = string(value)
			default:
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", rawValue.Type(), key.GoString())
			}
		}
	}

	task.Cmds = make([]CmdDef, 0)
	if cmds != nil {
		for idx := 0; idx < cmds.Len(); idx++ {
			item := cmds.Index(idx)
			switch value := item.(type) {
			case starlark.String:
				task.Cmds = append(task.Cmds, CmdDef{Kind: CmdShell, Script: value.GoString()})
			case starlark.Tuple:
				script, err := cmdToScript(value, task.Base)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}
				task.Cmds = append(task.Cmds, CmdDef{Kind: CmdShell, Script: script})
			case *starlark.List:
				script, err := cmdToScript(listToTuple(value), task.Base)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}
				task.Cmds = append(task.Cmds, CmdDef{Kind: CmdShell, Script: script})
			case *actionValue:
				task.Cmds = append(task.Cmds, value.cmd)
			case *TaskDef:
				task.Cmds = append(task.Cmds, CmdDef{Kind: CmdTask, Task: value.Name})
			default:
				return nil, eris.Errorf("%s: unexpected type %s in cmds. Only strings, tuples, lists, actions and tasks are valid", fn.Name(), item.Type())
			}
		}
	}

	if len(task.Inputs) > 0 && len(task.Outputs) == 0 {
		warn(thread, "%s: found inputs but no outputs", fn.Name())
	}

	ctx.tasks = append(ctx.tasks, task)
	return task, nil
}

// Load executes a task script and returns the declared options and tasks. options
// overrides the defaults of the script's option() calls.
func Load(ctx context.Context, filename, projectRoot string, options map[string]string) (*Definitions, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	if options == nil {
		options = map[string]string{}
	}

	builtins := starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"option":       starlark.NewBuiltin("option", option),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"setenv":       starlark.NewBuiltin("setenv", setenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPathDir),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"execute":      starlark.NewBuiltin("execute", starExec),
		"task":         starlark.NewBuiltin("task", task),
		"delete":       starlark.NewBuiltin("delete", starDelete),
		"copy":         starlark.NewBuiltin("copy", starCopy),
		"concat":       starlark.NewBuiltin("concat", starConcat),
		"compress":     starlark.NewBuiltin("compress", starCompress),
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			taskgraph.Log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		envOverrides: make(map[string]string),
		tasks:        make([]*TaskDef, 0),
		yamlCache:    make(map[string]interface{}),
		initPhase:    true,
	}
	thread.SetLocal("parserCtx", &threadCtx)

	script, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read file")
	}

	displayName := simplifyPath(&threadCtx, filename)
	globals, err := starlark.ExecFile(thread, displayName, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", displayName, evalError.Backtrace())
		}
		return nil, eris.Wrap(err, "failed to execute")
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, eris.Errorf("%s did not declare a configure function", displayName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, eris.Errorf("%s did declare a configure value but it's not a function", displayName)
	}

	threadCtx.initPhase = false
	_, err = starlark.Call(thread, configureFunc, starlark.Tuple{}, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.New(evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed configure call in %s", displayName)
	}

	for _, task := range threadCtx.tasks {
		for name, value := range threadCtx.envOverrides {
			if _, present := task.Env[name]; !present {
				task.Env[name] = value
			}
		}
	}

	sources := make([]string, 0, len(threadCtx.yamlCache))
	for path := range threadCtx.yamlCache {
		sources = append(sources, path)
	}
	sort.Strings(sources)

	return &Definitions{
		Tasks:   threadCtx.tasks,
		Options: threadCtx.options,
		Sources: sources,
	}, nil
}
