package script

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"

	"github.com/ngld/taskrun/pkg/actions"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	base := ""
	ctx := getCtx(thread)

	for _, kv := range kwargs {
		key := kv[0].(starlark.String).GoString()
		if key != "base" {
			return nil, eris.Errorf("unexpected keyword argument %s", key)
		}

		switch value := kv[1].(type) {
		case starlark.String:
			base = value.GoString()
		case StarlarkPath:
			base = string(value)
		default:
			return nil, eris.Errorf("invalid type %s for keyword base, expected string or path", kv[1].Type())
		}

		base = normalizePath(ctx, base)
	}

	if len(args) < 1 {
		return nil, eris.New("expects at least one argument")
	}

	parts := make([]string, len(args))
	for idx, path := range args {
		switch value := path.(type) {
		case starlark.String:
			parts[idx] = value.GoString()
		case StarlarkPath:
			parts[idx] = string(value)
		default:
			return nil, eris.Errorf("only accepts string arguments but argument %d was a %s", idx, path.Type())
		}
	}

	normPath := normalizePath(ctx, parts...)
	if base != "" {
		var err error
		normPath, err = filepath.Rel(base, normPath)
		if err != nil {
			return nil, err
		}
	}

	return StarlarkPath(normPath), nil
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, "%s", message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	warn(thread, "%s", message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	envOverrides := getCtx(thread).envOverrides
	value, ok := envOverrides[key]
	if !ok {
		value = os.Getenv(key)
	}

	return starlark.String(value), nil
}

func setenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value)
	if err != nil {
		return nil, err
	}

	getCtx(thread).envOverrides[key] = value
	return starlark.True, nil
}

func prependPathDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pathDir string

	if len(args) != 1 {
		return nil, eris.Errorf("got %d arguments, want 1", len(args))
	}

	switch value := args[0].(type) {
	case starlark.String:
		pathDir = value.GoString()
	case StarlarkPath:
		pathDir = string(value)
	default:
		return nil, eris.Errorf("for parameter 1: got %s, want path or string", args[0].Type())
	}

	envOverrides := getCtx(thread).envOverrides
	path, ok := envOverrides["PATH"]
	if !ok {
		path = os.Getenv("PATH")
	}

	envOverrides["PATH"] = normalizePath(getCtx(thread), pathDir) + string(os.PathListSeparator) + path

	return starlark.String(envOverrides["PATH"]), nil
}

// readYaml reads a single value from a YAML (or JSON) document. The key is a dot separated
// path; numeric parts index into lists.
func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var yamlFile string
	var yamlKey string
	var defaultValue starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &yamlFile, &yamlKey, &defaultValue)
	if err != nil {
		return nil, err
	}

	yamlFile = normalizePath(getCtx(thread), yamlFile)

	cache := getCtx(thread).yamlCache
	doc, loaded := cache[yamlFile]
	if !loaded {
		content, err := ioutil.ReadFile(yamlFile)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open file %s", yamlFile)
		}

		err = yaml.Unmarshal(content, &doc)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse file %s", yamlFile)
		}
		cache[yamlFile] = doc
	}

	value := reflect.ValueOf(doc)
	for _, key := range strings.Split(yamlKey, ".") {
		for value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(key))
		case reflect.Slice:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= value.Len() {
				return defaultValue, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return defaultValue, nil
		default:
			return nil, eris.Errorf("encountered unexpected value of kind %v in YAML document", value.Kind())
		}
	}

	if !value.IsValid() {
		return defaultValue, nil
	}

	result := value.Interface()
	if result == nil {
		return defaultValue, nil
	}

	return interfaceToStarlark(result)
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath)
	if err != nil {
		return nil, err
	}

	dirPath = normalizePath(getCtx(thread), dirPath)
	info, err := os.Stat(dirPath)
	return starlark.Bool(err == nil && info.IsDir()), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filePath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &filePath)
	if err != nil {
		return nil, err
	}

	filePath = normalizePath(getCtx(thread), filePath)
	info, err := os.Stat(filePath)
	return starlark.Bool(err == nil && info.Mode().IsRegular()), nil
}

// starExec runs a command while the script is loaded and returns its output. It returns
// False if the command failed.
func starExec(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	var outputFormat string
	var showError bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "format?", &outputFormat, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	if outputFormat == "" {
		outputFormat = "text"
	}

	if outputFormat != "text" && outputFormat != "json" {
		return nil, eris.Errorf("unsupported format %s", outputFormat)
	}

	ctx := getCtx(thread)
	base := filepath.Dir(ctx.filepath)

	var script string
	switch command := command.(type) {
	case starlark.String:
		script = command.GoString()
	case starlark.Tuple:
		script, err = cmdToScript(command, base)
	case *starlark.List:
		script, err = cmdToScript(listToTuple(command), base)
	default:
		return nil, eris.Errorf("unexpected type %s for command parameter, only strings, tuples and lists are valid", command.Type())
	}
	if err != nil {
		return nil, err
	}

	outputBuffer := strings.Builder{}
	shell := actions.Shell(base, ctx.envOverrides, script)
	shell.Name = fn.Name()
	shell.Stdout = &outputBuffer
	shell.Stderr = ioutil.Discard
	if showError {
		shell.Stderr = os.Stderr
	}

	err = shell.Run(ctx.ctx)
	if err != nil {
		if showError {
			taskgraph.Log(ctx.ctx).Error().Err(err).Msg("shell error")
		}
		return starlark.False, nil
	}

	if outputFormat == "json" {
		var decoded interface{}
		err = json.Unmarshal([]byte(outputBuffer.String()), &decoded)
		if err != nil {
			return nil, eris.Wrap(err, "failed to parse command output")
		}

		return interfaceToStarlark(decoded)
	}

	return starlark.String(outputBuffer.String()), nil
}

// * Action constructors

func starDelete(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base string
	for _, kv := range kwargs {
		key := kv[0].(starlark.String).GoString()
		if key != "base" {
			return nil, eris.Errorf("%s: unexpected keyword argument %s", fn.Name(), key)
		}

		value, ok := kv[1].(starlark.String)
		if !ok {
			return nil, eris.Errorf("%s: base must be a string", fn.Name())
		}
		base = normalizePath(getCtx(thread), value.GoString())
	}

	patterns := make([]string, 0, len(args))
	for idx, arg := range args {
		items, err := unpackPatterns(arg, "patterns")
		if err != nil {
			return nil, eris.Wrapf(err, "%s: argument %d", fn.Name(), idx)
		}
		patterns = append(patterns, items...)
	}

	if len(patterns) == 0 {
		return nil, eris.Errorf("%s: expects at least one pattern", fn.Name())
	}

	return &actionValue{cmd: CmdDef{Kind: CmdDelete, Base: base, Patterns: patterns}}, nil
}

func starCopy(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src starlark.Value
	var dest string
	var rename string
	var base string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "src", &src, "dest", &dest, "rename?", &rename, "base?", &base)
	if err != nil {
		return nil, err
	}

	patterns, err := unpackPatterns(src, "src")
	if err != nil {
		return nil, err
	}

	if base != "" {
		base = normalizePath(getCtx(thread), base)
	}

	return &actionValue{cmd: CmdDef{Kind: CmdCopy, Base: base, Patterns: patterns, Dest: dest, Rename: rename}}, nil
}

func starConcat(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src starlark.Value
	var dest string
	var base string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "src", &src, "dest", &dest, "base?", &base)
	if err != nil {
		return nil, err
	}

	patterns, err := unpackPatterns(src, "src")
	if err != nil {
		return nil, err
	}

	if base != "" {
		base = normalizePath(getCtx(thread), base)
	}

	return &actionValue{cmd: CmdDef{Kind: CmdConcat, Base: base, Patterns: patterns, Dest: dest}}, nil
}

func starCompress(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src starlark.Value
	var format string
	var base string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "src", &src, "format?", &format, "base?", &base)
	if err != nil {
		return nil, err
	}

	patterns, err := unpackPatterns(src, "src")
	if err != nil {
		return nil, err
	}

	// validate the format now rather than when the task runs
	if _, err = actions.Compress(base, patterns, format); err != nil {
		return nil, err
	}

	if base != "" {
		base = normalizePath(getCtx(thread), base)
	}

	return &actionValue{cmd: CmdDef{Kind: CmdCompress, Base: base, Patterns: patterns, Format: format}}, nil
}
