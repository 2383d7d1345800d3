package script

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

func loadAngularExample(t *testing.T, withPackage bool, options map[string]string) *Definitions {
	t.Helper()
	script, err := ioutil.ReadFile(filepath.Join("..", "..", "examples", "angular", "tasks.star"))
	require.NoError(t, err)

	root := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "tasks.star"), script, 0660))
	if withPackage {
		pkg := `{"name": "ng-widgets", "main": "dist/src/widgets.js"}`
		require.NoError(t, ioutil.WriteFile(filepath.Join(root, "package.json"), []byte(pkg), 0660))
	}

	defs, err := Load(context.Background(), filepath.Join(root, "tasks.star"), root, options)
	require.NoError(t, err)
	return defs
}

func TestAngularExamplePlan(t *testing.T) {
	defs := loadAngularExample(t, false, nil)

	registry := taskgraph.NewRegistry()
	require.NoError(t, Build(defs, registry, BuildOptions{}))

	plan, err := registry.Plan("default")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"clean:dist", "clean:src", "build:app",
		"bundle:app", "compile:aot", "compile:es6", "copy:html", "rollup:app",
		"bundle:vendor", "bundle:all", "bundle:css",
		"compress", "clean", "app", "default",
	}, plan)

	plan, err = registry.Plan("dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"clean:src", "build:dev", "compile:dev", "dev"}, plan)
}

func TestAngularExamplePackageFields(t *testing.T) {
	defs := loadAngularExample(t, true, map[string]string{"minify": "false"})

	rollup, ok := defs.Lookup("rollup:module")
	require.True(t, ok)
	require.Len(t, rollup.Cmds, 3)
	assert.Contains(t, rollup.Cmds[0].Script, "dist/src/widgets.js")
	assert.Contains(t, rollup.Cmds[2].Script, "dist/ng-widgets.bundle.amd.js")

	compress, ok := defs.Lookup("compress")
	require.True(t, ok)
	require.Len(t, compress.Cmds, 1)
	assert.Equal(t, CmdCompress, compress.Cmds[0].Kind)
}
